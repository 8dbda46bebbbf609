package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/your-org/contentd/internal/domain"
)

// schema is the embedded DDL, applied idempotently on startup. The contents
// of an element and its tag list are stored as JSON columns: the API never
// queries inside them, it only needs them back intact.
const schema = `
CREATE TABLE IF NOT EXISTS pages (
	id            INTEGER PRIMARY KEY,
	name          TEXT NOT NULL,
	urlname       TEXT NOT NULL,
	page_layout   TEXT NOT NULL,
	language_code TEXT NOT NULL,
	parent_id     INTEGER NOT NULL DEFAULT 0,
	level         INTEGER NOT NULL DEFAULT 0,
	lft           INTEGER NOT NULL DEFAULT 0,
	rgt           INTEGER NOT NULL DEFAULT 0,
	restricted    INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	UNIQUE (language_code, urlname)
);

CREATE TABLE IF NOT EXISTS elements (
	id                INTEGER PRIMARY KEY,
	name              TEXT NOT NULL,
	page_id           INTEGER NOT NULL,
	cell_id           INTEGER NOT NULL DEFAULT 0,
	parent_element_id INTEGER NOT NULL DEFAULT 0,
	position          INTEGER NOT NULL DEFAULT 0,
	nestable          INTEGER NOT NULL DEFAULT 0,
	public            INTEGER NOT NULL DEFAULT 1,
	tag_list          TEXT NOT NULL DEFAULT '[]',
	contents          TEXT NOT NULL DEFAULT '[]',
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_elements_page     ON elements (page_id, position);
CREATE INDEX IF NOT EXISTS idx_elements_name     ON elements (name);
CREATE INDEX IF NOT EXISTS idx_pages_layout      ON pages (page_layout);
CREATE INDEX IF NOT EXISTS idx_pages_locale      ON pages (language_code, lft);
`

const elementColumns = `id, name, page_id, cell_id, parent_element_id, position,
	nestable, public, tag_list, contents, created_at, updated_at`

const pageColumns = `id, name, urlname, page_layout, language_code, parent_id,
	level, lft, rgt, restricted, created_at, updated_at`

// SQLiteRepository is the embedded store backend: a single file (or :memory:)
// behind database/sql with the pure-Go sqlite driver. WAL mode keeps readers
// unblocked by the seed importer.
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger

	migrateOnce sync.Once
	migrateErr  error
}

// NewSQLiteRepository opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteRepository(path string, logger *zap.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY during seeding.
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := repo.EnsureCollections(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureCollections implements domain.HealthChecker: applies pragmas and DDL
// exactly once.
func (r *SQLiteRepository) EnsureCollections(ctx context.Context) error {
	r.migrateOnce.Do(func() {
		if _, err := r.db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
			r.migrateErr = fmt.Errorf("failed to set pragmas: %w", err)
			return
		}
		if _, err := r.db.ExecContext(ctx, schema); err != nil {
			r.migrateErr = fmt.Errorf("failed to apply schema: %w", err)
			return
		}
		r.logger.Info("sqlite schema ensured")
	})
	return r.migrateErr
}

// CheckConnection implements domain.HealthChecker.
func (r *SQLiteRepository) CheckConnection(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// GetPage implements domain.ContentRepository.
func (r *SQLiteRepository) GetPage(ctx context.Context, id int64) (*domain.Page, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %d: %w", id, domain.ErrNotFound)
	}
	return page, err
}

// GetPageByUrlname implements domain.ContentRepository.
func (r *SQLiteRepository) GetPageByUrlname(ctx context.Context, urlname, languageCode string) (*domain.Page, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE urlname = ? AND language_code = ?`,
		urlname, languageCode)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %q (%s): %w", urlname, languageCode, domain.ErrNotFound)
	}
	return page, err
}

// GetLanguageRootPage implements domain.ContentRepository.
func (r *SQLiteRepository) GetLanguageRootPage(ctx context.Context, languageCode string) (*domain.Page, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE language_code = ? AND parent_id = 0 ORDER BY lft LIMIT 1`,
		languageCode)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("root page for locale %q: %w", languageCode, domain.ErrNotFound)
	}
	return page, err
}

// ListPages implements domain.ContentRepository.
func (r *SQLiteRepository) ListPages(ctx context.Context, filter domain.PageFilter) ([]*domain.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE 1=1`
	args := []interface{}{}
	if filter.PageLayout != "" {
		query += ` AND page_layout = ?`
		args = append(args, filter.PageLayout)
	}
	if filter.LanguageCode != "" {
		query += ` AND language_code = ?`
		args = append(args, filter.LanguageCode)
	}
	query += ` ORDER BY language_code, lft, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*domain.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	if pages == nil {
		pages = []*domain.Page{}
	}
	return pages, rows.Err()
}

// ListPageIDs implements domain.ContentRepository.
func (r *SQLiteRepository) ListPageIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list page ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetElement implements domain.ContentRepository.
func (r *SQLiteRepository) GetElement(ctx context.Context, id int64) (*domain.Element, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+elementColumns+` FROM elements WHERE id = ?`, id)
	element, err := scanElement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("element %d: %w", id, domain.ErrNotFound)
	}
	return element, err
}

// ListElements implements domain.ContentRepository.
func (r *SQLiteRepository) ListElements(ctx context.Context, filter domain.ElementFilter) ([]*domain.Element, error) {
	query := `SELECT ` + elementColumns + ` FROM elements WHERE 1=1`
	args := []interface{}{}
	if filter.PageID != 0 {
		query += ` AND page_id = ?`
		args = append(args, filter.PageID)
	}
	if len(filter.Names) > 0 {
		query += ` AND name IN (?` + repeatPlaceholder(len(filter.Names)-1) + `)`
		for _, name := range filter.Names {
			args = append(args, name)
		}
	}
	if filter.NotNested {
		query += ` AND parent_element_id = 0`
	}
	query += ` ORDER BY page_id, position, id`

	return r.queryElements(ctx, query, args...)
}

// ListPageElements implements domain.ContentRepository.
func (r *SQLiteRepository) ListPageElements(ctx context.Context, pageID int64) ([]*domain.Element, error) {
	return r.queryElements(ctx,
		`SELECT `+elementColumns+` FROM elements WHERE page_id = ? ORDER BY position, id`,
		pageID)
}

// UpsertPage implements domain.ContentSeeder.
func (r *SQLiteRepository) UpsertPage(ctx context.Context, page *domain.Page) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pages (`+pageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, urlname = excluded.urlname,
			page_layout = excluded.page_layout, language_code = excluded.language_code,
			parent_id = excluded.parent_id, level = excluded.level,
			lft = excluded.lft, rgt = excluded.rgt,
			restricted = excluded.restricted, updated_at = excluded.updated_at`,
		page.ID, page.Name, page.Urlname, page.PageLayout, page.LanguageCode,
		page.ParentID, page.Level, page.Lft, page.Rgt, page.Restricted,
		page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page %d: %w", page.ID, err)
	}
	return nil
}

// UpsertElement implements domain.ContentSeeder.
func (r *SQLiteRepository) UpsertElement(ctx context.Context, element *domain.Element) error {
	tagList, err := json.Marshal(tagListOrEmpty(element.TagList))
	if err != nil {
		return fmt.Errorf("failed to encode tag list: %w", err)
	}
	contents, err := json.Marshal(contentsOrEmpty(element.Contents))
	if err != nil {
		return fmt.Errorf("failed to encode contents: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO elements (`+elementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, page_id = excluded.page_id,
			cell_id = excluded.cell_id, parent_element_id = excluded.parent_element_id,
			position = excluded.position, nestable = excluded.nestable,
			public = excluded.public, tag_list = excluded.tag_list,
			contents = excluded.contents, updated_at = excluded.updated_at`,
		element.ID, element.Name, element.PageID, element.CellID,
		element.ParentElementID, element.Position, element.Nestable, element.Public,
		string(tagList), string(contents), element.CreatedAt, element.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert element %d: %w", element.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) queryElements(ctx context.Context, query string, args ...interface{}) ([]*domain.Element, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query elements: %w", err)
	}
	defer rows.Close()

	elements := []*domain.Element{}
	for rows.Next() {
		element, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	return elements, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(s scanner) (*domain.Page, error) {
	var page domain.Page
	err := s.Scan(&page.ID, &page.Name, &page.Urlname, &page.PageLayout,
		&page.LanguageCode, &page.ParentID, &page.Level, &page.Lft, &page.Rgt,
		&page.Restricted, &page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan page row: %w", err)
	}
	return &page, nil
}

func scanElement(s scanner) (*domain.Element, error) {
	var element domain.Element
	var tagList, contents string
	err := s.Scan(&element.ID, &element.Name, &element.PageID, &element.CellID,
		&element.ParentElementID, &element.Position, &element.Nestable,
		&element.Public, &tagList, &contents, &element.CreatedAt, &element.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan element row: %w", err)
	}
	if err := json.Unmarshal([]byte(tagList), &element.TagList); err != nil {
		return nil, fmt.Errorf("corrupt tag_list for element %d: %w", element.ID, err)
	}
	if err := json.Unmarshal([]byte(contents), &element.Contents); err != nil {
		return nil, fmt.Errorf("corrupt contents for element %d: %w", element.ID, err)
	}
	return &element, nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func tagListOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func contentsOrEmpty(contents []domain.Content) []domain.Content {
	if contents == nil {
		return []domain.Content{}
	}
	return contents
}

// Compile-time interface checks.
var (
	_ domain.ContentRepository = (*SQLiteRepository)(nil)
	_ domain.ContentSeeder     = (*SQLiteRepository)(nil)
	_ domain.HealthChecker     = (*SQLiteRepository)(nil)
)
