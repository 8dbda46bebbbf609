package repositories

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/contentd/internal/domain"
)

// contentStore is the full surface the conformance suite exercises: every
// backend must behave identically behind it.
type contentStore interface {
	domain.ContentRepository
	domain.ContentSeeder
	domain.HealthChecker
	Close() error
}

// seedFixture loads the shared content fixture: an English tree with a root,
// two child pages and a numeric-slug archive, a French root, and one page
// carrying a small element hierarchy.
func seedFixture(t *testing.T, ctx context.Context, store contentStore) {
	t.Helper()

	pages := []*domain.Page{
		{ID: 1, Name: "Root", Urlname: "index", LanguageCode: "en", Level: 0, Lft: 1, Rgt: 10},
		{ID: 2, Name: "Home", Urlname: "home", PageLayout: "standard", LanguageCode: "en", ParentID: 1, Level: 1, Lft: 2, Rgt: 3},
		{ID: 3, Name: "About", Urlname: "about", PageLayout: "standard", LanguageCode: "en", ParentID: 1, Level: 1, Lft: 4, Rgt: 5, Restricted: true},
		{ID: 4, Name: "Racine", Urlname: "index", LanguageCode: "fr", Level: 0, Lft: 1, Rgt: 2},
		{ID: 5, Name: "Archive 2020", Urlname: "2020", PageLayout: "archive", LanguageCode: "en", ParentID: 1, Level: 1, Lft: 6, Rgt: 7},
	}
	for _, page := range pages {
		require.NoError(t, store.UpsertPage(ctx, page))
	}

	elements := []*domain.Element{
		{ID: 10, Name: "header", PageID: 2, Position: 1, Public: true, TagList: []string{"layout"}, Contents: []domain.Content{
			{ID: 100, Name: "title", ElementID: 10, Position: 1, EssenceKind: "text", EssenceData: map[string]interface{}{"body": "Hello"}},
		}},
		{ID: 11, Name: "gallery", PageID: 2, Position: 2, Public: true, Nestable: true},
		{ID: 12, Name: "slide", PageID: 2, ParentElementID: 11, Position: 1, Public: true},
		{ID: 13, Name: "slide", PageID: 2, ParentElementID: 11, Position: 2, Public: true},
		{ID: 14, Name: "draft", PageID: 2, Position: 3, Public: false},
		{ID: 15, Name: "text", PageID: 3, Position: 1, Public: true},
	}
	for _, element := range elements {
		require.NoError(t, store.UpsertElement(ctx, element))
	}
}

func elementIDs(elements []*domain.Element) []int64 {
	ids := make([]int64, len(elements))
	for i, el := range elements {
		ids[i] = el.ID
	}
	return ids
}

// runConformance exercises the read surface against the shared fixture.
func runConformance(t *testing.T, ctx context.Context, store contentStore) {
	t.Helper()

	// Page lookup by ID, present and absent.
	page, err := store.GetPage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "home", page.Urlname)

	_, err = store.GetPage(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Slug lookup is locale-scoped: both locales own an "index".
	page, err = store.GetPageByUrlname(ctx, "index", "fr")
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.ID)

	_, err = store.GetPageByUrlname(ctx, "index", "de")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Locale root resolution.
	page, err = store.GetLanguageRootPage(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.ID)

	// Conjunctive page filters.
	pages, err := store.ListPages(ctx, domain.PageFilter{PageLayout: "standard", LanguageCode: "en"})
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	ids, err := store.ListPageIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	// A filter matching exactly one record must return it, not an empty slice.
	pages, err = store.ListPages(ctx, domain.PageFilter{PageLayout: "archive"})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, int64(5), pages[0].ID)

	// Element lookup, contents included.
	element, err := store.GetElement(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "header", element.Name)
	require.Len(t, element.Contents, 1)
	assert.Equal(t, "text", element.Contents[0].EssenceKind)
	assert.Equal(t, []string{"layout"}, element.TagList)

	_, err = store.GetElement(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Conjunctive element filters.
	elements, err := store.ListElements(ctx, domain.ElementFilter{PageID: 2})
	require.NoError(t, err)
	assert.Len(t, elements, 5)

	elements, err = store.ListElements(ctx, domain.ElementFilter{PageID: 2, NotNested: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10, 11, 14}, elementIDs(elements))

	elements, err = store.ListElements(ctx, domain.ElementFilter{PageID: 2, Names: []string{"slide"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{12, 13}, elementIDs(elements))

	elements, err = store.ListElements(ctx, domain.ElementFilter{Names: []string{"header"}, NotNested: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10}, elementIDs(elements))

	// Flat page slice for the tree serializer: nested children included.
	elements, err = store.ListPageElements(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, elements, 5)

	elements, err = store.ListPageElements(ctx, 3)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "text", elements[0].Name)
}

// TestSQLiteRepositoryConformance tests the embedded backend end to end
func TestSQLiteRepositoryConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	path := filepath.Join(t.TempDir(), "contentd_test.db")
	repo, err := NewSQLiteRepository(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.EnsureCollections(ctx))
	require.NoError(t, repo.CheckConnection(ctx))

	seedFixture(t, ctx, repo)
	runConformance(t, ctx, repo)
}

// waitForReindexer waits for Reindexer to be available
func waitForReindexer(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		repo, err := NewReindexerRepository(dsn, 1, zap.NewNop())
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := repo.CheckConnection(ctx); err == nil {
				cancel()
				repo.Close()
				return nil
			}
			cancel()
			repo.Close()
		}
		time.Sleep(1 * time.Second)
	}
	return fmt.Errorf("timeout waiting for Reindexer")
}

// TestReindexerRepositoryConformance tests the primary backend against a real
// Reindexer instance
func TestReindexerRepositoryConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := os.Getenv("REINDEXER_DSN")
	if dsn == "" {
		dsn = "cproto://localhost:6534/contentd_test"
	}

	if err := waitForReindexer(dsn, 30*time.Second); err != nil {
		t.Skipf("Reindexer is not available (run: docker-compose up -d reindexer): %v", err)
	}

	repo, err := NewReindexerRepository(dsn, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.EnsureCollections(ctx))

	seedFixture(t, ctx, repo)
	runConformance(t, ctx, repo)
}
