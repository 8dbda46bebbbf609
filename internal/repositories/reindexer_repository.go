package repositories

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restream/reindexer/v4"
	// cproto (RPC) bindings: faster than the HTTP protocol for a read-heavy API.
	_ "github.com/restream/reindexer/v4/bindings/cproto"
	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
)

const (
	pagesNamespace    = "pages"
	elementsNamespace = "elements"

	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultQueryTimeout   = 5 * time.Second
)

// HealthStatus is the last observed connection state, kept for health checks.
type HealthStatus struct {
	IsHealthy   bool
	LastCheck   time.Time
	LastError   error
	Connections int
}

// ReindexerRepository is the primary content store backend. It keeps a small
// pool of cproto connections so concurrent requests do not serialize on one
// socket, and publishes its health through an atomic.Value so the health
// endpoint never takes a lock.
type ReindexerRepository struct {
	dsn            string
	maxConnections int
	logger         *zap.Logger

	mu          sync.RWMutex
	db          *reindexer.Reindexer
	connections []*reindexer.Reindexer
	poolSize    int
	nextConn    uint32

	healthStatus atomic.Value // holds *HealthStatus

	collectionsInitialized bool
	collectionsMu          sync.Mutex
}

// NewReindexerRepository creates the repository and connects immediately,
// retrying a few times in case the database is still starting.
func NewReindexerRepository(dsn string, maxConnections int, logger *zap.Logger) (*ReindexerRepository, error) {
	if maxConnections < 1 {
		maxConnections = 1
	}

	repo := &ReindexerRepository{
		dsn:            dsn,
		maxConnections: maxConnections,
		logger:         logger,
		poolSize:       maxConnections,
		connections:    make([]*reindexer.Reindexer, 0, maxConnections),
	}
	repo.healthStatus.Store(&HealthStatus{IsHealthy: false, LastCheck: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := repo.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to reindexer: %w", err)
	}
	return repo, nil
}

// Connect establishes the main connection plus the pool, with retries.
func (r *ReindexerRepository) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectWithRetry(ctx, defaultMaxRetries)
}

func (r *ReindexerRepository) connectWithRetry(ctx context.Context, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("retrying reindexer connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			time.Sleep(delay)
		}

		db := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
		if err := r.testConnection(ctx, db); err != nil {
			lastErr = err
			db.Close()
			r.logger.Warn("connection test failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		// Drop any previous connections before swapping in the new set.
		if r.db != nil {
			r.db.Close()
		}
		for _, conn := range r.connections {
			if conn != nil {
				conn.Close()
			}
		}

		r.db = db
		r.connections = make([]*reindexer.Reindexer, 0, r.poolSize)
		for i := 0; i < r.poolSize; i++ {
			conn := reindexer.NewReindex(r.dsn, reindexer.WithCreateDBIfMissing())
			if err := r.testConnection(ctx, conn); err != nil {
				conn.Close()
				r.logger.Warn("failed to open pool connection",
					zap.Int("index", i),
					zap.Error(err),
				)
				continue
			}
			r.connections = append(r.connections, conn)
		}

		r.updateHealthStatus(true, nil, len(r.connections)+1)
		r.logger.Info("connected to reindexer", zap.Int("pool_size", len(r.connections)))
		return nil
	}

	r.updateHealthStatus(false, lastErr, 0)
	return fmt.Errorf("failed to connect after %d attempts: %w", maxRetries, lastErr)
}

func (r *ReindexerRepository) testConnection(ctx context.Context, db *reindexer.Reindexer) error {
	if db == nil {
		return fmt.Errorf("nil connection")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// getConnection picks a pool connection round-robin, falling back to the main
// connection when the pool is empty.
func (r *ReindexerRepository) getConnection() *reindexer.Reindexer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.connections) == 0 {
		return r.db
	}
	idx := atomic.AddUint32(&r.nextConn, 1)
	return r.connections[int(idx)%len(r.connections)]
}

func (r *ReindexerRepository) updateHealthStatus(isHealthy bool, err error, connections int) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy:   isHealthy,
		LastCheck:   time.Now(),
		LastError:   err,
		Connections: connections,
	})
}

func (r *ReindexerRepository) getHealthStatus() *HealthStatus {
	status := r.healthStatus.Load()
	if status == nil {
		return &HealthStatus{IsHealthy: false}
	}
	return status.(*HealthStatus)
}

// EnsureCollections opens (creating on first use) the pages and elements
// namespaces on every connection, guarded by double-checked locking so
// concurrent callers run the DDL only once.
func (r *ReindexerRepository) EnsureCollections(ctx context.Context) error {
	if r.collectionsInitialized {
		return nil
	}

	r.collectionsMu.Lock()
	defer r.collectionsMu.Unlock()
	if r.collectionsInitialized {
		return nil
	}

	r.mu.RLock()
	db := r.db
	conns := r.connections
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("no database connection")
	}

	opts := reindexer.DefaultNamespaceOptions()
	namespaces := []struct {
		name string
		item interface{}
	}{
		{pagesNamespace, domain.Page{}},
		{elementsNamespace, domain.Element{}},
	}

	for _, ns := range namespaces {
		if err := db.OpenNamespace(ns.name, opts, ns.item); err != nil {
			return fmt.Errorf("failed to open namespace %s: %w", ns.name, err)
		}
		for i, conn := range conns {
			if conn == nil {
				continue
			}
			if err := conn.OpenNamespace(ns.name, opts, ns.item); err != nil {
				r.logger.Warn("failed to open namespace on pool connection",
					zap.String("namespace", ns.name),
					zap.Int("index", i),
					zap.Error(err),
				)
			}
		}
	}

	r.collectionsInitialized = true
	r.logger.Info("namespaces ensured",
		zap.Strings("namespaces", []string{pagesNamespace, elementsNamespace}),
	)
	return nil
}

// GetPage implements domain.ContentRepository.
func (r *ReindexerRepository) GetPage(ctx context.Context, id int64) (*domain.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	iter := db.Query(pagesNamespace).Where("id", reindexer.EQ, id).Exec()
	defer iter.Close()

	page, err := r.onePage(iter)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("page %d: %w", id, domain.ErrNotFound)
	}
	return page, nil
}

// GetPageByUrlname implements domain.ContentRepository.
func (r *ReindexerRepository) GetPageByUrlname(ctx context.Context, urlname, languageCode string) (*domain.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	iter := db.Query(pagesNamespace).
		Where("urlname", reindexer.EQ, urlname).
		Where("language_code", reindexer.EQ, languageCode).
		Exec()
	defer iter.Close()

	page, err := r.onePage(iter)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("page %q (%s): %w", urlname, languageCode, domain.ErrNotFound)
	}
	return page, nil
}

// GetLanguageRootPage implements domain.ContentRepository.
func (r *ReindexerRepository) GetLanguageRootPage(ctx context.Context, languageCode string) (*domain.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	iter := db.Query(pagesNamespace).
		Where("language_code", reindexer.EQ, languageCode).
		Where("parent_id", reindexer.EQ, 0).
		Sort("lft", false).
		Limit(1).
		Exec()
	defer iter.Close()

	page, err := r.onePage(iter)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("root page for locale %q: %w", languageCode, domain.ErrNotFound)
	}
	return page, nil
}

// ListPages implements domain.ContentRepository.
func (r *ReindexerRepository) ListPages(ctx context.Context, filter domain.PageFilter) ([]*domain.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	query := db.Query(pagesNamespace).Sort("lft", false)
	if filter.PageLayout != "" {
		query = query.Where("page_layout", reindexer.EQ, filter.PageLayout)
	}
	if filter.LanguageCode != "" {
		query = query.Where("language_code", reindexer.EQ, filter.LanguageCode)
	}

	iter := query.Exec()
	defer iter.Close()
	if iter.Error() != nil {
		r.updateHealthStatus(false, iter.Error(), r.getHealthStatus().Connections)
		return nil, fmt.Errorf("failed to list pages: %w", iter.Error())
	}

	// Object, not NextObj: Next already advances the iterator, so pairing it
	// with NextObj would skip every other record.
	pages := []*domain.Page{}
	for iter.Next() {
		obj := iter.Object()
		if obj == nil {
			continue
		}
		page, ok := obj.(*domain.Page)
		if !ok {
			return nil, fmt.Errorf("unexpected object type %T in pages namespace", obj)
		}
		cp := *page
		pages = append(pages, &cp)
	}
	return pages, nil
}

// ListPageIDs implements domain.ContentRepository.
func (r *ReindexerRepository) ListPageIDs(ctx context.Context) ([]int64, error) {
	pages, err := r.ListPages(ctx, domain.PageFilter{})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(pages))
	for _, page := range pages {
		ids = append(ids, page.ID)
	}
	return ids, nil
}

// GetElement implements domain.ContentRepository.
func (r *ReindexerRepository) GetElement(ctx context.Context, id int64) (*domain.Element, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	iter := db.Query(elementsNamespace).Where("id", reindexer.EQ, id).Exec()
	defer iter.Close()

	if iter.Error() != nil {
		r.updateHealthStatus(false, iter.Error(), r.getHealthStatus().Connections)
		return nil, fmt.Errorf("failed to query element: %w", iter.Error())
	}
	for iter.Next() {
		if obj := iter.Object(); obj != nil {
			if element, ok := obj.(*domain.Element); ok {
				cp := *element
				return &cp, nil
			}
			return nil, fmt.Errorf("unexpected object type %T in elements namespace", obj)
		}
	}
	return nil, fmt.Errorf("element %d: %w", id, domain.ErrNotFound)
}

// ListElements implements domain.ContentRepository. The filter conditions are
// ANDed into one query; reindexer applies them conjunctively.
func (r *ReindexerRepository) ListElements(ctx context.Context, filter domain.ElementFilter) ([]*domain.Element, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	query := db.Query(elementsNamespace).Sort("position", false)
	if filter.PageID != 0 {
		query = query.Where("page_id", reindexer.EQ, filter.PageID)
	}
	if len(filter.Names) > 0 {
		names := make([]interface{}, len(filter.Names))
		for i, name := range filter.Names {
			names[i] = name
		}
		query = query.Where("name", reindexer.SET, names)
	}
	if filter.NotNested {
		query = query.Where("parent_element_id", reindexer.EQ, 0)
	}

	return r.collectElements(query)
}

// ListPageElements implements domain.ContentRepository.
func (r *ReindexerRepository) ListPageElements(ctx context.Context, pageID int64) ([]*domain.Element, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout*2)
	defer cancel()

	db := r.getConnection()
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	query := db.Query(elementsNamespace).
		Where("page_id", reindexer.EQ, pageID).
		Sort("position", false)
	return r.collectElements(query)
}

// UpsertPage implements domain.ContentSeeder.
func (r *ReindexerRepository) UpsertPage(ctx context.Context, page *domain.Page) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.EnsureCollections(ctx); err != nil {
		return err
	}
	db := r.getConnection()
	if db == nil {
		return fmt.Errorf("no database connection")
	}
	if err := db.Upsert(pagesNamespace, page); err != nil {
		r.updateHealthStatus(false, err, r.getHealthStatus().Connections)
		return fmt.Errorf("failed to upsert page %d: %w", page.ID, err)
	}
	return nil
}

// UpsertElement implements domain.ContentSeeder.
func (r *ReindexerRepository) UpsertElement(ctx context.Context, element *domain.Element) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if err := r.EnsureCollections(ctx); err != nil {
		return err
	}
	db := r.getConnection()
	if db == nil {
		return fmt.Errorf("no database connection")
	}
	if err := db.Upsert(elementsNamespace, element); err != nil {
		r.updateHealthStatus(false, err, r.getHealthStatus().Connections)
		return fmt.Errorf("failed to upsert element %d: %w", element.ID, err)
	}
	return nil
}

func (r *ReindexerRepository) onePage(iter *reindexer.Iterator) (*domain.Page, error) {
	if iter.Error() != nil {
		r.updateHealthStatus(false, iter.Error(), r.getHealthStatus().Connections)
		return nil, fmt.Errorf("failed to query page: %w", iter.Error())
	}
	for iter.Next() {
		if obj := iter.Object(); obj != nil {
			if page, ok := obj.(*domain.Page); ok {
				cp := *page
				return &cp, nil
			}
			return nil, fmt.Errorf("unexpected object type %T in pages namespace", obj)
		}
	}
	return nil, nil
}

func (r *ReindexerRepository) collectElements(query *reindexer.Query) ([]*domain.Element, error) {
	iter := query.Exec()
	defer iter.Close()

	if iter.Error() != nil {
		r.updateHealthStatus(false, iter.Error(), r.getHealthStatus().Connections)
		return nil, fmt.Errorf("failed to query elements: %w", iter.Error())
	}

	elements := []*domain.Element{}
	for iter.Next() {
		obj := iter.Object()
		if obj == nil {
			continue
		}
		element, ok := obj.(*domain.Element)
		if !ok {
			return nil, fmt.Errorf("unexpected object type %T in elements namespace", obj)
		}
		cp := *element
		elements = append(elements, &cp)
	}
	return elements, nil
}

// CheckConnection implements domain.HealthChecker.
func (r *ReindexerRepository) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("connection not established")
	}
	if err := r.testConnection(ctx, db); err != nil {
		r.updateHealthStatus(false, err, r.getHealthStatus().Connections)
		return fmt.Errorf("connection check failed: %w", err)
	}
	r.updateHealthStatus(true, nil, r.getHealthStatus().Connections)
	return nil
}

// Close closes all connections.
func (r *ReindexerRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
	for i, conn := range r.connections {
		if conn != nil {
			conn.Close()
			r.connections[i] = nil
		}
	}
	r.connections = r.connections[:0]
	r.updateHealthStatus(false, fmt.Errorf("connection closed"), 0)
	return nil
}

// Compile-time interface checks.
var (
	_ domain.ContentRepository = (*ReindexerRepository)(nil)
	_ domain.ContentSeeder     = (*ReindexerRepository)(nil)
	_ domain.HealthChecker     = (*ReindexerRepository)(nil)
)
