package domain

import "context"

// ContentRepository defines read access to the content store.
// All list methods return results in stable order: pages by Lft, elements by
// Position. The repository never applies authorization; that is a separate
// narrowing step owned by the usecase layer.
type ContentRepository interface {
	// GetPage retrieves a page by numeric ID. Returns ErrNotFound if absent.
	GetPage(ctx context.Context, id int64) (*Page, error)

	// GetPageByUrlname retrieves a page by its locale-scoped slug.
	// Returns ErrNotFound if absent.
	GetPageByUrlname(ctx context.Context, urlname, languageCode string) (*Page, error)

	// GetLanguageRootPage retrieves the root page of a locale
	// (level 0, ParentID 0). Returns ErrNotFound if the locale has no root.
	GetLanguageRootPage(ctx context.Context, languageCode string) (*Page, error)

	// ListPages retrieves pages matching the filter.
	ListPages(ctx context.Context, filter PageFilter) ([]*Page, error)

	// ListPageIDs retrieves the IDs of all pages, for integrity sweeps.
	ListPageIDs(ctx context.Context) ([]int64, error)

	// GetElement retrieves an element by ID. Returns ErrNotFound if absent.
	GetElement(ctx context.Context, id int64) (*Element, error)

	// ListElements retrieves elements matching the filter.
	ListElements(ctx context.Context, filter ElementFilter) ([]*Element, error)

	// ListPageElements retrieves every element of a page, nested children
	// included, as a flat position-ordered slice. The tree serializer
	// assembles the hierarchy from parent references.
	ListPageElements(ctx context.Context, pageID int64) ([]*Element, error)
}

// ContentSeeder defines the write surface used only by the seed importer.
// The running API never mutates content; seeding stands in for the external
// content-management layer that owns writes.
type ContentSeeder interface {
	UpsertPage(ctx context.Context, page *Page) error
	UpsertElement(ctx context.Context, element *Element) error
}

// HealthChecker defines the interface for store health checks.
type HealthChecker interface {
	// CheckConnection checks if the store connection is healthy.
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required collections/namespaces exist.
	EnsureCollections(ctx context.Context) error
}

// IntegrityScheduler accepts pages for background structural verification.
// Schedule must never block the caller; it reports false when the queue is
// full and the request was dropped.
type IntegrityScheduler interface {
	Schedule(pageID int64) bool
}
