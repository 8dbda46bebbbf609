package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/your-org/contentd/internal/domain"
)

// MemoryRepository keeps the whole content forest in process memory. It backs
// tests, the seed CLI's dry-run mode, and small single-node deployments.
//
// Element filters are served from roaring bitmap secondary indexes over
// compact internal uint32 IDs instead of full scans: one bitmap per element
// name, one per page, and one for the not-nested set. Conjunctive filters
// become bitmap intersections.
type MemoryRepository struct {
	mu sync.RWMutex

	pages      map[int64]*domain.Page
	pageBySlug map[string]int64 // languageCode + "\x00" + urlname → page ID
	elements   map[int64]*domain.Element

	// Bitmap index plumbing: domain IDs are int64, roaring wants uint32, so
	// every element gets a monotonically assigned internal ID.
	elementIntID map[int64]uint32
	intToElement []int64 // reverse: internal ID → element ID
	nextIntID    uint32

	byName    map[string]*roaring.Bitmap
	byPage    map[int64]*roaring.Bitmap
	notNested *roaring.Bitmap
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		pages:        make(map[int64]*domain.Page),
		pageBySlug:   make(map[string]int64),
		elements:     make(map[int64]*domain.Element),
		elementIntID: make(map[int64]uint32),
		byName:       make(map[string]*roaring.Bitmap),
		byPage:       make(map[int64]*roaring.Bitmap),
		notNested:    roaring.New(),
	}
}

func slugKey(languageCode, urlname string) string {
	return languageCode + "\x00" + urlname
}

// UpsertPage implements domain.ContentSeeder.
func (r *MemoryRepository) UpsertPage(ctx context.Context, page *domain.Page) error {
	if page == nil || page.ID == 0 {
		return fmt.Errorf("page requires a non-zero id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.pages[page.ID]; ok {
		delete(r.pageBySlug, slugKey(old.LanguageCode, old.Urlname))
	}
	cp := *page
	r.pages[page.ID] = &cp
	r.pageBySlug[slugKey(page.LanguageCode, page.Urlname)] = page.ID
	return nil
}

// UpsertElement implements domain.ContentSeeder.
func (r *MemoryRepository) UpsertElement(ctx context.Context, element *domain.Element) error {
	if element == nil || element.ID == 0 {
		return fmt.Errorf("element requires a non-zero id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	intID, known := r.elementIntID[element.ID]
	if known {
		// Drop the old index postings before re-adding under new values.
		old := r.elements[element.ID]
		if bm := r.byName[old.Name]; bm != nil {
			bm.Remove(intID)
		}
		if bm := r.byPage[old.PageID]; bm != nil {
			bm.Remove(intID)
		}
		r.notNested.Remove(intID)
	} else {
		intID = r.nextIntID
		r.nextIntID++
		r.elementIntID[element.ID] = intID
		r.intToElement = append(r.intToElement, element.ID)
	}

	cp := cloneElement(element)
	r.elements[element.ID] = cp

	bm := r.byName[cp.Name]
	if bm == nil {
		bm = roaring.New()
		r.byName[cp.Name] = bm
	}
	bm.Add(intID)

	bm = r.byPage[cp.PageID]
	if bm == nil {
		bm = roaring.New()
		r.byPage[cp.PageID] = bm
	}
	bm.Add(intID)

	if cp.ParentElementID == 0 {
		r.notNested.Add(intID)
	}
	return nil
}

// GetPage implements domain.ContentRepository.
func (r *MemoryRepository) GetPage(ctx context.Context, id int64) (*domain.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page, ok := r.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %d: %w", id, domain.ErrNotFound)
	}
	cp := *page
	return &cp, nil
}

// GetPageByUrlname implements domain.ContentRepository.
func (r *MemoryRepository) GetPageByUrlname(ctx context.Context, urlname, languageCode string) (*domain.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.pageBySlug[slugKey(languageCode, urlname)]
	if !ok {
		return nil, fmt.Errorf("page %q (%s): %w", urlname, languageCode, domain.ErrNotFound)
	}
	cp := *r.pages[id]
	return &cp, nil
}

// GetLanguageRootPage implements domain.ContentRepository.
func (r *MemoryRepository) GetLanguageRootPage(ctx context.Context, languageCode string) (*domain.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, page := range r.pages {
		if page.LanguageCode == languageCode && page.ParentID == 0 {
			cp := *page
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("root page for locale %q: %w", languageCode, domain.ErrNotFound)
}

// ListPages implements domain.ContentRepository.
func (r *MemoryRepository) ListPages(ctx context.Context, filter domain.PageFilter) ([]*domain.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pages := make([]*domain.Page, 0, len(r.pages))
	for _, page := range r.pages {
		if filter.PageLayout != "" && page.PageLayout != filter.PageLayout {
			continue
		}
		if filter.LanguageCode != "" && page.LanguageCode != filter.LanguageCode {
			continue
		}
		cp := *page
		pages = append(pages, &cp)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].LanguageCode != pages[j].LanguageCode {
			return pages[i].LanguageCode < pages[j].LanguageCode
		}
		if pages[i].Lft != pages[j].Lft {
			return pages[i].Lft < pages[j].Lft
		}
		return pages[i].ID < pages[j].ID
	})
	return pages, nil
}

// ListPageIDs implements domain.ContentRepository.
func (r *MemoryRepository) ListPageIDs(ctx context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.pages))
	for id := range r.pages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetElement implements domain.ContentRepository.
func (r *MemoryRepository) GetElement(ctx context.Context, id int64) (*domain.Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	element, ok := r.elements[id]
	if !ok {
		return nil, fmt.Errorf("element %d: %w", id, domain.ErrNotFound)
	}
	return cloneElement(element), nil
}

// ListElements implements domain.ContentRepository. The filter dimensions
// intersect: each supplied condition narrows the same candidate bitmap.
func (r *MemoryRepository) ListElements(ctx context.Context, filter domain.ElementFilter) ([]*domain.Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.allElementsBitmap()

	if filter.PageID != 0 {
		bm := r.byPage[filter.PageID]
		if bm == nil {
			return []*domain.Element{}, nil
		}
		candidates.And(bm)
	}

	if len(filter.Names) > 0 {
		named := roaring.New()
		for _, name := range filter.Names {
			if bm := r.byName[name]; bm != nil {
				named.Or(bm)
			}
		}
		candidates.And(named)
	}

	if filter.NotNested {
		candidates.And(r.notNested)
	}

	elements := make([]*domain.Element, 0, candidates.GetCardinality())
	iter := candidates.Iterator()
	for iter.HasNext() {
		elementID := r.intToElement[iter.Next()]
		elements = append(elements, cloneElement(r.elements[elementID]))
	}
	sortElements(elements)
	return elements, nil
}

// ListPageElements implements domain.ContentRepository.
func (r *MemoryRepository) ListPageElements(ctx context.Context, pageID int64) ([]*domain.Element, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bm := r.byPage[pageID]
	if bm == nil {
		return []*domain.Element{}, nil
	}
	elements := make([]*domain.Element, 0, bm.GetCardinality())
	iter := bm.Iterator()
	for iter.HasNext() {
		elementID := r.intToElement[iter.Next()]
		elements = append(elements, cloneElement(r.elements[elementID]))
	}
	sortElements(elements)
	return elements, nil
}

// CheckConnection implements domain.HealthChecker. Memory is always up.
func (r *MemoryRepository) CheckConnection(ctx context.Context) error {
	return ctx.Err()
}

// EnsureCollections implements domain.HealthChecker.
func (r *MemoryRepository) EnsureCollections(ctx context.Context) error {
	return ctx.Err()
}

// Close releases nothing but keeps the backend surface uniform.
func (r *MemoryRepository) Close() error {
	return nil
}

// allElementsBitmap returns a fresh bitmap holding every known element, safe
// for the caller to mutate during intersection.
func (r *MemoryRepository) allElementsBitmap() *roaring.Bitmap {
	all := roaring.New()
	if r.nextIntID > 0 {
		all.AddRange(0, uint64(r.nextIntID))
	}
	return all
}

// sortElements orders a result slice by page, sibling position, then ID.
func sortElements(elements []*domain.Element) {
	sort.Slice(elements, func(i, j int) bool {
		if elements[i].PageID != elements[j].PageID {
			return elements[i].PageID < elements[j].PageID
		}
		if elements[i].Position != elements[j].Position {
			return elements[i].Position < elements[j].Position
		}
		return elements[i].ID < elements[j].ID
	})
}

// cloneElement copies an element deeply enough that callers can hold the
// result after the repository lock is released.
func cloneElement(el *domain.Element) *domain.Element {
	cp := *el
	if el.TagList != nil {
		cp.TagList = append([]string(nil), el.TagList...)
	}
	if el.Contents != nil {
		cp.Contents = make([]domain.Content, len(el.Contents))
		copy(cp.Contents, el.Contents)
	}
	return &cp
}

// Compile-time interface checks.
var (
	_ domain.ContentRepository = (*MemoryRepository)(nil)
	_ domain.ContentSeeder     = (*MemoryRepository)(nil)
	_ domain.HealthChecker     = (*MemoryRepository)(nil)
)
