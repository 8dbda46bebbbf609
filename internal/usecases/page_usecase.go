package usecases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/serializer"
)

// PageRef identifies a page either by numeric ID or by its locale-scoped
// urlname. Numeric resolution wins when both could apply.
type PageRef struct {
	IDOrUrlname string
	Locale      string
}

// TreeQuery selects how much of a page's element tree to serialize.
type TreeQuery struct {
	Full         bool
	ElementNames []string
}

// PageUsecase implements the access-scoped page pipeline: resolve, filter,
// authorize, serialize. Reads are cached pre-authorization (raw store
// entities only); the predicate runs on every request, so cached data never
// crosses identities.
type PageUsecase struct {
	repo       domain.ContentRepository
	cache      domain.Cache
	authorizer domain.Authorizer
	verifier   domain.IntegrityScheduler
	logger     *zap.Logger

	limiter       *RateLimiter
	maxDepth      int
	defaultLocale string

	wg sync.WaitGroup
}

// NewPageUsecase wires the page pipeline.
func NewPageUsecase(
	repo domain.ContentRepository,
	cache domain.Cache,
	authorizer domain.Authorizer,
	verifier domain.IntegrityScheduler,
	logger *zap.Logger,
	maxConcurrentOps int,
	maxDepth int,
	defaultLocale string,
) *PageUsecase {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &PageUsecase{
		repo:          repo,
		cache:         cache,
		authorizer:    authorizer,
		verifier:      verifier,
		logger:        logger,
		limiter:       NewRateLimiter(maxConcurrentOps),
		maxDepth:      maxDepth,
		defaultLocale: defaultLocale,
	}
}

// ListPages returns the authorized pages matching the filter, own fields
// only. Authorization narrows the result; it never redacts.
func (u *PageUsecase) ListPages(ctx context.Context, identity domain.Identity, filter domain.PageFilter) ([]*serializer.PageJSON, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("request limit reached: %w", err)
	}
	defer u.limiter.Release()

	pages, err := u.repo.ListPages(ctx, filter)
	if err != nil {
		u.logger.Error("failed to list pages", zap.Error(err))
		return nil, err
	}

	out := make([]*serializer.PageJSON, 0, len(pages))
	for _, page := range pages {
		if !u.authorizer.Can(identity, domain.ActionRead, page) {
			continue
		}
		out = append(out, serializer.SerializePage(page))
	}
	return out, nil
}

// GetPage resolves one page by ID or (urlname, locale) and returns its own
// fields. Not-found and forbidden stay distinct errors all the way up.
func (u *PageUsecase) GetPage(ctx context.Context, identity domain.Identity, ref PageRef) (*serializer.PageJSON, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("request limit reached: %w", err)
	}
	defer u.limiter.Release()

	page, err := u.resolvePage(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !u.authorizer.Can(identity, domain.ActionRead, page) {
		return nil, fmt.Errorf("page %d: %w", page.ID, domain.ErrForbidden)
	}
	return serializer.SerializePage(page), nil
}

// GetPageTree resolves a page (the locale root when ref is empty) and
// serializes its authorized element tree. A structural failure schedules the
// page for background verification before propagating.
func (u *PageUsecase) GetPageTree(ctx context.Context, identity domain.Identity, ref PageRef, query TreeQuery) (*serializer.PageTreeJSON, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("request limit reached: %w", err)
	}
	defer u.limiter.Release()

	var page *domain.Page
	var err error
	if ref.IDOrUrlname == "" {
		page, err = u.repo.GetLanguageRootPage(ctx, u.locale(ref))
	} else {
		page, err = u.resolvePage(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if !u.authorizer.Can(identity, domain.ActionRead, page) {
		return nil, fmt.Errorf("page %d: %w", page.ID, domain.ErrForbidden)
	}

	elements, err := u.pageElements(ctx, page.ID)
	if err != nil {
		u.logger.Error("failed to load page elements",
			zap.Int64("page_id", page.ID),
			zap.Error(err),
		)
		return nil, err
	}

	tree, err := serializer.BuildPageTree(page, elements, u.authorizer, identity, serializer.TreeOptions{
		Full:         query.Full,
		ElementNames: query.ElementNames,
		MaxDepth:     u.maxDepth,
	})
	if err != nil {
		var structural *domain.StructuralError
		if errors.As(err, &structural) {
			u.logger.Error("structural integrity failure during serialization",
				zap.Int64("page_id", structural.PageID),
				zap.Int64("element_id", structural.ElementID),
				zap.String("reason", structural.Reason),
			)
			u.verifier.Schedule(page.ID)
		}
		return nil, err
	}
	return tree, nil
}

// resolvePage implements the ID-first, urlname-fallback lookup.
func (u *PageUsecase) resolvePage(ctx context.Context, ref PageRef) (*domain.Page, error) {
	if id, err := strconv.ParseInt(ref.IDOrUrlname, 10, 64); err == nil {
		page, err := u.getPageByID(ctx, id)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Fall through: a purely numeric urlname is legal.
	}
	return u.getPageBySlug(ctx, ref.IDOrUrlname, u.locale(ref))
}

func (u *PageUsecase) locale(ref PageRef) string {
	if ref.Locale != "" {
		return ref.Locale
	}
	return u.defaultLocale
}

// getPageByID is the cache-aside read for one page record.
func (u *PageUsecase) getPageByID(ctx context.Context, id int64) (*domain.Page, error) {
	cacheKey := fmt.Sprintf("page:%d", id)
	if cached, ok := u.cache.Get(ctx, cacheKey); ok {
		if page, ok := cached.(*domain.Page); ok {
			return page, nil
		}
	}

	page, err := u.repo.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	u.cacheAsync(cacheKey, page)
	return page, nil
}

func (u *PageUsecase) getPageBySlug(ctx context.Context, urlname, locale string) (*domain.Page, error) {
	cacheKey := fmt.Sprintf("page_slug:%s:%s", locale, urlname)
	if cached, ok := u.cache.Get(ctx, cacheKey); ok {
		if page, ok := cached.(*domain.Page); ok {
			return page, nil
		}
	}

	page, err := u.repo.GetPageByUrlname(ctx, urlname, locale)
	if err != nil {
		return nil, err
	}
	u.cacheAsync(cacheKey, page)
	return page, nil
}

// pageElements is the cache-aside read for a page's flat element slice.
func (u *PageUsecase) pageElements(ctx context.Context, pageID int64) ([]*domain.Element, error) {
	cacheKey := fmt.Sprintf("page_elements:%d", pageID)
	if cached, ok := u.cache.Get(ctx, cacheKey); ok {
		if elements, ok := cached.([]*domain.Element); ok {
			return elements, nil
		}
	}

	elements, err := u.repo.ListPageElements(ctx, pageID)
	if err != nil {
		return nil, err
	}
	u.cacheAsync(cacheKey, elements)
	return elements, nil
}

// cacheAsync stores a value without delaying the response.
func (u *PageUsecase) cacheAsync(key string, value interface{}) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		cacheCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := u.cache.Set(cacheCtx, key, value); err != nil {
			u.logger.Warn("failed to cache value", zap.String("key", key), zap.Error(err))
		}
	}()
}

// Shutdown waits for in-flight cache writes.
func (u *PageUsecase) Shutdown() {
	u.wg.Wait()
}
