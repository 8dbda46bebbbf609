package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/serializer"
)

// ElementUsecase implements the access-scoped element pipeline. Like pages,
// only raw store entities are cached; authorization runs per request.
type ElementUsecase struct {
	repo       domain.ContentRepository
	cache      domain.Cache
	authorizer domain.Authorizer
	verifier   domain.IntegrityScheduler
	logger     *zap.Logger

	limiter  *RateLimiter
	maxDepth int

	wg sync.WaitGroup
}

// NewElementUsecase wires the element pipeline.
func NewElementUsecase(
	repo domain.ContentRepository,
	cache domain.Cache,
	authorizer domain.Authorizer,
	verifier domain.IntegrityScheduler,
	logger *zap.Logger,
	maxConcurrentOps int,
	maxDepth int,
) *ElementUsecase {
	return &ElementUsecase{
		repo:       repo,
		cache:      cache,
		authorizer: authorizer,
		verifier:   verifier,
		logger:     logger,
		limiter:    NewRateLimiter(maxConcurrentOps),
		maxDepth:   maxDepth,
	}
}

// ListElements returns the authorized elements matching the filter. The
// filter dimensions are conjunctive; authorization is the final narrowing
// step. Nested children are not expanded here: the listing serves flat
// records only.
func (u *ElementUsecase) ListElements(ctx context.Context, identity domain.Identity, filter domain.ElementFilter) ([]*serializer.ElementJSON, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("request limit reached: %w", err)
	}
	defer u.limiter.Release()

	elements, err := u.repo.ListElements(ctx, filter)
	if err != nil {
		u.logger.Error("failed to list elements", zap.Error(err))
		return nil, err
	}

	out := make([]*serializer.ElementJSON, 0, len(elements))
	for _, element := range elements {
		if !u.authorizer.Can(identity, domain.ActionRead, element) {
			continue
		}
		out = append(out, serializer.SerializeElement(element))
	}
	return out, nil
}

// GetElement returns one element, 404 when absent and 403 when present but
// unauthorized. With full set, the element's own nested subtree is expanded
// through the tree serializer.
func (u *ElementUsecase) GetElement(ctx context.Context, identity domain.Identity, id int64, full bool) (*serializer.ElementJSON, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("request limit reached: %w", err)
	}
	defer u.limiter.Release()

	element, err := u.getElementByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.authorizer.Can(identity, domain.ActionRead, element) {
		return nil, fmt.Errorf("element %d: %w", id, domain.ErrForbidden)
	}

	if !full {
		return serializer.SerializeElement(element), nil
	}

	// Subtree expansion reuses the page's flat element slice; the tree
	// builder assembles just this element's branch from it.
	siblings, err := u.repo.ListPageElements(ctx, element.PageID)
	if err != nil {
		return nil, err
	}
	node, err := serializer.BuildElementTree(element, siblings, u.authorizer, identity, serializer.TreeOptions{
		Full:     true,
		MaxDepth: u.maxDepth,
	})
	if err != nil {
		var structural *domain.StructuralError
		if errors.As(err, &structural) {
			u.logger.Error("structural integrity failure during serialization",
				zap.Int64("page_id", structural.PageID),
				zap.Int64("element_id", structural.ElementID),
				zap.String("reason", structural.Reason),
			)
			u.verifier.Schedule(element.PageID)
		}
		return nil, err
	}
	return node, nil
}

// getElementByID is the cache-aside read for one element record.
func (u *ElementUsecase) getElementByID(ctx context.Context, id int64) (*domain.Element, error) {
	cacheKey := fmt.Sprintf("element:%d", id)
	if cached, ok := u.cache.Get(ctx, cacheKey); ok {
		if element, ok := cached.(*domain.Element); ok {
			return element, nil
		}
	}

	element, err := u.repo.GetElement(ctx, id)
	if err != nil {
		return nil, err
	}

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		cacheCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := u.cache.Set(cacheCtx, cacheKey, element); err != nil {
			u.logger.Warn("failed to cache element", zap.Int64("id", id), zap.Error(err))
		}
	}()
	return element, nil
}

// Shutdown waits for in-flight cache writes.
func (u *ElementUsecase) Shutdown() {
	u.wg.Wait()
}
