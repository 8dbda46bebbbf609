package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/contentd/internal/domain"
)

// TestMemoryRepositoryConformance runs the shared backend suite
func TestMemoryRepositoryConformance(t *testing.T) {
	repo := NewMemoryRepository()
	defer repo.Close()

	ctx := context.Background()
	seedFixture(t, ctx, repo)
	runConformance(t, ctx, repo)
}

// TestMemoryRepositoryUpsertReindexes tests that replacing an element moves
// its index postings instead of leaving stale ones
func TestMemoryRepositoryUpsertReindexes(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertElement(ctx, &domain.Element{
		ID: 1, Name: "header", PageID: 10, Position: 1, Public: true,
	}))

	// Rename and move the element, and nest it under another one.
	require.NoError(t, repo.UpsertElement(ctx, &domain.Element{
		ID: 1, Name: "footer", PageID: 20, ParentElementID: 5, Position: 1, Public: true,
	}))

	elements, err := repo.ListElements(ctx, domain.ElementFilter{Names: []string{"header"}})
	require.NoError(t, err)
	assert.Empty(t, elements, "stale name posting survived the upsert")

	elements, err = repo.ListElements(ctx, domain.ElementFilter{PageID: 10})
	require.NoError(t, err)
	assert.Empty(t, elements, "stale page posting survived the upsert")

	elements, err = repo.ListElements(ctx, domain.ElementFilter{NotNested: true})
	require.NoError(t, err)
	assert.Empty(t, elements, "stale not-nested posting survived the upsert")

	elements, err = repo.ListElements(ctx, domain.ElementFilter{Names: []string{"footer"}, PageID: 20})
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, int64(1), elements[0].ID)
}

// TestMemoryRepositoryUpsertPageMovesSlug tests slug index maintenance
func TestMemoryRepositoryUpsertPageMovesSlug(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertPage(ctx, &domain.Page{
		ID: 1, Name: "Home", Urlname: "home", LanguageCode: "en",
	}))
	require.NoError(t, repo.UpsertPage(ctx, &domain.Page{
		ID: 1, Name: "Start", Urlname: "start", LanguageCode: "en",
	}))

	_, err := repo.GetPageByUrlname(ctx, "home", "en")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, err := repo.GetPageByUrlname(ctx, "start", "en")
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.ID)
}

// TestMemoryRepositoryReturnsCopies tests that callers cannot mutate stored
// records through returned pointers
func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertElement(ctx, &domain.Element{
		ID: 1, Name: "header", PageID: 1, Public: true,
		TagList: []string{"layout"},
		Contents: []domain.Content{
			{ID: 10, Name: "title", ElementID: 1, EssenceKind: "text"},
		},
	}))

	element, err := repo.GetElement(ctx, 1)
	require.NoError(t, err)
	element.Name = "mutated"
	element.TagList[0] = "mutated"
	element.Contents[0].Name = "mutated"

	fresh, err := repo.GetElement(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "header", fresh.Name)
	assert.Equal(t, "layout", fresh.TagList[0])
	assert.Equal(t, "title", fresh.Contents[0].Name)
}

// TestMemoryRepositoryListOrder tests sibling position ordering
func TestMemoryRepositoryListOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	// Insert out of position order.
	for _, el := range []*domain.Element{
		{ID: 3, Name: "c", PageID: 1, Position: 3, Public: true},
		{ID: 1, Name: "a", PageID: 1, Position: 1, Public: true},
		{ID: 2, Name: "b", PageID: 1, Position: 2, Public: true},
	} {
		require.NoError(t, repo.UpsertElement(ctx, el))
	}

	elements, err := repo.ListPageElements(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, elementIDs(elements))
}
