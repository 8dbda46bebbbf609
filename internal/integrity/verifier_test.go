package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/repositories"
)

func issueKinds(report *Report) []string {
	kinds := make([]string, len(report.Issues))
	for i, issue := range report.Issues {
		kinds[i] = issue.Kind
	}
	return kinds
}

func seedPage(t *testing.T, repo *repositories.MemoryRepository, page *domain.Page, elements ...*domain.Element) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.UpsertPage(ctx, page))
	for _, el := range elements {
		require.NoError(t, repo.UpsertElement(ctx, el))
	}
}

// TestVerifyPageClean tests that a well-formed page reports no issues
func TestVerifyPageClean(t *testing.T) {
	repo := repositories.NewMemoryRepository()
	seedPage(t, repo, &domain.Page{ID: 1, Name: "Home", Urlname: "home", LanguageCode: "en"},
		&domain.Element{ID: 10, Name: "header", PageID: 1, Position: 1, Public: true, Contents: []domain.Content{
			{ID: 100, Name: "title", ElementID: 10, EssenceKind: "text"},
		}},
		&domain.Element{ID: 11, Name: "gallery", PageID: 1, Position: 2, Public: true, Nestable: true},
		&domain.Element{ID: 12, Name: "slide", PageID: 1, ParentElementID: 11, Position: 1, Public: true},
	)

	v := NewVerifier(repo, 2, 8, zaptest.NewLogger(t))
	report := v.VerifyPage(context.Background(), 1)
	assert.NoError(t, report.Err)
	assert.Empty(t, report.Issues)
}

// TestVerifyPageDetectsIssues tests every issue kind on one corrupted page
func TestVerifyPageDetectsIssues(t *testing.T) {
	repo := repositories.NewMemoryRepository()
	seedPage(t, repo, &domain.Page{ID: 1, Name: "Broken", Urlname: "broken", LanguageCode: "en"},
		// Parent reference pointing nowhere.
		&domain.Element{ID: 10, Name: "orphan", PageID: 1, ParentElementID: 999, Position: 1},
		// Parent exists but does not allow nesting.
		&domain.Element{ID: 11, Name: "flat", PageID: 1, Position: 2},
		&domain.Element{ID: 12, Name: "child", PageID: 1, ParentElementID: 11, Position: 1},
		// Duplicate sibling position in the same parent scope.
		&domain.Element{ID: 13, Name: "first", PageID: 1, Position: 3},
		&domain.Element{ID: 14, Name: "second", PageID: 1, Position: 3},
		// Content without a resolvable essence.
		&domain.Element{ID: 15, Name: "hollow", PageID: 1, Position: 4, Contents: []domain.Content{
			{ID: 100, Name: "ghost", ElementID: 15},
		}},
		// Mutual parent cycle, unreachable from the page roots.
		&domain.Element{ID: 16, Name: "loop-a", PageID: 1, ParentElementID: 17, Position: 5, Nestable: true},
		&domain.Element{ID: 17, Name: "loop-b", PageID: 1, ParentElementID: 16, Position: 6, Nestable: true},
	)

	v := NewVerifier(repo, 2, 8, zaptest.NewLogger(t))
	report := v.VerifyPage(context.Background(), 1)
	require.NoError(t, report.Err)

	kinds := issueKinds(report)
	assert.Contains(t, kinds, IssueOrphanParent)
	assert.Contains(t, kinds, IssueNonNestableParent)
	assert.Contains(t, kinds, IssueDuplicatePosition)
	assert.Contains(t, kinds, IssueMissingEssence)
	assert.Contains(t, kinds, IssueCycle)
}

// TestVerifyPagesOrdered tests that concurrent verification preserves
// submission order
func TestVerifyPagesOrdered(t *testing.T) {
	repo := repositories.NewMemoryRepository()
	ctx := context.Background()
	for id := int64(1); id <= 9; id++ {
		seedPage(t, repo, &domain.Page{ID: id, Name: "P", Urlname: "p", LanguageCode: "en"},
			&domain.Element{ID: id * 100, Name: "header", PageID: id, Position: 1, Public: true})
	}

	v := NewVerifier(repo, 4, 8, zaptest.NewLogger(t))
	pageIDs := []int64{9, 3, 7, 1, 5, 2, 8, 4, 6}
	reports, err := v.VerifyPages(ctx, pageIDs)
	require.NoError(t, err)
	require.Len(t, reports, len(pageIDs))
	for i, report := range reports {
		assert.Equal(t, pageIDs[i], report.PageID)
	}
}

// TestSweepAll tests the full sweep and its recorded stats
func TestSweepAll(t *testing.T) {
	repo := repositories.NewMemoryRepository()
	seedPage(t, repo, &domain.Page{ID: 1, Name: "Clean", Urlname: "clean", LanguageCode: "en"},
		&domain.Element{ID: 10, Name: "header", PageID: 1, Position: 1, Public: true})
	seedPage(t, repo, &domain.Page{ID: 2, Name: "Dirty", Urlname: "dirty", LanguageCode: "en"},
		&domain.Element{ID: 20, Name: "orphan", PageID: 2, ParentElementID: 999, Position: 1})

	v := NewVerifier(repo, 2, 8, zaptest.NewLogger(t))
	assert.Nil(t, v.LastSweep())

	stats, err := v.SweepAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 1, stats.PagesDirty)
	assert.Equal(t, 1, stats.Issues)

	recorded := v.LastSweep()
	require.NotNil(t, recorded)
	assert.Equal(t, stats, recorded)
}

// TestScheduleNeverBlocks tests the queue-full drop behavior
func TestScheduleNeverBlocks(t *testing.T) {
	repo := repositories.NewMemoryRepository()
	// Not started: nothing drains the queue.
	v := NewVerifier(repo, 1, 2, zaptest.NewLogger(t))

	assert.True(t, v.Schedule(1))
	assert.True(t, v.Schedule(2))

	done := make(chan bool, 1)
	go func() { done <- v.Schedule(3) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted, "a full queue must drop, not block")
	case <-time.After(time.Second):
		t.Fatal("Schedule blocked on a full queue")
	}
}

// TestVerifierStartStop tests the background drain lifecycle
func TestVerifierStartStop(t *testing.T) {
	repo := repositories.NewMemoryRepository()
	seedPage(t, repo, &domain.Page{ID: 1, Name: "Home", Urlname: "home", LanguageCode: "en"},
		&domain.Element{ID: 10, Name: "header", PageID: 1, Position: 1, Public: true})

	v := NewVerifier(repo, 2, 8, zaptest.NewLogger(t))
	v.Start()
	assert.True(t, v.Schedule(1))
	v.Stop()

	// Stop is idempotent.
	v.Stop()
}
