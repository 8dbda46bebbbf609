// Package integrity runs background structural verification of the content
// forest. Serving traversals fail fast on corruption; this package is how
// operators find out what exactly is corrupt.
package integrity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
)

// Issue kinds reported by the verifier.
const (
	IssueCycle             = "cycle"
	IssueOrphanParent      = "orphan_parent"
	IssueNonNestableParent = "non_nestable_parent"
	IssueDuplicatePosition = "duplicate_position"
	IssueMissingEssence    = "missing_essence"
)

// Issue is one structural defect found on a page.
type Issue struct {
	Kind      string `json:"kind"`
	ElementID int64  `json:"element_id,omitempty"`
	ContentID int64  `json:"content_id,omitempty"`
	Detail    string `json:"detail"`
}

// Report is the verification result for one page.
type Report struct {
	PageID    int64     `json:"page_id"`
	Issues    []Issue   `json:"issues"`
	CheckedAt time.Time `json:"checked_at"`
	Err       error     `json:"-"`
}

// SweepStats summarizes the most recent full sweep, exposed on /health.
type SweepStats struct {
	Pages      int       `json:"pages"`
	PagesDirty int       `json:"pages_with_issues"`
	Issues     int       `json:"issues"`
	FinishedAt time.Time `json:"finished_at"`
}

// verifyTask pairs a page with its submission index so worker results can be
// reassembled in request order.
type verifyTask struct {
	index  int
	pageID int64
}

type verifyResult struct {
	index  int
	report *Report
}

// Verifier checks pages with a bounded worker pool. On-demand requests enter
// through Schedule (non-blocking, drained in batches by a background
// goroutine); full sweeps run through SweepAll.
type Verifier struct {
	repo    domain.ContentRepository
	workers int
	logger  *zap.Logger

	queue chan int64
	wg    sync.WaitGroup
	ctx   context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	lastSweep atomic.Value // holds *SweepStats
}

// NewVerifier creates a verifier with the given pool size.
func NewVerifier(repo domain.ContentRepository, workers, queueSize int, logger *zap.Logger) *Verifier {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Verifier{
		repo:    repo,
		workers: workers,
		logger:  logger,
		queue:   make(chan int64, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the background drain loop for scheduled pages.
func (v *Verifier) Start() {
	v.wg.Add(1)
	go v.drainLoop()
	v.logger.Info("integrity verifier started", zap.Int("workers", v.workers))
}

// Stop shuts the verifier down and waits for in-flight work.
func (v *Verifier) Stop() {
	v.stopOnce.Do(func() {
		v.cancel()
		close(v.queue)
		v.wg.Wait()
		v.logger.Info("integrity verifier stopped")
	})
}

// Schedule implements domain.IntegrityScheduler. Never blocks: a full queue
// drops the request, the next sweep will cover the page anyway.
func (v *Verifier) Schedule(pageID int64) bool {
	select {
	case v.queue <- pageID:
		return true
	default:
		v.logger.Warn("verification queue full, dropping page", zap.Int64("page_id", pageID))
		return false
	}
}

// drainLoop batches scheduled pages so a burst of structural errors on one
// hot page does not run the same verification dozens of times.
func (v *Verifier) drainLoop() {
	defer v.wg.Done()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	pending := make(map[int64]struct{})

	flush := func() {
		if len(pending) == 0 {
			return
		}
		ids := make([]int64, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		pending = make(map[int64]struct{})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		reports, err := v.VerifyPages(ctx, ids)
		cancel()
		if err != nil {
			v.logger.Error("scheduled verification failed", zap.Error(err))
			return
		}
		for _, report := range reports {
			v.logReport(report)
		}
	}

	for {
		select {
		case <-v.ctx.Done():
			flush()
			return
		case pageID, ok := <-v.queue:
			if !ok {
				flush()
				return
			}
			pending[pageID] = struct{}{}
			if len(pending) >= 16 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// VerifyPages checks the given pages concurrently and returns one report per
// page, in the order the pages were passed in.
func (v *Verifier) VerifyPages(ctx context.Context, pageIDs []int64) ([]*Report, error) {
	if len(pageIDs) == 0 {
		return []*Report{}, nil
	}

	tasks := make(chan verifyTask)
	results := make(chan verifyResult)

	var workerWg sync.WaitGroup
	for i := 0; i < v.workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for task := range tasks {
				report := v.VerifyPage(ctx, task.pageID)
				select {
				case results <- verifyResult{index: task.index, report: report}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for i, pageID := range pageIDs {
			select {
			case tasks <- verifyTask{index: i, pageID: pageID}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		workerWg.Wait()
		close(results)
	}()

	// Reassemble in submission order.
	reports := make([]*Report, len(pageIDs))
	for result := range results {
		reports[result.index] = result.report
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, report := range reports {
		if report == nil {
			reports[i] = &Report{PageID: pageIDs[i], CheckedAt: time.Now(), Err: context.DeadlineExceeded}
		}
	}
	return reports, nil
}

// SweepAll verifies every page in the store and records the stats for the
// health endpoint.
func (v *Verifier) SweepAll(ctx context.Context) (*SweepStats, error) {
	pageIDs, err := v.repo.ListPageIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := v.VerifyPages(ctx, pageIDs)
	if err != nil {
		return nil, err
	}

	stats := &SweepStats{Pages: len(reports), FinishedAt: time.Now()}
	for _, report := range reports {
		if len(report.Issues) > 0 {
			stats.PagesDirty++
			stats.Issues += len(report.Issues)
			v.logReport(report)
		}
	}
	v.lastSweep.Store(stats)
	return stats, nil
}

// LastSweep returns the stats of the most recent sweep, or nil before the
// first one finishes.
func (v *Verifier) LastSweep() *SweepStats {
	stats, _ := v.lastSweep.Load().(*SweepStats)
	return stats
}

// VerifyPage runs every structural check over one page's element forest.
func (v *Verifier) VerifyPage(ctx context.Context, pageID int64) *Report {
	report := &Report{PageID: pageID, Issues: []Issue{}, CheckedAt: time.Now()}

	elements, err := v.repo.ListPageElements(ctx, pageID)
	if err != nil {
		report.Err = err
		return report
	}

	byID := make(map[int64]*domain.Element, len(elements))
	for _, el := range elements {
		byID[el.ID] = el
	}

	// Sibling position uniqueness per parent scope.
	positions := make(map[[2]int64]int64) // (parent, position) → first element seen
	for _, el := range elements {
		key := [2]int64{el.ParentElementID, int64(el.Position)}
		if firstID, dup := positions[key]; dup {
			report.Issues = append(report.Issues, Issue{
				Kind:      IssueDuplicatePosition,
				ElementID: el.ID,
				Detail:    positionDetail(el, firstID),
			})
		} else {
			positions[key] = el.ID
		}
	}

	for _, el := range elements {
		// Parent references must resolve within the page, and only to
		// elements whose definition allows nesting.
		if el.ParentElementID != 0 {
			parent, ok := byID[el.ParentElementID]
			if !ok {
				report.Issues = append(report.Issues, Issue{
					Kind:      IssueOrphanParent,
					ElementID: el.ID,
					Detail:    "parent element does not exist on this page",
				})
			} else if !parent.Nestable {
				report.Issues = append(report.Issues, Issue{
					Kind:      IssueNonNestableParent,
					ElementID: el.ID,
					Detail:    "parent element definition does not allow nested elements",
				})
			}
		}

		// Essence-less contents are corruption, not blank values.
		for _, content := range el.Contents {
			if content.EssenceKind == "" {
				report.Issues = append(report.Issues, Issue{
					Kind:      IssueMissingEssence,
					ElementID: el.ID,
					ContentID: content.ID,
					Detail:    "content has no resolvable essence",
				})
			}
		}
	}

	// Cycle detection over parent chains, including cycles unreachable from
	// the page roots (which the serving traversal never visits).
	state := make(map[int64]int, len(elements)) // 0 unseen, 1 on path, 2 done
	for _, el := range elements {
		id := el.ID
		var path []int64
		for id != 0 {
			current, ok := byID[id]
			if !ok {
				break // orphan, already reported
			}
			if state[id] == 2 {
				break
			}
			if state[id] == 1 {
				report.Issues = append(report.Issues, Issue{
					Kind:      IssueCycle,
					ElementID: id,
					Detail:    "parent chain loops back on itself",
				})
				break
			}
			state[id] = 1
			path = append(path, id)
			id = current.ParentElementID
		}
		for _, visited := range path {
			state[visited] = 2
		}
	}

	return report
}

func (v *Verifier) logReport(report *Report) {
	if report.Err != nil {
		v.logger.Error("page verification failed",
			zap.Int64("page_id", report.PageID),
			zap.Error(report.Err),
		)
		return
	}
	if len(report.Issues) == 0 {
		v.logger.Debug("page verified clean", zap.Int64("page_id", report.PageID))
		return
	}
	for _, issue := range report.Issues {
		v.logger.Warn("structural issue",
			zap.Int64("page_id", report.PageID),
			zap.String("kind", issue.Kind),
			zap.Int64("element_id", issue.ElementID),
			zap.String("detail", issue.Detail),
		)
	}
}

func positionDetail(el *domain.Element, firstID int64) string {
	return fmt.Sprintf("position %d already taken by element %d in the same parent scope", el.Position, firstID)
}

// Compile-time interface check.
var _ domain.IntegrityScheduler = (*Verifier)(nil)
