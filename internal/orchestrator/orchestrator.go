// Package orchestrator runs the explainer over a list of bill items with a
// bounded worker pool and records one result line per item.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lamim/medibill/internal/checkpoint"
	"github.com/lamim/medibill/internal/metrics"
	"github.com/lamim/medibill/pkg/models"
)

// ItemService explains and illustrates single items. *explainer.Service implements it.
type ItemService interface {
	Explain(ctx context.Context, item models.BillItem, prefs models.Preferences) (models.ExplanationResult, error)
	Illustrate(ctx context.Context, item models.BillItem) (models.IllustrationResult, error)
}

// RecordWriter receives one record per finished item
type RecordWriter interface {
	WriteRecord(record models.ItemRecord) error
}

// Options configures a batch run
type Options struct {
	Concurrency          int
	Preferences          models.Preferences
	IncludeIllustrations bool
	ShowProgress         bool
}

// Orchestrator manages a batch run
type Orchestrator struct {
	opts          Options
	service       ItemService
	recordWriter  RecordWriter
	checkpointMgr *checkpoint.Manager
	metrics       *metrics.Collector
	resumeMode    bool
	logger        *slog.Logger

	statsMu       sync.Mutex
	stats         *models.SessionStats
	itemTimeTotal time.Duration
}

// New creates a new orchestrator. checkpointMgr may be nil.
func New(
	opts Options,
	service ItemService,
	recordWriter RecordWriter,
	checkpointMgr *checkpoint.Manager,
	resumeMode bool,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Preferences.Language == "" {
		opts.Preferences.Language = models.LanguageEnglish
	}
	if collector == nil {
		collector = metrics.NewCollector(logger)
	}

	stats := &models.SessionStats{StartTime: time.Now()}

	// Counts carry over from the interrupted run
	if resumeMode && checkpointMgr != nil {
		cp := checkpointMgr.GetCheckpoint()
		stats = &cp.Stats
		stats.StartTime = time.Now()
	}

	return &Orchestrator{
		opts:          opts,
		service:       service,
		recordWriter:  recordWriter,
		checkpointMgr: checkpointMgr,
		metrics:       collector,
		resumeMode:    resumeMode,
		logger:        logger.With("component", "orchestrator"),
		stats:         stats,
	}
}

// Run processes items. In resume mode the item list comes from the checkpoint
// and items with a written result are skipped. A canceled context stops the
// run; items in flight are not recorded so a resume picks them up again.
func (o *Orchestrator) Run(ctx context.Context, items []models.BillItem) (runErr error) {
	defer func() {
		if o.checkpointMgr == nil {
			return
		}
		var checkpointCloseErr error
		if err := o.checkpointMgr.SaveSync(); err != nil {
			o.logger.Error("Failed to save final checkpoint", "error", err)
			checkpointCloseErr = err
		}
		if err := o.checkpointMgr.Close(); err != nil {
			o.logger.Error("Failed to close checkpoint manager", "error", err)
			if checkpointCloseErr == nil {
				checkpointCloseErr = err
			}
		}
		if runErr == nil && checkpointCloseErr != nil {
			runErr = fmt.Errorf("checkpoint save failed during shutdown: %w", checkpointCloseErr)
		}
	}()

	pending := items
	if o.resumeMode && o.checkpointMgr != nil {
		cp := o.checkpointMgr.GetCheckpoint()
		var missing []int64
		pending, missing = checkpoint.PendingItems(cp, items)
		if len(missing) > 0 {
			o.logger.Warn("Checkpointed items no longer in the store", "item_ids", missing)
		}
		o.logger.Info("Resuming from checkpoint",
			"total", checkpoint.GetTotalCount(cp),
			"completed", checkpoint.GetCompletedCount(cp),
			"pending", len(pending),
			"progress", fmt.Sprintf("%.1f%%", checkpoint.GetProgressPercentage(cp)))
	} else {
		o.stats.TotalItems = len(items)
	}

	o.logger.Info("Starting batch run",
		"items", len(pending),
		"concurrency", o.opts.Concurrency,
		"language", o.opts.Preferences.Language,
		"family_mode", o.opts.Preferences.FamilyMode,
		"illustrations", o.opts.IncludeIllustrations,
		"resume_mode", o.resumeMode)

	o.processItems(ctx, pending)

	o.statsMu.Lock()
	o.stats.EndTime = time.Now()
	o.stats.TotalDuration = o.stats.EndTime.Sub(o.stats.StartTime)
	processed := o.stats.SuccessCount + o.stats.FailureCount
	if processed > 0 && o.itemTimeTotal > 0 {
		o.stats.AverageDuration = o.itemTimeTotal / time.Duration(processed)
	}
	stats := *o.stats
	o.statsMu.Unlock()

	if err := ctx.Err(); err != nil {
		o.logger.Warn("Batch run interrupted",
			"successful", stats.SuccessCount,
			"failed", stats.FailureCount)
		return fmt.Errorf("batch run interrupted: %w", err)
	}

	if o.checkpointMgr != nil {
		if err := o.checkpointMgr.MarkComplete(&stats); err != nil {
			o.logger.Warn("Failed to save final checkpoint", "error", err)
		}
	}

	o.logger.Info("Batch run completed",
		"total_items", stats.TotalItems,
		"successful", stats.SuccessCount,
		"failed", stats.FailureCount,
		"cached", stats.CachedCount,
		"duration", stats.TotalDuration,
		"average_per_item", stats.AverageDuration)

	if stats.FailureCount > 0 && stats.TotalItems > 0 {
		failureRate := float64(stats.FailureCount) / float64(stats.TotalItems) * 100
		o.logger.Warn("Batch run completed with failures",
			"failure_rate", fmt.Sprintf("%.2f%%", failureRate))
	}

	return nil
}

func (o *Orchestrator) processItems(ctx context.Context, items []models.BillItem) {
	if len(items) == 0 {
		o.logger.Info("No items to process")
		return
	}

	workers := o.opts.Concurrency
	if workers > len(items) {
		workers = len(items)
	}

	jobsChan := make(chan models.ItemJob)
	resultsChan := make(chan models.ItemResult, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go o.worker(ctx, i, jobsChan, resultsChan, &wg)
	}
	o.metrics.SetActiveWorkers(workers)

	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go o.collectResults(resultsChan, len(items), &collectorWg)

send:
	for i, item := range items {
		select {
		case jobsChan <- models.ItemJob{ID: i, Item: item}:
		case <-ctx.Done():
			o.logger.Info("Stopped dispatching items", "dispatched", i, "remaining", len(items)-i)
			break send
		}
	}
	close(jobsChan)

	wg.Wait()
	o.metrics.SetActiveWorkers(0)
	close(resultsChan)

	collectorWg.Wait()
}

// GetStats returns a snapshot of the session statistics
func (o *Orchestrator) GetStats() models.SessionStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return *o.stats
}
