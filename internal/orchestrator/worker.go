package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lamim/medibill/internal/explainer"
	"github.com/lamim/medibill/pkg/models"
	"github.com/schollz/progressbar/v3"
)

func (o *Orchestrator) worker(
	ctx context.Context,
	workerID int,
	jobs <-chan models.ItemJob,
	results chan<- models.ItemResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	workerLogger := o.logger.With("worker_id", workerID)
	workerLogger.Debug("Worker started")

	for job := range jobs {
		select {
		case <-ctx.Done():
			workerLogger.Info("Worker cancelled")
			return
		default:
		}

		startTime := time.Now()
		result := o.processItem(ctx, workerLogger, job)
		result.Duration = time.Since(startTime)

		results <- result
	}

	workerLogger.Debug("Worker finished")
}

func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, job models.ItemJob) models.ItemResult {
	result := models.ItemResult{Job: job}

	explainStart := time.Now()
	explanation, err := o.service.Explain(ctx, job.Item, o.opts.Preferences)
	if err != nil {
		result.Error = err
		result.ErrorKind = explainer.FailureKind(err)
		if ctx.Err() != nil {
			result.ErrorKind = explainer.FailureCanceled
		}
		return result
	}
	result.Explanation = &explanation
	explainDuration := time.Since(explainStart)

	var illustrateDuration time.Duration
	if o.opts.IncludeIllustrations {
		illustrateStart := time.Now()
		illustration, err := o.service.Illustrate(ctx, job.Item)
		illustrateDuration = time.Since(illustrateStart)
		if err != nil && ctx.Err() != nil {
			// Interrupted mid-item: leave it for resume
			result.Error = err
			result.ErrorKind = explainer.FailureCanceled
			return result
		}
		if err != nil {
			// The explanation still stands; the record just has no illustration
			logger.Warn("Illustration failed",
				"item_id", job.Item.ID,
				"kind", explainer.FailureKind(err),
				"error", err)
		} else {
			result.Illustration = &illustration
		}
	}

	logger.Debug("Item processing breakdown",
		"item_id", job.Item.ID,
		"cached", explanation.Cached,
		"explain_ms", explainDuration.Milliseconds(),
		"illustrate_ms", illustrateDuration.Milliseconds())

	return result
}

func (o *Orchestrator) collectResults(results <-chan models.ItemResult, total int, wg *sync.WaitGroup) {
	defer wg.Done()

	var bar *progressbar.ProgressBar
	if o.opts.ShowProgress {
		bar = progressbar.Default(int64(total), "Explaining")
	} else {
		bar = progressbar.DefaultSilent(int64(total), "Explaining")
	}

	for result := range results {
		if result.ErrorKind == explainer.FailureCanceled {
			// Not recorded; resume retries it
			o.logger.Debug("Item cancelled", "item_id", result.Job.Item.ID)
			continue
		}

		record := buildRecord(result, o.opts.Preferences.Language)
		success := result.Error == nil

		if result.Error != nil {
			o.logger.Error("Item failed",
				"item_id", result.Job.Item.ID,
				"item", result.Job.Item.Name,
				"kind", result.ErrorKind,
				"error", result.Error)
		}

		if err := o.recordWriter.WriteRecord(record); err != nil {
			o.logger.Error("Failed to write record",
				"item_id", result.Job.Item.ID,
				"error", err)
			o.updateStats(result, false)
			_ = bar.Add(1)
			continue
		}

		stats := o.updateStats(result, success)
		o.metrics.RecordItem(success)

		if o.checkpointMgr != nil {
			if err := o.checkpointMgr.MarkItemComplete(result.Job.Item.ID, &stats); err != nil {
				o.logger.Warn("Failed to checkpoint item", "item_id", result.Job.Item.ID, "error", err)
			}
		}

		_ = bar.Add(1)
	}

	_ = bar.Finish()
}

// updateStats applies one result and returns a snapshot
func (o *Orchestrator) updateStats(result models.ItemResult, success bool) models.SessionStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	if success {
		o.stats.SuccessCount++
		if result.Explanation != nil && result.Explanation.Cached {
			o.stats.CachedCount++
		}
	} else {
		o.stats.FailureCount++
	}
	o.itemTimeTotal += result.Duration
	return *o.stats
}

func buildRecord(result models.ItemResult, lang models.Language) models.ItemRecord {
	item := result.Job.Item
	record := models.ItemRecord{
		ItemID:     item.ID,
		Item:       item.Name,
		Category:   item.Category,
		Cost:       item.Cost,
		Language:   lang,
		DurationMS: result.Duration.Milliseconds(),
	}

	if result.Error != nil {
		record.Status = models.ItemStatusFailed
		record.ErrorKind = result.ErrorKind
		record.Error = result.Error.Error()
		return record
	}

	record.Status = models.ItemStatusOK
	if result.Explanation != nil {
		exp := result.Explanation.Explanation
		record.Explanation = exp.Explanation
		record.InsuranceStatus = exp.InsuranceStatus
		record.InsuranceNote = exp.InsuranceNote
		record.Disclaimer = exp.Disclaimer
	}
	if result.Illustration != nil {
		record.Illustration = result.Illustration.Description
	}
	return record
}
