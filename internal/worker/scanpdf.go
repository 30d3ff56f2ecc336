package worker

import (
	"context"
	"errors"
	"fmt"
	"qrscanner/internal/scanner"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"
	"sync"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

// ScanPDFWorker runs the pipeline of stored scans.
//
// When the AI provider rate limits a scan, the job is snoozed and the worker
// pauses: jobs picked up before the pause ends are snoozed until then without
// running, so concurrent scans do not keep hitting an exhausted quota.
type ScanPDFWorker struct {
	river.WorkerDefaults[scanner.ScanPDFJob]

	scanner scanner.Scanner
	snooze  time.Duration
	now     func() time.Time

	// mu protects pausedUntil.
	mu          sync.Mutex
	pausedUntil time.Time
}

// NewScanPDFWorker creates a worker snoozing rate limited scans for snooze.
func NewScanPDFWorker(scanner scanner.Scanner, snooze time.Duration) *ScanPDFWorker {
	if snooze <= 0 {
		snooze = defaultRetrySnooze
	}

	return &ScanPDFWorker{
		scanner: scanner,
		snooze:  snooze,
		now:     time.Now,
	}
}

// Work executes a single scan job and maps errors to River actions: missing or
// finished scans cancel the job, rate limiting snoozes it and other errors are
// retried.
func (w *ScanPDFWorker) Work(ctx context.Context, job *river.Job[scanner.ScanPDFJob]) error {
	ctx = logger.WithFields(ctx, zap.Int64("jobID", job.ID), zap.String("scanID", job.Args.ScanID))

	id, err := domain.ParseScanID(job.Args.ScanID)
	if err != nil {
		return river.JobCancel(err) //nolint: wrapcheck
	}

	if wait := w.paused(); wait > 0 {
		logger.Debug(ctx, "scans are paused by rate limiting", zap.Duration("wait", wait))

		return river.JobSnooze(wait) //nolint: wrapcheck
	}

	if err := w.scanner.Run(ctx, id); err != nil {
		if errors.Is(err, serrors.ErrConflict) {
			return river.JobCancel(err) //nolint: wrapcheck
		}

		if errors.Is(err, serrors.ErrRateLimited) {
			logger.Warn(ctx, "scan rate limited, snoozing", zap.Duration("snooze", w.snooze), zap.Error(err))
			w.pause()

			return river.JobSnooze(w.snooze) //nolint: wrapcheck
		}

		logger.Error(ctx, "error in running scan", zap.Error(err))

		return fmt.Errorf("could not run scan: %w", err)
	}

	logger.Info(ctx, "scan job done")

	return nil
}

func (w *ScanPDFWorker) paused() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.pausedUntil.Sub(w.now())
}

func (w *ScanPDFWorker) pause() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if until := w.now().Add(w.snooze); until.After(w.pausedUntil) {
		w.pausedUntil = until
	}
}

// CleanupWorker purges expired scans and uploads.
type CleanupWorker struct {
	river.WorkerDefaults[scanner.CleanupJob]

	scanner scanner.Scanner
}

func NewCleanupWorker(scanner scanner.Scanner) *CleanupWorker {
	return &CleanupWorker{scanner: scanner}
}

func (w *CleanupWorker) Work(ctx context.Context, job *river.Job[scanner.CleanupJob]) error {
	ctx = logger.WithFields(ctx, zap.Int64("jobID", job.ID))

	if err := w.scanner.Cleanup(ctx); err != nil {
		return fmt.Errorf("could not clean up scans: %w", err)
	}

	return nil
}
