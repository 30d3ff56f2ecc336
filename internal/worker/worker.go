package worker

import (
	"context"
	"fmt"
	"log/slog"
	"qrscanner/internal/config"
	"qrscanner/internal/scanner"
	"qrscanner/pkg/logger"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.uber.org/zap/exp/zapslog"
)

const (
	defaultWorkers         = 10
	defaultRetrySnooze     = time.Minute
	defaultCleanupInterval = time.Hour
)

// Options configure the background processing of scans.
type Options struct {
	// Workers is the number of scans processed at once.
	Workers int
	// RetrySnooze delays the scans interrupted by AI provider rate limiting.
	RetrySnooze time.Duration
	// CleanupInterval is the period of the expired scans cleanup.
	CleanupInterval time.Duration
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Workers:         cfg.Scanner.Workers,
		RetrySnooze:     cfg.Scanner.RetrySnooze,
		CleanupInterval: cfg.Uploads.CleanupInterval,
	}
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.RetrySnooze <= 0 {
		o.RetrySnooze = defaultRetrySnooze
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
}

// Start registers the scan and cleanup workers and starts processing jobs.
// The cleanup runs once on start and then periodically.
func Start(ctx context.Context,
	dbPool *pgxpool.Pool,
	scanner scanner.Scanner,
	opts Options) (*river.Client[pgx.Tx], error) {
	opts.setDefaults()

	workers := river.NewWorkers()
	river.AddWorker(workers, NewScanPDFWorker(scanner, opts.RetrySnooze))
	river.AddWorker(workers, NewCleanupWorker(scanner))

	riverClient, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: opts.Workers},
		},
		Workers:      workers,
		PeriodicJobs: PeriodicJobs(opts),
		Logger:       slog.New(zapslog.NewHandler(logger.Get(ctx).Core())),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create river queue client: %w", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("could not start river queue client: %w", err)
	}

	return riverClient, nil
}

// PeriodicJobs returns the jobs River schedules on its own.
func PeriodicJobs(opts Options) []*river.PeriodicJob {
	opts.setDefaults()

	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(opts.CleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return scanner.CleanupJob{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
