package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"qrscanner/internal/config"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/metrics"
	"qrscanner/pkg/serrors"
	"qrscanner/pkg/storage"
	"qrscanner/pkg/urlcheck"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Version is reported in the metadata of every scan.
const Version = "2.0.0"

// Options configure how scans are queued and processed. These settings are
// typically derived from application configuration.
type Options struct {
	// MaxAttempts is the maximum number of attempts the background worker should
	// make when processing a scan job before giving up.
	MaxAttempts int
	// Concurrency bounds the URL checks of one page running at once.
	Concurrency int
	// Retention is how long scans and uploads are kept.
	Retention time.Duration
}

// NewOptions constructs an Options value from the provided application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		MaxAttempts: cfg.Scanner.MaxAttempts,
		Concurrency: cfg.Scanner.Concurrency,
		Retention:   cfg.Uploads.Retention,
	}
}

// Dependencies are the collaborators of the scanner.
type Dependencies struct {
	Storage   storage.Storage
	Uploads   Uploads
	Open      Opener
	Checker   urlcheck.Checker
	Extractor aiextract.Extractor
	Publisher Publisher
	Metrics   *metrics.Instruments
}

// scanner is the concrete implementation of the Scanner interface. It
// coordinates the storage, the uploads, the PDF pipeline and the push channel.
type scanner struct {
	options Options
	Dependencies
	now func() time.Time
}

// New creates a new Scanner.
func New(deps Dependencies, options Options) Scanner {
	if deps.Extractor == nil {
		deps.Extractor = aiextract.Disabled{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}

	return &scanner{
		options:      options,
		Dependencies: deps,
		now:          time.Now,
	}
}

// Register stores the upload and a PENDING scan referencing it.
func (s *scanner) Register(ctx context.Context,
	fileName string,
	r io.Reader,
	opts domain.ScanOptions) (*domain.Scan, error) {
	id := domain.NewScanID()
	file, err := s.Uploads.Save(ctx, id, fileName, r)
	if err != nil {
		return nil, err
	}

	res, err := s.Storage.StoreScans(ctx, domain.Scan{
		ID:      id,
		File:    file,
		Options: opts,
		Status:  domain.ScanStatusPending,
	})
	if err != nil {
		s.Uploads.Remove(ctx, id)

		return nil, fmt.Errorf("could not store scan: %w", err)
	}

	logger.Info(ctx, "scan registered", zap.String("scanID", id.String()), zap.String("file", file.Name))

	return &res[0], nil
}

// Start enqueues the job of a PENDING scan. River unique jobs make repeated
// client_ready messages for the same scan harmless.
func (s *scanner) Start(ctx context.Context, scanID domain.ScanID) error {
	ctx = logger.WithFields(ctx, zap.String("scanID", scanID.String()))

	scan, err := s.Storage.ScanByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("could not get scan: %w", err)
	}
	if scan == nil {
		return serrors.With(serrors.ErrNotFound, "scan not found")
	}
	if scan.Status != domain.ScanStatusPending {
		logger.Debug(ctx, "scan is not pending, ignoring start", zap.String("status", string(scan.Status)))

		return nil
	}

	added, err := s.Storage.AddJob(ctx, ScanPDFJob{
		ScanID:      scanID.String(),
		maxAttempts: s.options.MaxAttempts,
	}, nil)
	if err != nil {
		return fmt.Errorf("could not add job: %w", err)
	}
	if !added {
		logger.Debug(ctx, "scan job already queued")
	}

	return nil
}

// Run executes the pipeline of a stored scan. Scan failures are stored and
// published as scan_error and are not returned; only storage failures and
// provider rate limiting are, so the job can be retried. Nothing final is
// published before the outcome is stored.
func (s *scanner) Run(ctx context.Context, scanID domain.ScanID) error {
	ctx = logger.WithFields(ctx, zap.String("scanID", scanID.String()))

	scan, err := s.Storage.UpdateScanByID(ctx, scanID, storage.ScanUpdates{
		Status:            domain.ScanStatusRunning,
		IncrementAttempts: true,
		WhereStatus:       []domain.ScanStatus{domain.ScanStatusPending, domain.ScanStatusRunning},
	})
	if err != nil {
		return fmt.Errorf("could not mark scan running: %w", err)
	}
	if scan == nil {
		return serrors.With(serrors.ErrConflict, "scan is missing or already finished")
	}

	id := scanID.String()
	progress := func(msg string) {
		logger.Debug(ctx, "scan progress", zap.String("message", msg))
		s.Publisher.Publish(ctx, domain.ProgressEvent{ScanID: id, Message: msg})
	}

	started := s.now()
	results, err := s.pipeline(ctx, *scan, progress)
	if errors.Is(err, serrors.ErrRateLimited) {
		progress("AI provider is rate limiting requests, the scan will resume shortly")

		return err
	}

	// the upload stays in place until the scan is stored in a final state so
	// a retried job can read it again
	if err != nil {
		msg := fmt.Sprintf("Scan failed: %s", err)
		logger.Warn(ctx, "scan failed", zap.Error(err))

		if _, uerr := s.Storage.UpdateScanByID(ctx, scanID, storage.ScanUpdates{
			Status:    domain.ScanStatusFailed,
			LastError: &msg,
		}); uerr != nil {
			return fmt.Errorf("could not store scan failure: %w", uerr)
		}
		s.finish(ctx, scanID, "failed", started)
		s.Publisher.Publish(ctx, domain.ErrorEvent{ScanID: id, Error: msg})

		return nil
	}

	empty := ""
	if _, err := s.Storage.UpdateScanByID(ctx, scanID, storage.ScanUpdates{
		Status:    domain.ScanStatusCompleted,
		Result:    results,
		LastError: &empty,
	}); err != nil {
		return fmt.Errorf("could not store scan results: %w", err)
	}
	s.finish(ctx, scanID, "completed", started)

	s.Publisher.Publish(ctx, domain.CompleteEvent{ScanID: id, ScanResults: *results})
	logger.Info(ctx, "scan completed",
		zap.Int("pages", results.Stats.TotalPages),
		zap.Int("urls", results.Stats.TotalURLResults))

	return nil
}

// finish releases the upload of a scan stored in a final state and records
// its outcome.
func (s *scanner) finish(ctx context.Context, scanID domain.ScanID, outcome string, started time.Time) {
	s.Uploads.Remove(ctx, scanID)
	s.Metrics.ScansFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	s.Metrics.ScanDuration.Record(ctx, s.now().Sub(started).Seconds())
}

// ScanNow runs the pipeline on an upload and discards the document afterwards.
func (s *scanner) ScanNow(ctx context.Context,
	fileName string,
	r io.Reader,
	opts domain.ScanOptions) (*domain.ScanResults, error) {
	id := domain.NewScanID()
	ctx = logger.WithFields(ctx, zap.String("scanID", id.String()))

	file, err := s.Uploads.Save(ctx, id, fileName, r)
	if err != nil {
		return nil, err
	}
	defer s.Uploads.Remove(ctx, id)

	results, err := s.pipeline(ctx, domain.Scan{ID: id, File: file, Options: opts}, func(msg string) {
		logger.Debug(ctx, "scan progress", zap.String("message", msg))
	})
	if err != nil {
		return nil, fmt.Errorf("could not scan document: %w", err)
	}

	return results, nil
}

// Result fetches a single scan by ID. It returns a not-found error when no
// matching scan exists.
func (s *scanner) Result(ctx context.Context, scanID domain.ScanID) (*domain.Scan, error) {
	res, err := s.Storage.ScanByID(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("could not get scan results: %w", err)
	}
	if res == nil {
		return nil, serrors.With(serrors.ErrNotFound, "scan not found")
	}

	return res, nil
}

// Scans returns a page of scans filtered by status. It supports cursor-based
// pagination using an RFC3339 timestamp string and returns the next cursor
// when more results are available.
func (s *scanner) Scans(ctx context.Context,
	status domain.ScanStatus,
	cursor string,
	limit uint) ([]domain.Scan, string, error) {
	var cursorTime time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", serrors.Wrap(serrors.ErrBadRequest, err, "invalid cursor")
		}
		cursorTime = t
	}

	page, err := s.Storage.Scans(ctx, status, cursorTime, limit)
	if err != nil {
		return nil, "", fmt.Errorf("could not get scans: %w", err)
	}

	var next string
	if page.NextCursor != nil {
		next = page.NextCursor.Format(time.RFC3339Nano)
	}

	return page.Scans, next, nil
}

// Cleanup purges expired scans and removes their uploads, including orphaned
// upload directories.
func (s *scanner) Cleanup(ctx context.Context) error {
	before := s.now().Add(-s.options.Retention)

	purged, err := s.Storage.PurgeScans(ctx, before)
	if err != nil {
		return fmt.Errorf("could not purge scans: %w", err)
	}
	for _, scan := range purged {
		s.Uploads.Remove(ctx, scan.ID)
	}

	removed, err := s.Uploads.RemoveOlderThan(ctx, before)
	if err != nil {
		return fmt.Errorf("could not remove expired uploads: %w", err)
	}

	logger.Info(ctx, "expired scans cleaned up", zap.Int("scans", len(purged)), zap.Int("uploads", removed))

	return nil
}
