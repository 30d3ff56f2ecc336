package storage

import (
	"context"

	"github.com/riverqueue/river"
)

// JobStorage enqueues background jobs in the same database as the scans, so a
// job inserted through a TxStorage only becomes visible once the transaction
// commits.
//
//	inserted, err := s.AddJob(ctx, scanner.ScanPDFJob{ScanID: id}, nil)
type JobStorage interface {
	// AddJob enqueues a new job with the given arguments. It reports false when
	// the job was skipped as a duplicate of a unique job.
	AddJob(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (bool, error)
}
