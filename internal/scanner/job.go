package scanner

import (
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ScanPDFJob contains the arguments of the job that runs the pipeline of one
// stored scan. The scan ID is the unique key so a scan is processed by at most
// one job, however many times its client reports ready.
type ScanPDFJob struct {
	ScanID string `json:"scan_id" river:"unique"`

	// maxAttempts configures the maximum number of times River should retry the job.
	maxAttempts int
}

// Kind returns the River job kind used to register and dispatch the scan worker.
func (args ScanPDFJob) Kind() string { return "ScanPDFJob" }

// InsertOpts makes the job unique per scan in every non-final state.
func (args ScanPDFJob) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: args.maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStateCompleted,
				rivertype.JobStatePending,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// CleanupJob removes expired scans and their uploads.
type CleanupJob struct{}

func (CleanupJob) Kind() string { return "CleanupJob" }

// InsertOpts keeps at most one cleanup queued per period.
func (CleanupJob) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
		},
	}
}
