package storage

import (
	"context"
	"qrscanner/pkg/domain"
	"time"
)

// ScanUpdates describes a set of optional fields that can be applied to an
// existing scan during an update. Only non-nil fields will be updated.
type ScanUpdates struct {
	// Status is the new status to set for the scan. Empty keeps the current one.
	Status domain.ScanStatus
	// Result, when provided, replaces the stored scan result payload.
	Result *domain.ScanResults
	// LastError, when provided, sets the last error text. An empty string value
	// indicates the error should be cleared (set to NULL).
	LastError *string
	// IncrementAttempts increments the attempts counter by one.
	IncrementAttempts bool
	// WhereStatus, when non-empty, restricts the update to scans currently in
	// one of the given statuses.
	WhereStatus []domain.ScanStatus
}

// ScanPage groups a page of scans together with an optional NextCursor used
// for pagination.
type ScanPage struct {
	// Scans contains the current page of scan records.
	Scans []domain.Scan
	// NextCursor points to the timestamp to be used as the cursor for fetching
	// the next page. It is nil when there is no next page.
	NextCursor *time.Time
}

// ScanStorage defines CRUD and query operations related to scans. Soft-deleted
// scans are never returned.
type ScanStorage interface {
	// StoreScans inserts one or more scans and returns the stored rows as they
	// exist in the database (including generated fields).
	StoreScans(ctx context.Context, scans ...domain.Scan) ([]domain.Scan, error)
	// UpdateScanByID updates a single scan identified by its ID and returns the
	// updated row, or nil when no row matched (missing, deleted, or excluded by
	// WhereStatus). updated_at is set automatically.
	UpdateScanByID(ctx context.Context, ID domain.ScanID, updates ScanUpdates) (*domain.Scan, error)
	// ScanByID fetches a scan by its ID. Returns nil when not found.
	ScanByID(ctx context.Context, ID domain.ScanID) (*domain.Scan, error)
	// Scans returns a page of scans created before the optional cursor time,
	// newest first, limited by limit. If status is non-empty, results are
	// filtered to records with the given status.
	Scans(ctx context.Context, status domain.ScanStatus, cursor time.Time, limit uint) (ScanPage, error)
	// PurgeScans soft deletes every scan created before the given time and
	// returns the purged rows.
	PurgeScans(ctx context.Context, before time.Time) ([]domain.Scan, error)
}
