package scanner

import (
	"context"
	"io"
	"qrscanner/pkg/domain"
	"time"
)

//go:generate mockgen -package mockscanner -source=interface.go -destination=mock/mockscanner.go *
type Scanner interface {
	// Register stores the uploaded document and a PENDING scan for it. The
	// scan starts once a push channel client reports ready.
	Register(ctx context.Context, fileName string, r io.Reader, opts domain.ScanOptions) (*domain.Scan, error)
	// Start enqueues the processing of a PENDING scan. Other scans are ignored.
	Start(ctx context.Context, scanID domain.ScanID) error
	// Run processes a scan, publishing progress and the outcome on the push
	// channel. The uploaded document is removed afterwards.
	Run(ctx context.Context, scanID domain.ScanID) error
	// ScanNow scans a document synchronously without storing it.
	ScanNow(ctx context.Context, fileName string, r io.Reader, opts domain.ScanOptions) (*domain.ScanResults, error)
	// Result returns a stored scan.
	Result(ctx context.Context, scanID domain.ScanID) (*domain.Scan, error)
	// Scans returns a page of stored scans, newest first.
	Scans(ctx context.Context, status domain.ScanStatus, cursor string, limit uint) ([]domain.Scan, string, error)
	// Cleanup purges the scans and uploads older than the retention.
	Cleanup(ctx context.Context) error
}

// Document is an opened PDF.
type Document interface {
	PageCount() int
	// QRCodes returns the decoded QR code values of a page, 1-based.
	QRCodes(ctx context.Context, page int) ([]string, error)
	// Text returns the text lines of a page joined by newlines.
	Text(page int) (string, error)
	Close() error
}

// Opener opens the document stored at path.
type Opener func(path string) (Document, error)

// Publisher broadcasts events on the push channel.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// Uploads stores uploaded documents.
type Uploads interface {
	Save(ctx context.Context, id domain.ScanID, name string, r io.Reader) (domain.FileInfo, error)
	Remove(ctx context.Context, id domain.ScanID)
	RemoveOlderThan(ctx context.Context, before time.Time) (int, error)
}
