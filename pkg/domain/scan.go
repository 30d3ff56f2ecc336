package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanID uniquely identifies a scan.
// It wraps uuid.UUID to provide type safety at the domain layer.
type ScanID uuid.UUID

// String returns the canonical textual form used on the push channel.
func (id ScanID) String() string { return uuid.UUID(id).String() }

// ParseScanID parses the textual form of a ScanID.
func ParseScanID(s string) (ScanID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ScanID{}, fmt.Errorf("could not parse scan id: %w", err)
	}

	return ScanID(id), nil
}

func (id ScanID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ScanID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// NewScanID returns a random ScanID.
func NewScanID() ScanID { return ScanID(uuid.New()) }

// ScanStatus represents the lifecycle state of a scan.
type ScanStatus string

const (
	// ScanStatusPending indicates the upload is stored and waits for a client to attach.
	ScanStatusPending ScanStatus = "PENDING"
	// ScanStatusRunning indicates a worker picked the scan up.
	ScanStatusRunning ScanStatus = "RUNNING"
	// ScanStatusCompleted indicates the scan finished and Result is set.
	ScanStatusCompleted ScanStatus = "COMPLETED"
	// ScanStatusFailed indicates the scan ended with an error; see LastError.
	ScanStatusFailed ScanStatus = "FAILED"
)

// ScanOptions are the user supplied settings of a scan.
type ScanOptions struct {
	// ExpectedDomains enables the domain check when non-empty.
	ExpectedDomains []string `json:"expected_domains,omitempty"`
	// ExpectedUTM enables the UTM check when non-empty.
	ExpectedUTM map[string]string `json:"expected_utm_params,omitempty"`
	// SearchTexts enables the page text check when non-empty.
	SearchTexts []string `json:"search_texts,omitempty"`
	// TimeoutSeconds bounds each HTTP validation request.
	TimeoutSeconds int `json:"timeout"`
	// ExtractText collects text lines from odd pages.
	ExtractText bool `json:"extract_text"`
	// AIQuery enables AI extraction when non-empty.
	AIQuery string `json:"ai_query,omitempty"`
	// AIKeywords optionally names the fields the AI extraction should look for.
	AIKeywords []string `json:"ai_keywords,omitempty"`
}

// Timeout returns TimeoutSeconds as a duration.
func (o ScanOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// AdvancedValidation reports whether any of the optional URL checks is configured.
func (o ScanOptions) AdvancedValidation() bool {
	return len(o.ExpectedDomains) > 0 || len(o.ExpectedUTM) > 0 || len(o.SearchTexts) > 0
}

// AIEnabled reports whether AI extraction was requested.
func (o ScanOptions) AIEnabled() bool { return o.AIQuery != "" }

// FileInfo describes the uploaded document.
type FileInfo struct {
	Name string `json:"filename"`
	Path string `json:"-"`
	Size int64  `json:"size"`
}

// Scan represents a single uploaded document and its processing state.
type Scan struct {
	// ID is the unique identifier of the scan.
	ID ScanID `json:"id"`
	// File is the stored upload.
	File FileInfo `json:"file"`
	// Options are the settings the scan runs with.
	Options ScanOptions `json:"options"`
	// Status is the current lifecycle state of the scan.
	Status ScanStatus `json:"status"`
	// Result is set once the scan completed.
	Result *ScanResults `json:"result,omitempty"`

	// Attempts is the number of times a worker started this scan.
	Attempts uint `json:"attempts"`
	// LastError stores the most recent failure message.
	LastError string `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// DeletedAt marks when the scan was purged; zero value means not deleted.
	DeletedAt time.Time `json:"-"`
}
