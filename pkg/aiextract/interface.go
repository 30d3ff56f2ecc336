// Package aiextract defines the AI based extraction of structured values
// from document text.
package aiextract

import (
	"context"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/serrors"
)

// Request asks for values matching Query in Text.
type Request struct {
	Text  string
	Query string
	// Keywords optionally name the fields to report, one class per keyword.
	Keywords []string
}

// Result is the parsed answer of a provider.
type Result struct {
	Items []domain.ExtractionItem
	Model string
	Raw   string
}

// Extractor extracts values from text.
//
//go:generate mockgen -package mockaiextract -source=interface.go -destination=mock/mockaiextract.go *
type Extractor interface {
	// Enabled reports whether the extractor can serve requests.
	Enabled() bool
	// Extract runs one extraction. Providers return serrors.ErrRateLimited when
	// throttled so the caller can retry later.
	Extract(ctx context.Context, req Request) (Result, error)
}

// Disabled is the Extractor used when no provider is configured.
type Disabled struct{}

var _ Extractor = Disabled{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Extract(context.Context, Request) (Result, error) {
	return Result{}, serrors.With(serrors.ErrUnavailable, "AI extraction not available: API key not configured")
}
