// Package urlcheck validates URLs decoded from QR codes: reachability,
// expected domains, expected UTM parameters and landing page texts.
package urlcheck

import (
	"context"
	"qrscanner/pkg/domain"
	"time"
)

// Rules are the optional checks applied to every URL of a scan. A check with
// no expectation is not performed and its result stays nil.
type Rules struct {
	ExpectedDomains []string
	ExpectedUTM     map[string]string
	SearchTexts     []string
	// Timeout bounds the requests made for a single URL.
	Timeout time.Duration
}

// RulesFrom returns the rules configured by opts.
func RulesFrom(opts domain.ScanOptions) Rules {
	return Rules{
		ExpectedDomains: opts.ExpectedDomains,
		ExpectedUTM:     opts.ExpectedUTM,
		SearchTexts:     opts.SearchTexts,
		Timeout:         opts.Timeout(),
	}
}

// Checker validates one URL. Failures are reported in the result, never as
// an error, so a broken link does not fail the scan. The page of the result
// is left to the caller.
//
//go:generate mockgen -package mockurlcheck -source=interface.go -destination=mock/mockurlcheck.go *
type Checker interface {
	Check(ctx context.Context, rawURL string, rules Rules) domain.QrResult
}
