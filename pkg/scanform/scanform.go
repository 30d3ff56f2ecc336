// Package scanform validates scan requests before they are accepted.
package scanform

import (
	"path/filepath"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/serrors"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultTimeout is used when the request does not set one.
	DefaultTimeout = 10
	MinTimeout     = 1
	MaxTimeout     = 60
)

var domainRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9](?:\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9])*$`)

// Request is a scan request as submitted by a form.
type Request struct {
	// FileName is the name of the uploaded file, empty when none was chosen.
	FileName string
	// Domains is a comma separated list of expected domains.
	Domains string
	// UTM is a semicolon separated list of key=value pairs.
	UTM string
	// SearchTexts is a semicolon separated list of texts to look for on the
	// landing pages.
	SearchTexts string
	// Timeout is the per URL timeout in seconds.
	Timeout     string
	ExtractText string
	AIQuery     string
	AIKeywords  []string
}

// Validate checks r and returns the scan options it describes. Errors carry a
// message meant for the user.
func Validate(r Request) (domain.ScanOptions, error) {
	if strings.TrimSpace(r.FileName) == "" {
		return domain.ScanOptions{}, serrors.With(serrors.ErrBadRequest, "Please select a PDF file")
	}
	if !strings.EqualFold(filepath.Ext(r.FileName), ".pdf") {
		return domain.ScanOptions{}, serrors.With(serrors.ErrUnsupportedMedia, "Only PDF files are accepted")
	}

	domains, err := ParseDomains(r.Domains)
	if err != nil {
		return domain.ScanOptions{}, err
	}
	utm, err := ParseUTM(r.UTM)
	if err != nil {
		return domain.ScanOptions{}, err
	}
	timeout, err := ParseTimeout(r.Timeout)
	if err != nil {
		return domain.ScanOptions{}, err
	}

	var keywords []string
	for _, kw := range r.AIKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return domain.ScanOptions{
		ExpectedDomains: domains,
		ExpectedUTM:     utm,
		SearchTexts:     split(r.SearchTexts, ";"),
		TimeoutSeconds:  timeout,
		ExtractText:     parseBool(r.ExtractText),
		AIQuery:         strings.TrimSpace(r.AIQuery),
		AIKeywords:      keywords,
	}, nil
}

// ParseDomains parses a comma separated domain list.
func ParseDomains(s string) ([]string, error) {
	domains := split(s, ",")
	for _, d := range domains {
		if !domainRe.MatchString(d) {
			return nil, serrors.With(serrors.ErrBadRequest, "Invalid domain format: %s", d)
		}
	}

	return domains, nil
}

// ParseUTM parses "key=value;key=value". Every entry must contain exactly one
// "=" with a non-empty key and value.
func ParseUTM(s string) (map[string]string, error) {
	entries := split(s, ";")
	if len(entries) == 0 {
		return nil, nil
	}

	params := make(map[string]string, len(entries))
	for _, e := range entries {
		if strings.Count(e, "=") != 1 {
			return nil, serrors.With(serrors.ErrBadRequest, "Invalid UTM parameter format: %s. Use key=value", e)
		}
		k, v, _ := strings.Cut(e, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			return nil, serrors.With(serrors.ErrBadRequest, "Empty UTM parameter key or value: %s", e)
		}
		params[k] = v
	}

	return params, nil
}

// ParseTimeout parses the timeout in seconds. Empty selects DefaultTimeout.
func ParseTimeout(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeout, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < MinTimeout || n > MaxTimeout {
		return 0, serrors.With(serrors.ErrBadRequest, "Timeout must be between %d and %d seconds", MinTimeout, MaxTimeout)
	}

	return n, nil
}

func split(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
