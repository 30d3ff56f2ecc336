package urlcheck

import (
	"math"
	"net/url"
	"qrscanner/pkg/domain"
	"strings"
)

// IsWebURL reports whether s is an http or https URL, the only QR payloads
// that are validated.
func IsWebURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))

	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// UTMParams returns the utm_* parameters of query, first value wins.
func UTMParams(query url.Values) map[string]string {
	var out map[string]string
	for k, v := range query {
		if !strings.HasPrefix(strings.ToLower(k), "utm_") || len(v) == 0 {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v[0]
	}

	return out
}

// DomainValid reports whether host is one of expected or a subdomain of one.
func DomainValid(host string, expected []string) *bool {
	if len(expected) == 0 {
		return nil
	}

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range expected {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && (host == d || strings.HasSuffix(host, "."+d)) {
			return ptr(true)
		}
	}

	return ptr(false)
}

// UTMValid reports whether every expected parameter is present with the
// expected value.
func UTMValid(params map[string]string, expected map[string]string) *bool {
	if len(expected) == 0 {
		return nil
	}
	for k, want := range expected {
		if got, ok := params[k]; !ok || got != want {
			return ptr(false)
		}
	}

	return ptr(true)
}

// TextValid reports whether any of texts occurs in body, ignoring case.
func TextValid(body string, texts []string) *bool {
	if len(texts) == 0 {
		return nil
	}

	body = strings.ToLower(body)
	for _, t := range texts {
		if t != "" && strings.Contains(body, strings.ToLower(t)) {
			return ptr(true)
		}
	}

	return ptr(false)
}

// Summary aggregates the checks of results. The average response time is
// taken over all results, rounded to two decimals.
func Summary(results []domain.QrResult) domain.ValidationSummary {
	s := domain.ValidationSummary{TotalURLs: len(results)}
	if len(results) == 0 {
		return s
	}

	count := func(v *bool, valid, invalid *int) {
		if v == nil {
			return
		}
		if *v {
			*valid++
		} else {
			*invalid++
		}
	}

	var total float64
	for _, r := range results {
		if r.HTTPStatus != nil && *r.HTTPStatus == 200 {
			s.HTTPSuccess++
		} else {
			s.HTTPErrors++
		}
		count(r.DomainValid, &s.DomainValid, &s.DomainInvalid)
		count(r.UTMValid, &s.UTMValid, &s.UTMInvalid)
		count(r.TextSearchValid, &s.TextValid, &s.TextInvalid)
		if r.ResponseTimeMS != nil {
			total += *r.ResponseTimeMS
		}
	}
	s.AvgResponseTimeMS = ptr(Round(total/float64(len(results)), 2))

	return s
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))

	return math.Round(v*p) / p
}

func ptr[T any](v T) *T { return &v }
