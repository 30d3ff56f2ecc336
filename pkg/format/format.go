// Package format turns raw scan values into display strings.
package format

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// NotApplicable is displayed for values that are absent.
const NotApplicable = "N/A"

const ellipsis = "..."

// URL returns raw shortened to at most limit runes. Long URLs keep their head
// and tail around an ellipsis so both the host and the query stay readable.
// A non-positive limit disables shortening.
func URL(raw string, limit int) string {
	raw = strings.TrimSpace(raw)
	n := utf8.RuneCountInString(raw)
	if limit <= 0 || n <= limit {
		return raw
	}
	if limit <= len(ellipsis) {
		return string([]rune(raw)[:limit])
	}

	r := []rune(raw)
	keep := limit - len(ellipsis)
	head := (keep + 1) / 2
	tail := keep - head

	return string(r[:head]) + ellipsis + string(r[n-tail:])
}

// HTTPStatus returns a label such as "200 OK". Unknown codes are rendered
// without text.
func HTTPStatus(status *int) string {
	if status == nil {
		return NotApplicable
	}
	if text := http.StatusText(*status); text != "" {
		return fmt.Sprintf("%d %s", *status, text)
	}

	return strconv.Itoa(*status)
}

// Status classes returned by StatusClass.
const (
	ClassSuccess     = "success"
	ClassRedirect    = "redirect"
	ClassClientError = "client-error"
	ClassServerError = "server-error"
	ClassUnknown     = "unknown"
)

// StatusClass buckets an HTTP status for styling.
func StatusClass(status *int) string {
	if status == nil {
		return ClassUnknown
	}

	switch s := *status; {
	case s >= 200 && s < 300:
		return ClassSuccess
	case s >= 300 && s < 400:
		return ClassRedirect
	case s >= 400 && s < 500:
		return ClassClientError
	case s >= 500 && s < 600:
		return ClassServerError
	default:
		return ClassUnknown
	}
}

// UTM renders params as "key=value" pairs sorted by key.
func UTM(params map[string]string) string {
	if len(params) == 0 {
		return "None"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	return strings.Join(pairs, ", ")
}

// Validation labels.
const (
	Valid     = "Valid"
	Invalid   = "Invalid"
	NotTested = "Not tested"
)

// Validation labels the outcome of an optional check.
func Validation(v *bool) string {
	switch {
	case v == nil:
		return NotTested
	case *v:
		return Valid
	default:
		return Invalid
	}
}

// Page renders a resolved page number.
func Page(n int, ok bool) string {
	if !ok {
		return NotApplicable
	}

	return strconv.Itoa(n)
}

// Milliseconds renders a duration in milliseconds with one decimal.
func Milliseconds(ms *float64) string {
	if ms == nil {
		return NotApplicable
	}

	return strconv.FormatFloat(*ms, 'f', 1, 64) + " ms"
}

// Percent renders a score with one decimal.
func Percent(p *float64) string {
	if p == nil {
		return NotApplicable
	}

	return strconv.FormatFloat(*p, 'f', 1, 64) + "%"
}
