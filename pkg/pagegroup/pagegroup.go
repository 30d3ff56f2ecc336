// Package pagegroup organizes the results of a scan by document page.
package pagegroup

import (
	"fmt"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/serrors"
	"sort"
	"strings"
)

// TextPolicy selects which text of an extraction item is displayed.
type TextPolicy string

const (
	// TextRaw always displays the item text.
	TextRaw TextPolicy = "raw"
	// TextBase displays attributes.extracted_base for items of class "code"
	// when it is set, and the item text otherwise.
	TextBase TextPolicy = "base"
)

// ParseTextPolicy parses a configured policy. The empty string selects TextBase.
func ParseTextPolicy(s string) (TextPolicy, error) {
	switch p := TextPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return TextBase, nil
	case TextRaw, TextBase:
		return p, nil
	default:
		return "", serrors.With(serrors.ErrBadRequest, "unknown extraction text policy %q", s)
	}
}

// Text returns the displayed text of it.
func (p TextPolicy) Text(it domain.ExtractionItem) string {
	if p == TextBase && it.ExtractionClass == "code" && it.Attributes != nil && it.Attributes.ExtractedBase != "" {
		return it.Attributes.ExtractedBase
	}

	return it.Text
}

// Page holds everything found on one page. Known is false for the group of
// QR results without a page number.
type Page struct {
	Number      int
	Known       bool
	QRCodes     []domain.QrResult
	Extractions []domain.ExtractionItem
}

// Label returns the page number or "unknown".
func (p Page) Label() string {
	if !p.Known {
		return "unknown"
	}

	return fmt.Sprint(p.Number)
}

// Group buckets QR results and successful AI extraction items by page. Items
// whose page cannot be resolved are dropped. Pages are sorted numerically and
// the unknown page, if any, comes last.
func Group(results []domain.QrResult, ai *domain.AIExtraction) []Page {
	byNumber := map[int]*Page{}
	var unknown *Page

	get := func(n int) *Page {
		if n <= 0 {
			if unknown == nil {
				unknown = &Page{}
			}

			return unknown
		}
		p, ok := byNumber[n]
		if !ok {
			p = &Page{Number: n, Known: true}
			byNumber[n] = p
		}

		return p
	}

	for _, r := range results {
		p := get(r.Page)
		p.QRCodes = append(p.QRCodes, r)
	}

	if ai != nil && ai.Success {
		for _, it := range ai.ExtractedData {
			n, ok := it.PageNumber()
			if !ok {
				continue
			}
			p := get(n)
			p.Extractions = append(p.Extractions, it)
		}
	}

	pages := make([]Page, 0, len(byNumber)+1)
	for _, p := range byNumber {
		pages = append(pages, *p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	if unknown != nil {
		pages = append(pages, *unknown)
	}

	return pages
}
