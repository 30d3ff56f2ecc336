// Package csvexport writes scan results as a per-page CSV report.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/format"
	"qrscanner/pkg/pagegroup"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Delimiter separates the columns.
const Delimiter = ';'

const join = " | "

var baseHeader = []string{
	"Page",
	"QR_URLs",
	"QR_Status_HTTP",
	"QR_Domain_Valid",
	"QR_UTM_Valid",
	"QR_Text_Valid",
}

// Write renders one row per page: the QR codes of the page and, for every
// keyword of the AI extraction, the texts answering it.
func Write(w io.Writer, results domain.ScanResults, policy pagegroup.TextPolicy) error {
	keywords := pagegroup.Keywords(results.AIExtraction)
	title := cases.Title(language.Und)

	header := append([]string{}, baseHeader...)
	for _, kw := range keywords {
		header = append(header, "AI_"+title.String(kw))
	}

	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("could not write header: %w", err)
	}

	for _, page := range pagegroup.Group(results.URLResults, results.AIExtraction) {
		if err := cw.Write(row(page, keywords, policy)); err != nil {
			return fmt.Errorf("could not write page %s: %w", page.Label(), err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("could not flush csv: %w", err)
	}

	return nil
}

func row(page pagegroup.Page, keywords []string, policy pagegroup.TextPolicy) []string {
	var urls, statuses, domains, utms, texts []string
	for _, qr := range page.QRCodes {
		urls = append(urls, qr.URL)
		status := ""
		if qr.HTTPStatus != nil {
			status = strconv.Itoa(*qr.HTTPStatus)
		}
		statuses = append(statuses, status)
		domains = append(domains, format.Validation(qr.DomainValid))
		utms = append(utms, format.Validation(qr.UTMValid))
		texts = append(texts, format.Validation(qr.TextSearchValid))
	}

	byKeyword := make(map[string][]string, len(keywords))
	for _, it := range page.Extractions {
		if kw, ok := pagegroup.Match(it.ExtractionClass, keywords); ok {
			byKeyword[kw] = append(byKeyword[kw], policy.Text(it))
		}
	}

	out := []string{
		page.Label(),
		strings.Join(urls, join),
		strings.Join(statuses, join),
		strings.Join(domains, join),
		strings.Join(utms, join),
		strings.Join(texts, join),
	}
	for _, kw := range keywords {
		out = append(out, strings.Join(byKeyword[kw], join))
	}

	return out
}

// FileName returns the download name of the export of scanID.
func FileName(scanID string, now time.Time) string {
	stamp := now.Format("20060102_150405")
	if scanID == "" {
		return "qr_scan_results_" + stamp + ".csv"
	}
	if len(scanID) > 8 {
		scanID = scanID[:8]
	}

	return "qr_scan_results_" + scanID + "_" + stamp + ".csv"
}
