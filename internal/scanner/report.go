package scanner

import (
	"fmt"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/format"
	"strings"
)

// Report renders a plain text report of a finished scan.
func Report(scan *domain.Scan) string {
	var b strings.Builder
	line := func(f string, args ...any) {
		fmt.Fprintf(&b, f, args...)
		b.WriteByte('\n')
	}

	res := scan.Result
	if res == nil {
		res = &domain.ScanResults{}
	}

	name := scan.File.Name
	if name == "" {
		name = "Unknown"
	}

	line("=== QR PDF SCAN REPORT ===")
	line("")
	line("File: %s", name)
	line("Size: %.2f MB", float64(scan.File.Size)/(1024*1024))
	line("Scan ID: %s", scan.ID)
	line("Status: %s", scan.Status)
	if scan.LastError != "" {
		line("Error: %s", scan.LastError)
	}
	line("")
	line("=== STATISTICS ===")
	line("- Total pages: %d", res.Stats.TotalPages)
	line("- Pages with QR codes: %d", res.Stats.PagesWithQR)
	line("- Unique URLs found: %d", res.Stats.UniqueURLs)
	line("- Extracted text lines: %d", res.Stats.ExtractedLines)
	line("- AI extractions: %d", res.Stats.AIExtractedItems)

	if s := res.ValidationSummary; s != nil {
		line("")
		line("=== VALIDATION ===")
		line("- HTTP success: %d/%d", s.HTTPSuccess, s.TotalURLs)
		if s.DomainValid+s.DomainInvalid > 0 {
			line("- Valid domains: %d/%d", s.DomainValid, s.DomainValid+s.DomainInvalid)
		}
		if s.UTMValid+s.UTMInvalid > 0 {
			line("- Valid UTM parameters: %d/%d", s.UTMValid, s.UTMValid+s.UTMInvalid)
		}
		if s.TextValid+s.TextInvalid > 0 {
			line("- Texts found: %d/%d", s.TextValid, s.TextValid+s.TextInvalid)
		}
		if s.AvgResponseTimeMS != nil {
			line("- Average response time: %s", format.Milliseconds(s.AvgResponseTimeMS))
		}
	}

	if q := res.QualityScores; q != nil {
		line("")
		line("=== QUALITY SCORES ===")
		score := func(label string, v *float64) {
			if v != nil {
				line("- %s: %s", label, format.Percent(v))
			}
		}
		score("QR detection", q.QRDetection)
		score("HTTP validation", q.HTTPValidation)
		score("Advanced validation", q.AdvancedValidation)
		score("AI extraction", q.AIExtraction)
		score("Overall score", q.Overall)
	}

	if m := res.Metadata; m != nil {
		line("")
		line("=== MODULES USED ===")
		line("- %s", strings.Join(m.ProcessingInfo.ModulesUsed, ", "))
	}

	line("")
	switch scan.Status {
	case domain.ScanStatusCompleted:
		line("Scan completed successfully")
	case domain.ScanStatusFailed:
		line("Scan failed")
	default:
		line("Scan in progress")
	}

	return b.String()
}
