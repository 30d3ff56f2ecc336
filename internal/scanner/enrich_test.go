package scanner_test

import (
	"qrscanner/internal/scanner"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qrscanner/pkg/domain"
)

func TestFinalize_DeduplicatesPerPage(t *testing.T) {
	results := []domain.QrResult{
		ok200("https://example.com/a"),
		ok200("https://EXAMPLE.com/a#top"),
		ok200("https://example.com/a"),
		ok200("https://example.com/b"),
	}
	results[0].Page, results[1].Page, results[2].Page, results[3].Page = 1, 1, 2, 2

	res := scanner.Finalize(3, 2, results, nil, nil)

	require.Len(t, res.URLResults, 3)
	require.Equal(t, domain.Stats{TotalPages: 3, PagesWithQR: 2, UniqueURLs: 2, TotalURLResults: 3}, res.Stats)
	require.NotNil(t, res.ValidationSummary)
	require.Equal(t, 3, res.ValidationSummary.HTTPSuccess)
	require.Nil(t, res.TextStats)
}

func TestTextLines(t *testing.T) {
	lines := scanner.TextLines(3, "  Été à Paris \n\n\t\nCode promo: SUMMER24\n")

	require.Equal(t, []domain.TextLine{
		{Page: 3, LineNumber: 1, Text: "Été à Paris", CharCount: 11, WordCount: 3},
		{Page: 3, LineNumber: 2, Text: "Code promo: SUMMER24", CharCount: 20, WordCount: 3},
	}, lines)

	st := scanner.TextStatsOf(lines)
	require.Equal(t, &domain.TextStats{TotalLines: 2, TotalChars: 31, TotalWords: 6, PagesWithText: 1, AvgLineLength: 15.5}, st)

	require.Empty(t, scanner.TextLines(1, " \n "))
}

func TestModulesUsed(t *testing.T) {
	require.Equal(t, []string{"qr_detector", "http_validator"}, scanner.ModulesUsed(domain.ScanOptions{}))
	require.Equal(t,
		[]string{"qr_detector", "http_validator", "text_extractor", "ai_extractor", "advanced_validation"},
		scanner.ModulesUsed(domain.ScanOptions{ExtractText: true, AIQuery: "q", SearchTexts: []string{"x"}}))
}

func TestQualityScores(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	t.Run("no urls", func(t *testing.T) {
		q := scanner.QualityScores(&domain.ScanResults{Stats: domain.Stats{TotalPages: 4}})
		require.Equal(t, &domain.QualityScores{QRDetection: f(0), HTTPValidation: f(0), Overall: f(0)}, q)
	})

	t.Run("empty document", func(t *testing.T) {
		q := scanner.QualityScores(&domain.ScanResults{})
		require.Equal(t, 0.0, *q.QRDetection)
		require.Equal(t, 0.0, *q.Overall)
	})

	t.Run("all modules", func(t *testing.T) {
		items := make([]domain.ExtractionItem, 12)
		q := scanner.QualityScores(&domain.ScanResults{
			Stats: domain.Stats{TotalPages: 3, PagesWithQR: 1},
			ValidationSummary: &domain.ValidationSummary{
				TotalURLs:     2,
				HTTPSuccess:   1,
				DomainValid:   2,
				UTMValid:      1,
				UTMInvalid:    1,
				TextInvalid:   2,
				DomainInvalid: 0,
			},
			AIExtraction: &domain.AIExtraction{Success: true, ExtractedData: items},
		})
		require.Equal(t, 33.3, *q.QRDetection)
		require.Equal(t, 50.0, *q.HTTPValidation)
		require.Equal(t, 50.0, *q.AdvancedValidation)
		require.Equal(t, 100.0, *q.AIExtraction)
		require.Equal(t, 58.3, *q.Overall)
	})

	t.Run("failed AI extraction is not scored", func(t *testing.T) {
		q := scanner.QualityScores(&domain.ScanResults{
			Stats:        domain.Stats{TotalPages: 1, PagesWithQR: 1},
			AIExtraction: &domain.AIExtraction{Success: false, Error: "quota"},
		})
		require.Nil(t, q.AIExtraction)
		require.Nil(t, q.AdvancedValidation)
		require.Equal(t, 50.0, *q.Overall)
	})
}

func TestEnrich(t *testing.T) {
	started := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	scan := domain.Scan{
		File:    domain.FileInfo{Name: "a.pdf", Size: 10},
		Options: domain.ScanOptions{ExtractText: true},
	}
	res := scanner.Finalize(1, 0, nil, nil, nil)

	scanner.Enrich(res, scan, started, started.Add(1500*time.Millisecond))

	require.True(t, res.Success)
	require.Equal(t, "Scan completed successfully", res.Message)
	require.Equal(t, scanner.Version, res.Metadata.ProcessingInfo.ScannerVersion)
	require.Equal(t, 1.5, res.Metadata.ProcessingInfo.DurationSeconds)
	require.Equal(t, []string{"qr_detector", "http_validator", "text_extractor"}, res.Metadata.ProcessingInfo.ModulesUsed)
	require.NotNil(t, res.QualityScores)
}

func TestReport(t *testing.T) {
	res := scanner.Finalize(2, 1, []domain.QrResult{ok200("https://example.com")}, nil, nil)
	scanner.Enrich(res, domain.Scan{}, time.Now(), time.Now())

	report := scanner.Report(&domain.Scan{
		ID:     domain.NewScanID(),
		File:   domain.FileInfo{Name: "flyer.pdf", Size: 2 * 1024 * 1024},
		Status: domain.ScanStatusCompleted,
		Result: res,
	})

	for _, want := range []string{
		"=== QR PDF SCAN REPORT ===",
		"File: flyer.pdf",
		"Size: 2.00 MB",
		"- Total pages: 2",
		"- HTTP success: 1/1",
		"- Valid domains: 1/1",
		"=== QUALITY SCORES ===",
		"- qr_detector, http_validator",
		"Scan completed successfully",
	} {
		require.Contains(t, report, want)
	}

	failed := scanner.Report(&domain.Scan{Status: domain.ScanStatusFailed, LastError: "Scan failed: broken"})
	require.True(t, strings.HasSuffix(failed, "Scan failed\n"))
	require.Contains(t, failed, "File: Unknown")
	require.Contains(t, failed, "Error: Scan failed: broken")
}
