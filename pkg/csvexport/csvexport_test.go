package csvexport_test

import (
	"bytes"
	"qrscanner/pkg/csvexport"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/pagegroup"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func results() domain.ScanResults {
	return domain.ScanResults{
		Success: true,
		URLResults: []domain.QrResult{
			{Page: 1, URL: "https://a.test/1", HTTPStatus: ptr(200), DomainValid: ptr(true), UTMValid: ptr(false)},
			{Page: 1, URL: "https://a.test/2", HTTPStatus: nil},
			{Page: 3, URL: "https://b.test", HTTPStatus: ptr(404), TextSearchValid: ptr(true)},
		},
		AIExtraction: &domain.AIExtraction{
			Success:  true,
			Keywords: []string{"code", "email"},
			ExtractedData: []domain.ExtractionItem{
				{Text: "Code AB12-X", ExtractionClass: "code", Page: ptr(1),
					Attributes: &domain.ItemAttributes{ExtractedBase: "AB12"}},
				{Text: "jane@example.com", ExtractionClass: "mail", Attributes: &domain.ItemAttributes{Page: ptr(2)}},
				{Text: "john@example.com", ExtractionClass: "email", Page: ptr(2)},
				{Text: "lost", ExtractionClass: "email"},
			},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, csvexport.Write(&buf, results(), pagegroup.TextBase))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"Page;QR_URLs;QR_Status_HTTP;QR_Domain_Valid;QR_UTM_Valid;QR_Text_Valid;AI_Code;AI_Email",
		"1;https://a.test/1 | https://a.test/2;200 | ;Valid | Not tested;Invalid | Not tested;Not tested | Not tested;AB12;",
		"2;;;;;;;jane@example.com | john@example.com",
		"3;https://b.test;404;Not tested;Not tested;Valid;;",
	}, lines)
}

func TestWrite_RawPolicy(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, csvexport.Write(&buf, results(), pagegroup.TextRaw))
	require.Contains(t, buf.String(), ";Code AB12-X;")
}

func TestWrite_DerivedKeywordsAndNoAI(t *testing.T) {
	r := domain.ScanResults{
		URLResults: []domain.QrResult{{Page: 1, URL: "https://a.test"}},
		AIExtraction: &domain.AIExtraction{
			Success: true,
			ExtractedData: []domain.ExtractionItem{
				{Text: "Jane Doe", ExtractionClass: "client_name", Page: ptr(1)},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, csvexport.Write(&buf, r, pagegroup.TextBase))
	require.True(t, strings.HasPrefix(buf.String(), "Page;QR_URLs;QR_Status_HTTP;QR_Domain_Valid;QR_UTM_Valid;QR_Text_Valid;AI_Name\n"))
	require.Contains(t, buf.String(), ";Jane Doe\n")

	buf.Reset()
	require.NoError(t, csvexport.Write(&buf, domain.ScanResults{}, pagegroup.TextBase))
	require.Equal(t, "Page;QR_URLs;QR_Status_HTTP;QR_Domain_Valid;QR_UTM_Valid;QR_Text_Valid\n", buf.String())
}

func TestFileName(t *testing.T) {
	now := time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)

	require.Equal(t, "qr_scan_results_0f8fad5b_20250309_140507.csv",
		csvexport.FileName("0f8fad5b-d9cb-469f-a165-70867728950e", now))
	require.Equal(t, "qr_scan_results_20250309_140507.csv", csvexport.FileName("", now))
}
