package display_test

import (
	"bytes"
	"context"
	"os"
	"qrscanner/pkg/display"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/pagegroup"
	"qrscanner/pkg/scanevents"
	"qrscanner/pkg/scanevents/scaneventstest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Setup(logger.DevelopmentEnvironment, "")
	os.Exit(m.Run())
}

func ptr[T any](v T) *T { return &v }

func TestRenderProgress(t *testing.T) {
	s, err := display.RenderProgress(display.FormatText, "Reading page 2/5")
	require.NoError(t, err)
	require.Equal(t, "Reading page 2/5", s)

	s, err = display.RenderProgress(display.FormatHTML, "Reading <b>page</b> 2/5")
	require.NoError(t, err)
	require.Equal(t, `<p class="scan-progress">Reading page 2/5</p>`, s)

	s, err = display.RenderError(display.FormatText, "")
	require.NoError(t, err)
	require.Equal(t, "Error: unknown error", s)
}

func TestRenderProgress_MarkupInPayload(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantText string
		wantHTML string
	}{
		{
			name:     "tags are stripped",
			in:       `<script>alert(1)</script>Page <b>1</b> scanned`,
			wantText: "Page 1 scanned",
			wantHTML: `<p class="scan-progress">Page 1 scanned</p>`,
		},
		{
			name:     "escaped markup stays escaped",
			in:       "&lt;b&gt;Sale&lt;/b&gt;",
			wantText: "&lt;b&gt;Sale&lt;/b&gt;",
			wantHTML: `<p class="scan-progress">&amp;lt;b&amp;gt;Sale&amp;lt;/b&amp;gt;</p>`,
		},
		{
			name:     "plain punctuation",
			in:       `Fish & Chips "menu" a < b`,
			wantText: `Fish & Chips "menu" a < b`,
			wantHTML: `<p class="scan-progress">Fish &amp; Chips &#34;menu&#34; a &lt; b</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := display.RenderProgress(display.FormatText, tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.wantText, s)
			require.NotContains(t, s, "<b>")

			s, err = display.RenderProgress(display.FormatHTML, tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.wantHTML, s)
		})
	}
}

func TestProgress_ReplacesContent(t *testing.T) {
	var region display.Buffer
	p := display.NewProgress(&region, display.FormatText)

	p.OnProgress(domain.ProgressEvent{ScanID: "abc", Message: "Reading page 1/2"})
	p.OnProgress(domain.ProgressEvent{ScanID: "abc", Message: "Reading page 1/2"})
	require.Equal(t, "Reading page 1/2", region.String())

	p.OnProgress(domain.ProgressEvent{ScanID: "abc", Message: "Page 2 scanned"})
	require.Equal(t, "Page 2 scanned", region.String())
	require.Equal(t, 3, region.Updates())

	p.OnError(domain.ErrorEvent{ScanID: "abc", Error: "timeout"})
	require.Equal(t, "Error: timeout", region.String())
}

func TestRenderResults(t *testing.T) {
	results := domain.ScanResults{
		Stats: domain.Stats{TotalPages: 2, PagesWithQR: 1, UniqueURLs: 2, TotalURLResults: 2},
		URLResults: []domain.QrResult{
			{Page: 1, URL: "https://example.com/landing?utm_source=flyer", HTTPStatus: ptr(200),
				DomainValid: ptr(true), UTMValid: ptr(false)},
			{Page: 1, URL: "https://down.test", Error: "connection refused"},
		},
		ValidationSummary: &domain.ValidationSummary{TotalURLs: 2, HTTPSuccess: 1, AvgResponseTimeMS: ptr(42.0)},
	}

	s, err := display.RenderResults(display.FormatText, results, 0)
	require.NoError(t, err)
	require.Equal(t, "QR codes: 2 URL(s), 2 unique, on 1/2 page(s)\n"+
		"- page 1: https://example.com/landing?utm_source=flyer [200 OK] domain=Valid utm=Invalid text=Not tested\n"+
		"- page 1: https://down.test [N/A] (connection refused)\n"+
		"HTTP OK: 1/2, average response 42.0 ms\n", s)

	s, err = display.RenderResults(display.FormatHTML, results, 20)
	require.NoError(t, err)
	require.Contains(t, s, `<tr class="success"><td>1</td>`)
	require.Contains(t, s, `<tr class="unknown">`)
	require.Contains(t, s, `>https://e...ce=flyer<`)
}

func TestRenderResults_Empty(t *testing.T) {
	s, err := display.RenderResults(display.FormatText, domain.ScanResults{}, 0)
	require.NoError(t, err)
	require.Contains(t, s, "No QR code found.")
}

func TestRenderAI(t *testing.T) {
	ai := &domain.AIExtraction{
		Success:   true,
		ModelUsed: "gemini-2.5-flash",
		ExtractedData: []domain.ExtractionItem{
			{Text: "Code AB12-X", ExtractionClass: "code", Page: ptr(2),
				Attributes: &domain.ItemAttributes{ExtractedBase: "AB12"}},
			{Text: "<i>jane@example.com</i>", ExtractionClass: "email", Page: ptr(1)},
			{Text: "orphan", ExtractionClass: "email"},
		},
	}

	s, err := display.RenderAI(display.FormatText, ai, pagegroup.TextBase)
	require.NoError(t, err)
	require.Equal(t, "AI extraction: 3 item(s) (gemini-2.5-flash)\n"+
		"Page 1\n  - email: jane@example.com\n"+
		"Page 2\n  - code: AB12\n", s)

	s, err = display.RenderAI(display.FormatText, ai, pagegroup.TextRaw)
	require.NoError(t, err)
	require.Contains(t, s, "  - code: Code AB12-X\n")
}

func TestRenderAI_AbsentOrFailed(t *testing.T) {
	s, err := display.RenderAI(display.FormatText, nil, pagegroup.TextBase)
	require.NoError(t, err)
	require.Equal(t, "AI extraction: N/A\n", s)

	s, err = display.RenderAI(display.FormatText, &domain.AIExtraction{Success: false, Error: "quota exceeded"}, pagegroup.TextBase)
	require.NoError(t, err)
	require.Equal(t, "AI extraction failed: quota exceeded\n", s)

	s, err = display.RenderAI(display.FormatHTML, &domain.AIExtraction{Success: false}, pagegroup.TextBase)
	require.NoError(t, err)
	require.Contains(t, s, `<p class="error">AI extraction failed: unknown error</p>`)
}

func TestBind(t *testing.T) {
	ch := scaneventstest.NewChannel()
	client := scanevents.New("abc", ch, scanevents.Options{})

	var progress, results, ai display.Buffer
	display.Bind(client, display.Components{
		Progress: display.NewProgress(&progress, display.FormatText),
		Results:  display.NewResults(&results, display.FormatText, 0),
		AI:       display.NewAIResults(&ai, display.FormatText, pagegroup.TextBase),
	})

	client.Connect(context.Background())
	defer client.Disconnect()
	require.Equal(t, "Connected, waiting for the scan to start", progress.String())

	ctx := context.Background()
	require.NoError(t, ch.Publish(ctx, domain.ProgressEvent{ScanID: "abc", Message: "Page 1 scanned"}))
	require.NoError(t, ch.Publish(ctx, domain.ProgressEvent{ScanID: "other", Message: "not ours"}))
	require.NoError(t, ch.Publish(ctx, domain.CompleteEvent{ScanID: "abc", ScanResults: domain.ScanResults{
		Success:    true,
		Stats:      domain.Stats{TotalPages: 1},
		URLResults: []domain.QrResult{},
	}}))

	require.Eventually(t, func() bool { return ai.Updates() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "Scan complete", progress.String())
	require.Contains(t, results.String(), "No QR code found.")
	require.Equal(t, "AI extraction: N/A\n", ai.String())
}

func TestWriterRegion(t *testing.T) {
	var buf bytes.Buffer
	w := display.NewWriter(&buf)
	w.Replace("one")
	w.Replace("two\n")
	require.Equal(t, "one\ntwo\n", buf.String())
}
