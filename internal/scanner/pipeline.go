package scanner

import (
	"context"
	"errors"
	"fmt"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"
	"qrscanner/pkg/urlcheck"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// pipeline reads the document page by page. For each page it decodes the QR
// codes, validates their web URLs, collects the text lines of odd pages when
// requested and runs AI extraction on the page text when requested.
func (s *scanner) pipeline(ctx context.Context,
	scan domain.Scan,
	progress func(string)) (*domain.ScanResults, error) {
	started := s.now()

	doc, err := s.Open(scan.File.Path)
	if err != nil {
		return nil, fmt.Errorf("could not open PDF: %w", err)
	}
	defer func() {
		_ = doc.Close()
	}()

	opts := scan.Options
	rules := urlcheck.RulesFrom(opts)
	ai := newAIRun(opts, s.Extractor)
	total := doc.PageCount()
	progress(fmt.Sprintf("Reading PDF: %d pages", total))

	var (
		urlResults  []domain.QrResult
		lines       []domain.TextLine
		pagesWithQR int
	)
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan interrupted: %w", err)
		}
		progress(fmt.Sprintf("Reading page %d/%d", page, total))

		if pageResults := s.scanPage(ctx, doc, page, rules); len(pageResults) > 0 {
			pagesWithQR++
			urlResults = append(urlResults, pageResults...)
		}

		wantLines := opts.ExtractText && page%2 == 1
		if wantLines || ai.wanted() {
			text, err := doc.Text(page)
			if err != nil {
				logger.Warn(ctx, "could not read page text", zap.Int("page", page), zap.Error(err))
			}
			if wantLines {
				lines = append(lines, TextLines(page, text)...)
			}
			if err := ai.extract(ctx, page, text); err != nil {
				return nil, err
			}
		}

		progress(fmt.Sprintf("Page %d scanned", page))
	}

	results := Finalize(total, pagesWithQR, urlResults, lines, ai.result())
	Enrich(results, scan, started, s.now())

	return results, nil
}

// scanPage decodes the QR codes of a page and checks every web URL among them.
// Results keep the order of the codes on the page.
func (s *scanner) scanPage(ctx context.Context, doc Document, page int, rules urlcheck.Rules) []domain.QrResult {
	codes, err := doc.QRCodes(ctx, page)
	if err != nil {
		logger.Warn(ctx, "could not decode QR codes", zap.Int("page", page), zap.Error(err))

		return nil
	}

	var urls []string
	for _, c := range codes {
		if urlcheck.IsWebURL(c) {
			urls = append(urls, c)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	limit := s.options.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	out := make([]domain.QrResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			r := s.Checker.Check(gctx, u, rules)
			r.Page = page
			out[i] = r

			return nil
		})
	}
	_ = g.Wait()

	return out
}

// TextLines splits page text into non-empty trimmed lines numbered from 1.
func TextLines(page int, text string) []domain.TextLine {
	var out []domain.TextLine
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, domain.TextLine{
			Page:       page,
			LineNumber: len(out) + 1,
			Text:       l,
			CharCount:  utf8.RuneCountInString(l),
			WordCount:  len(strings.Fields(l)),
		})
	}

	return out
}

// aiRun accumulates the AI extraction of a scan across pages.
type aiRun struct {
	extractor aiextract.Extractor
	requested bool
	req       aiextract.Request
	items     []domain.ExtractionItem
	model     string
	failure   string
}

func newAIRun(opts domain.ScanOptions, extractor aiextract.Extractor) *aiRun {
	return &aiRun{
		extractor: extractor,
		requested: opts.AIEnabled(),
		req:       aiextract.Request{Query: opts.AIQuery, Keywords: opts.AIKeywords},
	}
}

func (a *aiRun) wanted() bool { return a.requested && a.extractor.Enabled() }

// extract runs the extractor on the text of a page. Provider failures are
// recorded and do not stop the scan, except rate limiting which is returned.
func (a *aiRun) extract(ctx context.Context, page int, text string) error {
	if !a.wanted() || strings.TrimSpace(text) == "" {
		return nil
	}

	req := a.req
	req.Text = text
	res, err := a.extractor.Extract(ctx, req)
	if err != nil {
		if errors.Is(err, serrors.ErrRateLimited) {
			return err
		}
		logger.Warn(ctx, "AI extraction failed", zap.Int("page", page), zap.Error(err))
		if a.failure == "" {
			a.failure = err.Error()
		}

		return nil
	}

	if res.Model != "" {
		a.model = res.Model
	}
	a.items = append(a.items, aiextract.Annotate(res.Items, page)...)

	return nil
}

// result is nil when AI extraction was not requested.
func (a *aiRun) result() *domain.AIExtraction {
	if !a.requested {
		return nil
	}

	for i := range a.items {
		a.items[i].ID = i + 1
	}
	out := &domain.AIExtraction{
		Success:          true,
		ExtractedData:    a.items,
		Keywords:         a.req.Keywords,
		ModelUsed:        a.model,
		TotalExtractions: len(a.items),
		Query:            a.req.Query,
	}
	if out.ExtractedData == nil {
		out.ExtractedData = []domain.ExtractionItem{}
	}

	switch {
	case !a.extractor.Enabled():
		out.Success = false
		out.Error = "AI extraction not available: API key not configured"
	case len(a.items) == 0 && a.failure != "":
		out.Success = false
		out.Error = a.failure
	}

	return out
}
