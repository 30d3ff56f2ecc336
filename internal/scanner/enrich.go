package scanner

import (
	"qrscanner/pkg/domain"
	"qrscanner/pkg/urlcheck"
	"time"
)

type urlKey struct {
	url  string
	page int
}

// Finalize consolidates the per-page outcomes of a scan. URL results are
// deduplicated by canonical URL and page, keeping the first occurrence.
func Finalize(totalPages, pagesWithQR int,
	urlResults []domain.QrResult,
	lines []domain.TextLine,
	ai *domain.AIExtraction) *domain.ScanResults {
	unique := make([]domain.QrResult, 0, len(urlResults))
	seen := map[urlKey]bool{}
	distinct := map[string]bool{}
	for _, r := range urlResults {
		canonical, err := NormalizeURL(r.URL)
		if err != nil {
			canonical = r.URL
		}
		k := urlKey{url: canonical, page: r.Page}
		if seen[k] {
			continue
		}
		seen[k] = true
		distinct[canonical] = true
		unique = append(unique, r)
	}

	res := &domain.ScanResults{
		URLResults: unique,
		Stats: domain.Stats{
			TotalPages:      totalPages,
			PagesWithQR:     pagesWithQR,
			UniqueURLs:      len(distinct),
			TotalURLResults: len(unique),
			ExtractedLines:  len(lines),
		},
		AIExtraction:   ai,
		ExtractedLines: lines,
	}
	if ai != nil {
		res.Stats.AIExtractedItems = len(ai.ExtractedData)
	}
	if len(unique) > 0 {
		summary := urlcheck.Summary(unique)
		res.ValidationSummary = &summary
	}
	if len(lines) > 0 {
		res.TextStats = TextStatsOf(lines)
	}

	return res
}

// TextStatsOf summarizes text lines.
func TextStatsOf(lines []domain.TextLine) *domain.TextStats {
	st := &domain.TextStats{TotalLines: len(lines)}
	pages := map[int]bool{}
	for _, l := range lines {
		st.TotalChars += l.CharCount
		st.TotalWords += l.WordCount
		pages[l.Page] = true
	}
	st.PagesWithText = len(pages)
	if len(lines) > 0 {
		st.AvgLineLength = urlcheck.Round(float64(st.TotalChars)/float64(len(lines)), 1)
	}

	return st
}

// Enrich attaches the metadata and quality scores of a finished scan and marks
// it successful.
func Enrich(res *domain.ScanResults, scan domain.Scan, started, finished time.Time) {
	res.Success = true
	res.Message = "Scan completed successfully"
	res.Metadata = &domain.ScanMetadata{
		FileInfo:    scan.File,
		ScanOptions: scan.Options,
		ProcessingInfo: domain.ProcessingInfo{
			ScannerVersion:  Version,
			ModulesUsed:     ModulesUsed(scan.Options),
			StartedAt:       started.UTC(),
			FinishedAt:      finished.UTC(),
			DurationSeconds: urlcheck.Round(finished.Sub(started).Seconds(), 3),
		},
	}
	res.QualityScores = QualityScores(res)
}

// ModulesUsed lists the processing stages enabled by opts.
func ModulesUsed(opts domain.ScanOptions) []string {
	modules := []string{"qr_detector", "http_validator"}
	if opts.ExtractText {
		modules = append(modules, "text_extractor")
	}
	if opts.AIEnabled() {
		modules = append(modules, "ai_extractor")
	}
	if opts.AdvancedValidation() {
		modules = append(modules, "advanced_validation")
	}

	return modules
}

// QualityScores rates a scan in percent. QR detection and HTTP validation are
// always scored; advanced validation only when a check ran, AI extraction only
// when it produced items. Overall is the mean of the available scores.
func QualityScores(res *domain.ScanResults) *domain.QualityScores {
	pct := func(n, total int) float64 {
		return urlcheck.Round(float64(n)/float64(total)*100, 1)
	}

	q := &domain.QualityScores{}

	qr := 0.0
	if res.Stats.TotalPages > 0 {
		qr = pct(res.Stats.PagesWithQR, res.Stats.TotalPages)
	}
	q.QRDetection = &qr

	httpScore := 0.0
	if s := res.ValidationSummary; s != nil && s.TotalURLs > 0 {
		httpScore = pct(s.HTTPSuccess, s.TotalURLs)

		valid := s.DomainValid + s.UTMValid + s.TextValid
		checks := valid + s.DomainInvalid + s.UTMInvalid + s.TextInvalid
		if checks > 0 {
			adv := pct(valid, checks)
			q.AdvancedValidation = &adv
		}
	}
	q.HTTPValidation = &httpScore

	if ai := res.AIExtraction; ai != nil && ai.Success && len(ai.ExtractedData) > 0 {
		score := float64(min(100, len(ai.ExtractedData)*10))
		q.AIExtraction = &score
	}

	var sum float64
	n := 0
	for _, v := range []*float64{q.QRDetection, q.HTTPValidation, q.AdvancedValidation, q.AIExtraction} {
		if v != nil {
			sum += *v
			n++
		}
	}
	overall := urlcheck.Round(sum/float64(n), 1)
	q.Overall = &overall

	return q
}
