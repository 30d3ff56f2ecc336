package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// QrResult is the validation outcome of one URL decoded from a QR code.
// Optional checks are nil when they were not performed.
type QrResult struct {
	Page            int    `json:"page"`
	URL             string `json:"url"`
	HTTPStatus      *int   `json:"http_status"`
	DomainValid     *bool  `json:"domain_valid"`
	UTMValid        *bool  `json:"utm_valid"`
	TextSearchValid *bool  `json:"text_search_valid"`

	FinalURL       string            `json:"final_url,omitempty"`
	Netloc         string            `json:"netloc,omitempty"`
	UTMParams      map[string]string `json:"utm_params,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	ContentLength  *int64            `json:"content_length,omitempty"`
	ResponseTimeMS *float64          `json:"response_time,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Stats summarizes a finished scan.
type Stats struct {
	TotalPages       int `json:"total_pages"`
	PagesWithQR      int `json:"pages_with_qr"`
	UniqueURLs       int `json:"unique_urls"`
	TotalURLResults  int `json:"total_url_results"`
	ExtractedLines   int `json:"extracted_lines"`
	AIExtractedItems int `json:"ai_extracted_items"`
}

// ItemAttributes holds the optional attributes of an extraction item.
type ItemAttributes struct {
	Page          *int   `json:"page,omitempty"`
	ExtractedBase string `json:"extracted_base,omitempty"`
}

// SourceLocation points back to where an extraction item was found.
type SourceLocation struct {
	Page *int `json:"page,omitempty"`
}

// ExtractionItem is one piece of information found by AI extraction.
type ExtractionItem struct {
	ID              int               `json:"id"`
	Text            string            `json:"text"`
	ExtractionClass string            `json:"extraction_class"`
	Page            *int              `json:"page,omitempty"`
	Attributes      *ItemAttributes   `json:"attributes,omitempty"`
	SourceLocation  *SourceLocation   `json:"source_location,omitempty"`
	Data            map[string]string `json:"data,omitempty"`
}

// PageNumber resolves the page the item belongs to. The direct page wins over
// attributes.page, which wins over source_location.page. Non-positive pages
// count as absent.
func (it ExtractionItem) PageNumber() (int, bool) {
	candidates := []*int{it.Page}
	if it.Attributes != nil {
		candidates = append(candidates, it.Attributes.Page)
	}
	if it.SourceLocation != nil {
		candidates = append(candidates, it.SourceLocation.Page)
	}

	for _, p := range candidates {
		if p != nil && *p > 0 {
			return *p, true
		}
	}

	return 0, false
}

// pageOf reads a page reference leniently. Numbers and numeric strings are
// accepted; anything else, including null, counts as absent.
func pageOf(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return nil
		}
		p := int(f)

		return &p
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if p, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &p
		}
	}

	return nil
}

func (a *ItemAttributes) UnmarshalJSON(b []byte) error {
	type plain ItemAttributes
	var v struct {
		plain
		Page json.RawMessage `json:"page"`
	}
	err := json.Unmarshal(b, &v)
	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		return err //nolint: wrapcheck
	}
	*a = ItemAttributes(v.plain)
	a.Page = pageOf(v.Page)

	return nil
}

func (l *SourceLocation) UnmarshalJSON(b []byte) error {
	var v struct {
		Page json.RawMessage `json:"page"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err //nolint: wrapcheck
	}
	l.Page = pageOf(v.Page)

	return nil
}

// UnmarshalJSON tolerates pages sent as strings. Other fields holding a value
// of the wrong type are left empty rather than failing the whole payload as
// items come from a model and are not always well typed.
func (it *ExtractionItem) UnmarshalJSON(b []byte) error {
	type plain ExtractionItem
	var v struct {
		plain
		Page json.RawMessage `json:"page"`
	}
	err := json.Unmarshal(b, &v)
	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		return err //nolint: wrapcheck
	}
	*it = ExtractionItem(v.plain)
	it.Page = pageOf(v.Page)

	return nil
}

// AIExtraction is the outcome of AI extraction over the whole document.
type AIExtraction struct {
	Success          bool             `json:"success"`
	ExtractedData    []ExtractionItem `json:"extracted_data"`
	Keywords         []string         `json:"keywords,omitempty"`
	ModelUsed        string           `json:"model_used,omitempty"`
	TotalExtractions int              `json:"total_extractions"`
	Query            string           `json:"query,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// TextLine is a non-empty line of text read from a page.
type TextLine struct {
	Page       int    `json:"page"`
	LineNumber int    `json:"line_number"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
	WordCount  int    `json:"word_count"`
}

// TextStats summarizes the extracted text lines.
type TextStats struct {
	TotalLines    int     `json:"total_lines"`
	TotalChars    int     `json:"total_chars"`
	TotalWords    int     `json:"total_words"`
	PagesWithText int     `json:"pages_with_text"`
	AvgLineLength float64 `json:"avg_line_length"`
}

// ValidationSummary aggregates the URL checks of a scan.
type ValidationSummary struct {
	TotalURLs         int      `json:"total_urls"`
	HTTPSuccess       int      `json:"http_success"`
	HTTPErrors        int      `json:"http_errors"`
	DomainValid       int      `json:"domain_valid"`
	DomainInvalid     int      `json:"domain_invalid"`
	UTMValid          int      `json:"utm_valid"`
	UTMInvalid        int      `json:"utm_invalid"`
	TextValid         int      `json:"text_valid"`
	TextInvalid       int      `json:"text_invalid"`
	AvgResponseTimeMS *float64 `json:"avg_response_time"`
}

// QualityScores are percentages describing how productive a scan was. A nil
// score was not applicable to the scan.
type QualityScores struct {
	QRDetection        *float64 `json:"qr_detection"`
	HTTPValidation     *float64 `json:"http_validation"`
	AdvancedValidation *float64 `json:"advanced_validation"`
	AIExtraction       *float64 `json:"ai_extraction"`
	Overall            *float64 `json:"overall"`
}

// ProcessingInfo describes how the scan was produced.
type ProcessingInfo struct {
	ScannerVersion  string    `json:"scanner_version"`
	ModulesUsed     []string  `json:"modules_used"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ScanMetadata is attached to every finished scan.
type ScanMetadata struct {
	FileInfo       FileInfo       `json:"file_info"`
	ScanOptions    ScanOptions    `json:"scan_options"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
}

// ScanResults is the full outcome of a scan as stored and as broadcast in
// scan_complete.
type ScanResults struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message,omitempty"`
	URLResults        []QrResult         `json:"url_results"`
	Stats             Stats              `json:"stats"`
	AIExtraction      *AIExtraction      `json:"ai_extraction,omitempty"`
	ExtractedLines    []TextLine         `json:"extracted_lines,omitempty"`
	TextStats         *TextStats         `json:"text_stats,omitempty"`
	ValidationSummary *ValidationSummary `json:"validation_summary,omitempty"`
	QualityScores     *QualityScores     `json:"quality_scores,omitempty"`
	Metadata          *ScanMetadata      `json:"scan_metadata,omitempty"`
}
