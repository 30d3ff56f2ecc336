package display

import (
	"qrscanner/pkg/domain"
	"qrscanner/pkg/format"
)

// DefaultURLWidth is the width URLs are shortened to.
const DefaultURLWidth = 60

var resultsTemplate = newRenderer("results", `QR codes: {{.Stats.TotalURLResults}} URL(s), {{.Stats.UniqueURLs}} unique, on {{.Stats.PagesWithQR}}/{{.Stats.TotalPages}} page(s)
{{range .Rows}}- page {{.Page}}: {{.Display}} [{{.Status}}]{{if .Advanced}} domain={{.Domain}} utm={{.UTM}} text={{.Text}}{{end}}
{{- if .Error}} ({{.Error}}){{end}}
{{else}}No QR code found.
{{end}}{{if .Summary}}HTTP OK: {{.Summary.HTTPSuccess}}/{{.Summary.TotalURLs}}, average response {{.AvgResponse}}
{{end}}`,
	`<section class="scan-results">
<p class="scan-stats">{{.Stats.TotalURLResults}} URL(s), {{.Stats.UniqueURLs}} unique, on {{.Stats.PagesWithQR}}/{{.Stats.TotalPages}} page(s)</p>
{{if .Rows}}<table class="qr-results">
<thead><tr><th>Page</th><th>URL</th><th>HTTP</th><th>Domain</th><th>UTM</th><th>Text</th></tr></thead>
<tbody>
{{range .Rows}}<tr class="{{.Class}}"><td>{{.Page}}</td><td><a href="{{.URL}}" title="{{.URL}}">{{.Display}}</a></td><td>{{.Status}}</td><td>{{.Domain}}</td><td>{{.UTM}}</td><td>{{.Text}}</td></tr>
{{end}}</tbody>
</table>{{else}}<p class="empty">No QR code found.</p>{{end}}
</section>`)

type resultRow struct {
	Page     string
	URL      string
	Display  string
	Status   string
	Class    string
	Advanced bool
	Domain   string
	UTM      string
	Text     string
	Error    string
}

type resultsView struct {
	Stats       domain.Stats
	Rows        []resultRow
	Summary     *domain.ValidationSummary
	AvgResponse string
}

// RenderResults renders the QR results of a scan, shortening URLs to width
// runes.
func RenderResults(f Format, results domain.ScanResults, width int) (string, error) {
	v := resultsView{Stats: results.Stats, Summary: results.ValidationSummary}
	if v.Summary != nil {
		v.AvgResponse = format.Milliseconds(v.Summary.AvgResponseTimeMS)
	}

	for _, r := range results.URLResults {
		v.Rows = append(v.Rows, resultRow{
			Page:     format.Page(r.Page, r.Page > 0),
			URL:      r.URL,
			Display:  format.URL(r.URL, width),
			Status:   format.HTTPStatus(r.HTTPStatus),
			Class:    format.StatusClass(r.HTTPStatus),
			Advanced: r.DomainValid != nil || r.UTMValid != nil || r.TextSearchValid != nil,
			Domain:   format.Validation(r.DomainValid),
			UTM:      format.Validation(r.UTMValid),
			Text:     format.Validation(r.TextSearchValid),
			Error:    clean(r.Error),
		})
	}

	return resultsTemplate.render(f, v)
}

// Results shows the QR result table once a scan completes.
type Results struct {
	region Region
	format Format
	width  int
}

// NewResults returns a Results rendering into region.
func NewResults(region Region, f Format, width int) *Results {
	if width <= 0 {
		width = DefaultURLWidth
	}

	return &Results{region: region, format: f, width: width}
}

// OnComplete is a complete listener.
func (r *Results) OnComplete(ev domain.CompleteEvent) {
	s, err := RenderResults(r.format, ev.ScanResults, r.width)
	if err != nil {
		s = "display error: " + err.Error()
	}
	r.region.Replace(s)
}
