package display

import (
	"qrscanner/pkg/domain"
	"qrscanner/pkg/pagegroup"
)

var aiTemplate = newRenderer("ai", `{{if not .Requested}}AI extraction: N/A
{{else if .Failed}}AI extraction failed: {{.Error}}
{{else}}AI extraction: {{.Total}} item(s){{if .Model}} ({{.Model}}){{end}}
{{range .Pages}}Page {{.Label}}
{{range .Items}}  - {{.Class}}: {{.Text}}
{{end}}{{else}}Nothing extracted.
{{end}}{{end}}`,
	`<section class="ai-results">
{{if not .Requested}}<p class="na">AI extraction: N/A</p>
{{else if .Failed}}<p class="error">AI extraction failed: {{.Error}}</p>
{{else}}<p class="ai-stats">{{.Total}} item(s){{if .Model}} ({{.Model}}){{end}}</p>
{{range .Pages}}<div class="ai-page"><h4>Page {{.Label}}</h4><ul>
{{range .Items}}<li class="{{.Class}}"><strong>{{.Class}}</strong> {{.Text}}</li>
{{end}}</ul></div>
{{else}}<p class="empty">Nothing extracted.</p>
{{end}}{{end}}</section>`)

type aiItem struct {
	Class string
	Text  string
}

type aiPage struct {
	Label string
	Items []aiItem
}

type aiView struct {
	Requested bool
	Failed    bool
	Error     string
	Model     string
	Total     int
	Pages     []aiPage
}

// RenderAI renders the AI extraction of a scan grouped by page. A nil
// extraction renders as not applicable.
func RenderAI(f Format, ai *domain.AIExtraction, policy pagegroup.TextPolicy) (string, error) {
	v := aiView{Requested: ai != nil}
	if ai != nil {
		v.Failed = !ai.Success
		v.Error = clean(ai.Error)
		if v.Failed && v.Error == "" {
			v.Error = "unknown error"
		}
		v.Model = ai.ModelUsed
		v.Total = ai.TotalExtractions
		if v.Total == 0 {
			v.Total = len(ai.ExtractedData)
		}

		for _, p := range pagegroup.Group(nil, ai) {
			page := aiPage{Label: p.Label()}
			for _, it := range p.Extractions {
				page.Items = append(page.Items, aiItem{Class: it.ExtractionClass, Text: clean(policy.Text(it))})
			}
			v.Pages = append(v.Pages, page)
		}
	}

	return aiTemplate.render(f, v)
}

// AIResults shows the AI extraction once a scan completes.
type AIResults struct {
	region Region
	format Format
	policy pagegroup.TextPolicy
}

// NewAIResults returns an AIResults rendering into region.
func NewAIResults(region Region, f Format, policy pagegroup.TextPolicy) *AIResults {
	return &AIResults{region: region, format: f, policy: policy}
}

// OnComplete is a complete listener.
func (a *AIResults) OnComplete(ev domain.CompleteEvent) {
	s, err := RenderAI(a.format, ev.AIExtraction, a.policy)
	if err != nil {
		s = "display error: " + err.Error()
	}
	a.region.Replace(s)
}
