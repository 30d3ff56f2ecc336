package display

import (
	"qrscanner/pkg/domain"
)

var progressTemplate = newRenderer("progress",
	`{{if .Failed}}Error: {{end}}{{.Message}}`,
	`<p class="scan-progress{{if .Failed}} error{{end}}">{{.Message}}</p>`)

type progressView struct {
	Message string
	Failed  bool
}

// RenderProgress renders a progress message.
func RenderProgress(f Format, message string) (string, error) {
	return progressTemplate.render(f, progressView{Message: clean(message)})
}

// RenderError renders a scan error.
func RenderError(f Format, message string) (string, error) {
	if message = clean(message); message == "" {
		message = "unknown error"
	}

	return progressTemplate.render(f, progressView{Message: message, Failed: true})
}

// Progress shows the latest status line of a scan. Every update replaces the
// previous one.
type Progress struct {
	region Region
	format Format
}

// NewProgress returns a Progress rendering into region.
func NewProgress(region Region, f Format) *Progress {
	return &Progress{region: region, format: f}
}

func (p *Progress) show(s string, err error) {
	if err != nil {
		s = "display error: " + err.Error()
	}
	p.region.Replace(s)
}

// OnConnect is a connect listener.
func (p *Progress) OnConnect() {
	p.show(RenderProgress(p.format, "Connected, waiting for the scan to start"))
}

// OnDisconnect is a disconnect listener.
func (p *Progress) OnDisconnect() {
	p.show(RenderProgress(p.format, "Connection lost"))
}

// OnProgress is a progress listener.
func (p *Progress) OnProgress(ev domain.ProgressEvent) {
	p.show(RenderProgress(p.format, ev.Message))
}

// OnComplete is a complete listener.
func (p *Progress) OnComplete(domain.CompleteEvent) {
	p.show(RenderProgress(p.format, "Scan complete"))
}

// OnError is an error listener.
func (p *Progress) OnError(ev domain.ErrorEvent) {
	p.show(RenderError(p.format, ev.Error))
}
