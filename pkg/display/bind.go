package display

import (
	"qrscanner/pkg/scanevents"
)

// Components are the display components of one scan page. Nil components are
// skipped.
type Components struct {
	Progress *Progress
	Results  *Results
	AI       *AIResults
}

// Bind registers the components on client. The progress component is
// registered first so the status line changes before the tables render.
func Bind(client *scanevents.Client, c Components) {
	if p := c.Progress; p != nil {
		client.OnConnect(p.OnConnect)
		client.OnDisconnect(p.OnDisconnect)
		client.OnProgress(p.OnProgress)
		client.OnComplete(p.OnComplete)
		client.OnError(p.OnError)
	}
	if c.Results != nil {
		client.OnComplete(c.Results.OnComplete)
	}
	if c.AI != nil {
		client.OnComplete(c.AI.OnComplete)
	}
}
