// Package display renders scan events for people.
//
// Rendering is pure: Render* functions turn payloads into strings. The
// components wrap them and write the output into a Region supplied by the
// caller, a terminal for the watch command or a buffer in tests. Components
// never reach for their output on their own.
package display

import (
	"html"
	htmltemplate "html/template"
	"io"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
)

// Region is a mount target. Replace swaps the whole content of the region.
type Region interface {
	Replace(content string)
}

// Format selects the markup components render.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// Buffer is an in-memory Region.
type Buffer struct {
	mu      sync.Mutex
	content string
	updates int
}

// Replace implements Region.
func (b *Buffer) Replace(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = content
	b.updates++
}

// String returns the current content.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.content
}

// Updates returns how many times the content was replaced.
func (b *Buffer) Updates() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.updates
}

// Writer is a Region printing every replacement to an io.Writer, one block
// per update.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Region writing to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Replace implements Region.
func (w *Writer) Replace(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	_, _ = io.WriteString(w.w, content)
}

// strict strips any markup from server supplied strings. Extracted texts and
// landing page errors are not trusted.
var strict = bluemonday.StrictPolicy()

// clean removes tags from s and returns plain text. Payload strings are text,
// not HTML, so entities in them are kept literally: "&lt;b&gt;" stays as is
// instead of turning into a tag. Ampersands are escaped before sanitizing so
// that unescaping afterwards only undoes the sanitizer's own escaping.
func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(strings.ReplaceAll(s, "&", "&amp;"))))
}

type renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

func newRenderer(name, text, markup string) renderer {
	return renderer{
		text: texttemplate.Must(texttemplate.New(name).Parse(text)),
		html: htmltemplate.Must(htmltemplate.New(name).Parse(markup)),
	}
}

func (r renderer) render(f Format, data any) (string, error) {
	var sb strings.Builder
	var err error
	if f == FormatHTML {
		err = r.html.Execute(&sb, data)
	} else {
		err = r.text.Execute(&sb, data)
	}

	return sb.String(), err //nolint: wrapcheck
}
