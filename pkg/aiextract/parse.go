package aiextract

import (
	"fmt"
	"qrscanner/pkg/domain"
	"strings"
	"unicode"
)

// Item classes produced by Parse for answers that do not name a keyword.
const (
	ClassSimple     = "simple"
	ClassStructured = "structured"
	ClassCode       = "code"
)

// MaxPromptText bounds the document text sent to a provider.
const MaxPromptText = 50000

// Prompt builds the instruction sent to a provider.
func Prompt(req Request) string {
	text := req.Text
	if r := []rune(text); len(r) > MaxPromptText {
		text = string(r[:MaxPromptText])
	}

	var sb strings.Builder
	sb.WriteString("Search the document for the requested recurring values or expressions. ")
	sb.WriteString("Always return your result as a comma separated list. ")
	sb.WriteString("If several values belong together, return them as {name 1: value, name 2: value}, {...}. ")
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&sb, "Prefix every value with the field it answers followed by a colon, using only these fields: %s. ",
			strings.Join(req.Keywords, ", "))
	}
	fmt.Fprintf(&sb, "Here is what you need to search for: %q\n\nDOCUMENT TEXT:\n%s\n", req.Query, text)

	return sb.String()
}

// Split cuts raw at the commas that are not inside braces.
func Split(raw string) []string {
	var (
		items   []string
		current strings.Builder
		depth   int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			items = append(items, s)
		}
		current.Reset()
	}

	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == '{':
			depth++
		case r == '}':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			flush()

			continue
		}
		current.WriteRune(r)
	}
	flush()

	return items
}

// Parse turns a provider answer into extraction items. "{k: v, ...}" groups
// become structured items, "keyword: value" answers take the keyword as class
// and anything else is a simple item. IDs are 1-based positions.
func Parse(raw string, keywords []string) []domain.ExtractionItem {
	var out []domain.ExtractionItem
	for i, s := range Split(raw) {
		it := domain.ExtractionItem{ID: i + 1, Text: s, ExtractionClass: ClassSimple}

		switch {
		case strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"):
			it.ExtractionClass = ClassStructured
			it.Data = map[string]string{}
			for _, pair := range strings.Split(s[1:len(s)-1], ",") {
				k, v, ok := strings.Cut(pair, ":")
				if ok {
					it.Data[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
			}
		default:
			if k, v, ok := strings.Cut(s, ":"); ok {
				if kw, match := keyword(k, keywords); match {
					it.ExtractionClass = kw
					it.Text = strings.TrimSpace(v)
				}
			}
		}

		if it.ExtractionClass == ClassCode {
			if base := CodeBase(it.Text); base != "" && base != it.Text {
				it.Attributes = &domain.ItemAttributes{ExtractedBase: base}
			}
		}
		out = append(out, it)
	}

	return out
}

// CodeBase returns the leading alphanumeric run of a code, the part that
// identifies it without check characters or suffixes.
func CodeBase(code string) string {
	code = strings.TrimSpace(code)
	end := strings.IndexFunc(code, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if end < 0 {
		return code
	}

	return code[:end]
}

func keyword(s string, keywords []string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, kw := range keywords {
		if strings.EqualFold(kw, s) {
			return kw, true
		}
	}

	return "", false
}

// Annotate records page on every item, directly and as attributes.page.
func Annotate(items []domain.ExtractionItem, page int) []domain.ExtractionItem {
	for i := range items {
		p := page
		items[i].Page = &p
		if items[i].Attributes == nil {
			items[i].Attributes = &domain.ItemAttributes{}
		}
		ap := page
		items[i].Attributes.Page = &ap
	}

	return items
}
