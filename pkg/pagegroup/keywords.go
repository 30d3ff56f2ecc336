package pagegroup

import (
	"qrscanner/pkg/domain"
	"strings"
)

// classKeywords maps extraction classes to the keyword they answer.
var classKeywords = map[string]string{
	"client_name": "name",
	"name":        "name",
	"code":        "code",
	"civility":    "civility",
	"email":       "email",
	"mail":        "email",
	"phone":       "phone",
	"telephone":   "phone",
	"date":        "date",
	"amount":      "amount",
	"price":       "amount",
	"address":     "address",
}

// Keywords returns the keywords an extraction answers: the requested ones
// when present, otherwise the keywords derived from the extraction classes in
// order of first appearance.
func Keywords(ai *domain.AIExtraction) []string {
	if ai == nil {
		return nil
	}
	if len(ai.Keywords) > 0 {
		return ai.Keywords
	}

	var out []string
	seen := map[string]bool{}
	for _, it := range ai.ExtractedData {
		if it.ExtractionClass == "" {
			continue
		}
		kw := KeywordOf(it.ExtractionClass)
		if !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}

	return out
}

// KeywordOf returns the keyword an extraction class answers. Unmapped classes
// are their own keyword.
func KeywordOf(class string) string {
	if kw, ok := classKeywords[strings.ToLower(class)]; ok {
		return kw
	}

	return class
}

// Match returns the first keyword that class answers.
func Match(class string, keywords []string) (string, bool) {
	kw := KeywordOf(class)
	for _, k := range keywords {
		if strings.EqualFold(k, class) || strings.EqualFold(k, kw) {
			return k, true
		}
	}

	return "", false
}
