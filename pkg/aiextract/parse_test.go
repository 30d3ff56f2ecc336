package aiextract_test

import (
	"context"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/serrors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"a, b ,c", []string{"a", "b", "c"}},
		{"{name: Jane, code: AB12}, {name: John, code: CD34}", []string{"{name: Jane, code: AB12}", "{name: John, code: CD34}"}},
		{"x,,y,", []string{"x", "y"}},
		{"}a, b", []string{"}a", "b"}},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, aiextract.Split(tt.raw), tt.raw)
	}
}

func TestParse(t *testing.T) {
	items := aiextract.Parse("code: AB12-X, email: jane@example.com, {name: Jane, city: Lyon}, plain value", []string{"code", "email"})
	require.Len(t, items, 4)

	require.Equal(t, 1, items[0].ID)
	require.Equal(t, "code", items[0].ExtractionClass)
	require.Equal(t, "AB12-X", items[0].Text)
	require.Equal(t, "AB12", items[0].Attributes.ExtractedBase)

	require.Equal(t, "email", items[1].ExtractionClass)
	require.Equal(t, "jane@example.com", items[1].Text)
	require.Nil(t, items[1].Attributes)

	require.Equal(t, aiextract.ClassStructured, items[2].ExtractionClass)
	require.Equal(t, map[string]string{"name": "Jane", "city": "Lyon"}, items[2].Data)

	require.Equal(t, aiextract.ClassSimple, items[3].ExtractionClass)
	require.Equal(t, "plain value", items[3].Text)
}

func TestParse_UnknownPrefixStaysSimple(t *testing.T) {
	items := aiextract.Parse("note: call back", []string{"code"})
	require.Equal(t, aiextract.ClassSimple, items[0].ExtractionClass)
	require.Equal(t, "note: call back", items[0].Text)
}

func TestCodeBase(t *testing.T) {
	require.Equal(t, "AB12", aiextract.CodeBase(" AB12-X "))
	require.Equal(t, "AB12", aiextract.CodeBase("AB12"))
	require.Equal(t, "", aiextract.CodeBase("-X"))
}

func TestAnnotate(t *testing.T) {
	items := aiextract.Annotate([]domain.ExtractionItem{{Text: "a"}, {Text: "b", Attributes: &domain.ItemAttributes{ExtractedBase: "b"}}}, 3)
	for _, it := range items {
		n, ok := it.PageNumber()
		require.True(t, ok)
		require.Equal(t, 3, n)
		require.Equal(t, 3, *it.Attributes.Page)
	}
	require.Equal(t, "b", items[1].Attributes.ExtractedBase)
}

func TestPrompt(t *testing.T) {
	p := aiextract.Prompt(aiextract.Request{
		Text:     strings.Repeat("x", aiextract.MaxPromptText+10),
		Query:    "client codes",
		Keywords: []string{"code", "email"},
	})
	require.Contains(t, p, `"client codes"`)
	require.Contains(t, p, "code, email")
	require.NotContains(t, p, strings.Repeat("x", aiextract.MaxPromptText+1))
}

func TestDisabled(t *testing.T) {
	var e aiextract.Extractor = aiextract.Disabled{}
	require.False(t, e.Enabled())

	_, err := e.Extract(context.Background(), aiextract.Request{Query: "x"})
	require.ErrorIs(t, err, serrors.ErrUnavailable)
}
