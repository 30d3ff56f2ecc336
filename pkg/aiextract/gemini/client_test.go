package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/aiextract/gemini"
	"qrscanner/pkg/serrors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// rtFunc allows using a function as an http.RoundTripper.
type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(key string, fn rtFunc) *gemini.Client {
	return gemini.New(&http.Client{Transport: fn}, "", "", key)
}

func TestClient_Extract_success(t *testing.T) {
	c := newTestClient("test-key", func(r *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "generativelanguage.googleapis.com", r.URL.Host)
		require.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body.Contents[0].Parts[0].Text, "Client code AB12-X")

		return &http.Response{
			StatusCode: http.StatusOK,
			Body: io.NopCloser(strings.NewReader(
				`{"candidates":[{"content":{"parts":[{"text":"code: AB12-X, "},{"text":"code: CD34"}]}}],"modelVersion":"gemini-2.5-flash-001"}`)),
		}, nil
	})

	res, err := c.Extract(context.Background(), aiextract.Request{
		Text:     "Client code AB12-X",
		Query:    "client codes",
		Keywords: []string{"code"},
	})
	require.NoError(t, err)
	require.Equal(t, "gemini-2.5-flash-001", res.Model)
	require.Len(t, res.Items, 2)
	require.Equal(t, "AB12-X", res.Items[0].Text)
	require.Equal(t, "AB12", res.Items[0].Attributes.ExtractedBase)
	require.Equal(t, "CD34", res.Items[1].Text)
}

func TestClient_Extract_rateLimited429(t *testing.T) {
	c := newTestClient("k", func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Body:       io.NopCloser(strings.NewReader("quota exceeded")),
		}, nil
	})

	_, err := c.Extract(context.Background(), aiextract.Request{Query: "x"})
	require.ErrorIs(t, err, serrors.ErrRateLimited)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_Extract_non2xx(t *testing.T) {
	c := newTestClient("k", func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader("bad prompt"))}, nil
	})

	_, err := c.Extract(context.Background(), aiextract.Request{Query: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad prompt")
}

func TestClient_Extract_noCandidates(t *testing.T) {
	c := newTestClient("k", func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"candidates":[]}`))}, nil
	})

	_, err := c.Extract(context.Background(), aiextract.Request{Query: "x"})
	require.ErrorContains(t, err, "no response")
}

func TestClient_Extract_disabledAndEmptyQuery(t *testing.T) {
	called := false
	fn := func(*http.Request) (*http.Response, error) {
		called = true

		return nil, nil
	}

	disabled := newTestClient("", fn)
	require.False(t, disabled.Enabled())
	_, err := disabled.Extract(context.Background(), aiextract.Request{Query: "x"})
	require.ErrorIs(t, err, serrors.ErrUnavailable)

	res, err := newTestClient("k", fn).Extract(context.Background(), aiextract.Request{Query: "  "})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.False(t, called)
}
