// Package gemini provides an aiextract.Extractor backed by the Google
// Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/serrors"
	"strings"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"
)

// Client calls the generateContent endpoint. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

var _ aiextract.Extractor = (*Client)(nil)

// New constructs a Client. Empty baseURL and model select the defaults.
func New(httpClient *http.Client, baseURL, model, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// Extract sends the prompt built from req and parses the answer.
func (c *Client) Extract(ctx context.Context, req aiextract.Request) (aiextract.Result, error) {
	if !c.Enabled() {
		return aiextract.Result{}, serrors.With(serrors.ErrUnavailable, "AI extraction not available: API key not configured")
	}
	if strings.TrimSpace(req.Query) == "" {
		return aiextract.Result{Model: c.model}, nil
	}

	// https://ai.google.dev/api/generate-content#method:-models.generatecontent
	bodyBytes, err := json.Marshal(struct {
		Contents []content `json:"contents"`
	}{Contents: []content{{Role: "user", Parts: []part{{Text: aiextract.Prompt(req)}}}}})
	if err != nil {
		return aiextract.Result{}, fmt.Errorf("could not marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return aiextract.Result{}, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return aiextract.Result{}, fmt.Errorf("could not send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return aiextract.Result{}, fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return aiextract.Result{}, serrors.With(serrors.ErrRateLimited, "rate limited: %s", strings.TrimSpace(string(b)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return aiextract.Result{}, fmt.Errorf("generate content failed: %s", strings.TrimSpace(string(b)))
	}

	var rs struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
		ModelVersion string `json:"modelVersion"`
	}
	if err := json.Unmarshal(b, &rs); err != nil {
		return aiextract.Result{}, fmt.Errorf("could not decode response: %w", err)
	}
	if len(rs.Candidates) == 0 {
		return aiextract.Result{}, fmt.Errorf("no response from model %s", c.model)
	}

	var text strings.Builder
	for _, p := range rs.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	raw := strings.TrimSpace(text.String())

	model := rs.ModelVersion
	if model == "" {
		model = c.model
	}

	return aiextract.Result{Items: aiextract.Parse(raw, req.Keywords), Model: model, Raw: raw}, nil
}
