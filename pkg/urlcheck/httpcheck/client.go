// Package httpcheck provides a urlcheck.Checker that fetches the URLs it
// validates.
package httpcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/urlcheck"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultUserAgent identifies the checker to landing pages.
	DefaultUserAgent = "QR-Scanner/1.0"
	// DefaultMaxBody bounds how much of a landing page is searched.
	DefaultMaxBody = 2 << 20
)

// Client checks URLs over HTTP. It first asks with HEAD, following redirects,
// and falls back to GET when HEAD fails at the transport level. Landing pages
// are downloaded only when search texts are configured. It is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBody    int64
	now        func() time.Time
}

// Ensure Client conforms to the urlcheck.Checker interface at compile time.
var _ urlcheck.Checker = (*Client)(nil)

// New constructs a Client sending requests through httpClient.
func New(httpClient *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		maxBody:    DefaultMaxBody,
		now:        time.Now,
	}
}

type fetched struct {
	status        int
	finalURL      string
	contentType   string
	contentLength *int64
	body          string
	hasBody       bool
}

// Check validates rawURL against rules.
func (c *Client) Check(ctx context.Context, rawURL string, rules urlcheck.Rules) domain.QrResult {
	res := domain.QrResult{URL: rawURL}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		res.Error = fmt.Sprintf("could not parse URL: %v", err)

		return res
	}
	res.Netloc = u.Host
	res.UTMParams = urlcheck.UTMParams(u.Query())
	res.DomainValid = urlcheck.DomainValid(u.Hostname(), rules.ExpectedDomains)
	res.UTMValid = urlcheck.UTMValid(res.UTMParams, rules.ExpectedUTM)

	if rules.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rules.Timeout)
		defer cancel()
	}

	started := c.now()
	f, err := c.fetch(ctx, u.String(), len(rules.SearchTexts) > 0)
	elapsed := urlcheck.Round(float64(c.now().Sub(started).Microseconds())/1000, 2)
	res.ResponseTimeMS = &elapsed
	if err != nil {
		logger.Warn(ctx, "could not reach url", zap.String("url", rawURL), zap.Error(err))
		res.Error = err.Error()
	} else {
		res.HTTPStatus = &f.status
		res.FinalURL = f.finalURL
		res.ContentType = f.contentType
		res.ContentLength = f.contentLength
	}

	if f.hasBody {
		res.TextSearchValid = urlcheck.TextValid(f.body, rules.SearchTexts)
	} else if len(rules.SearchTexts) > 0 {
		res.TextSearchValid = urlcheck.TextValid("", rules.SearchTexts)
	}

	return res
}

func (c *Client) fetch(ctx context.Context, target string, wantBody bool) (fetched, error) {
	resp, err := c.do(ctx, http.MethodHead, target)
	if err != nil {
		// some servers drop HEAD; retry with GET
		resp, err = c.do(ctx, http.MethodGet, target)
		if err != nil {
			return fetched{}, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		f := describe(resp)
		b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
		if err != nil {
			return f, fmt.Errorf("could not read response body: %w", err)
		}
		n := int64(len(b))
		f.contentLength = &n
		if wantBody && resp.StatusCode == http.StatusOK {
			f.body, f.hasBody = string(b), true
		}

		return f, nil
	}
	_ = resp.Body.Close()

	f := describe(resp)
	if !wantBody || resp.StatusCode != http.StatusOK {
		return f, nil
	}

	body, err := c.get(ctx, target)
	if err != nil {
		logger.Warn(ctx, "could not fetch landing page after HEAD", zap.String("url", target), zap.Error(err))

		return f, nil
	}
	f.body, f.hasBody = body, true

	return f, nil
}

func (c *Client) get(ctx context.Context, target string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return "", fmt.Errorf("could not read response body: %w", err)
	}

	return string(b), nil
}

func (c *Client) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send %s request: %w", method, err)
	}

	return resp, nil
}

func describe(resp *http.Response) fetched {
	f := fetched{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		f.finalURL = resp.Request.URL.String()
	}
	if resp.ContentLength >= 0 {
		n := resp.ContentLength
		f.contentLength = &n
	}

	return f
}
