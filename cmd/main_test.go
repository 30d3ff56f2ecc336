package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"qrscanner/internal/api/handler"
	"qrscanner/internal/pushhub"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/pagegroup"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Setup(logger.DevelopmentEnvironment, ""); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func TestChannelURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "https://scan.example.com/", want: "wss://scan.example.com/ws"},
		{in: "https://example.com/qr", want: "wss://example.com/qr/ws"},
		{in: "ws://127.0.0.1:1", want: "ws://127.0.0.1:1/ws"},
	}

	for _, tt := range tests {
		got, err := channelURL(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}

	_, err := channelURL("ftp://example.com")
	require.Error(t, err)
}

func TestSubmitOptions_Fields(t *testing.T) {
	f := submitOptions{
		domains:     []string{"example.com", "shop.example.com"},
		utm:         []string{"utm_source=print", "utm_medium=flyer"},
		searchTexts: []string{"Welcome"},
		timeout:     15,
		aiQuery:     "prices",
		keywords:    []string{"price"},
	}.fields()

	require.Equal(t, []string{"example.com,shop.example.com"}, f["expected_domains"])
	require.Equal(t, []string{"utm_source=print;utm_medium=flyer"}, f["expected_utm_params"])
	require.Equal(t, []string{"Welcome"}, f["search_texts"])
	require.Equal(t, []string{"15"}, f["timeout"])
	require.Equal(t, []string{"false"}, f["extract_text"])
	require.Equal(t, []string{"price"}, f["extraction_keywords"])

	f = submitOptions{timeout: 10, keywords: []string{"ignored"}}.fields()
	require.NotContains(t, f, "ai_query")
	require.NotContains(t, f, "extraction_keywords")
}

func writePDF(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flyer.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	return path
}

func TestSubmit(t *testing.T) {
	id := domain.NewScanID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan" || r.ParseMultipartForm(1<<20) != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}
		b, _ := io.ReadAll(f)
		if header.Filename != "flyer.pdf" || string(b) != "%PDF-1.4" || r.FormValue("timeout") != "20" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		controller.WriteJSON(r.Context(), w, http.StatusAccepted, handler.SubmitResponse{
			ScanID:  id.String(),
			Status:  domain.ScanStatusPending,
			Channel: handler.ChannelPath,
		})
	}))
	defer srv.Close()

	res, err := submit(context.Background(), srv.Client(), srv.URL+"/", writePDF(t), submitOptions{timeout: 20})

	require.NoError(t, err)
	require.Equal(t, id.String(), res.ScanID)
	require.Equal(t, domain.ScanStatusPending, res.Status)
}

func TestSubmit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		controller.WriteJSON(r.Context(), w, http.StatusUnsupportedMediaType, controller.ErrorResponse{
			Error:  "Only PDF files are accepted",
			Status: "error",
			Code:   http.StatusUnsupportedMediaType,
		})
	}))
	defer srv.Close()

	_, err := submit(context.Background(), srv.Client(), srv.URL, writePDF(t), submitOptions{timeout: 10})

	require.EqualError(t, err, "Only PDF files are accepted")
}

func TestSubmit_MissingFile(t *testing.T) {
	_, err := submit(context.Background(), http.DefaultClient, "http://127.0.0.1:1", "/does/not/exist.pdf", submitOptions{})

	require.ErrorContains(t, err, "could not open file")
}

// newHub serves a push hub which answers client_ready by running a scan
// through the given events.
func newHub(t *testing.T, events func(id domain.ScanID) []domain.Event) string {
	t.Helper()

	var hub *pushhub.Hub
	hub = pushhub.New(pushhub.Options{}, func(ctx context.Context, id domain.ScanID) error {
		go func() {
			for _, ev := range events(id) {
				hub.Publish(context.Background(), ev)
			}
		}()

		return nil
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(handler.ChannelPath, hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Close(ctx)
		srv.Close()
	})

	return srv.URL
}

func TestWatch(t *testing.T) {
	url := newHub(t, func(id domain.ScanID) []domain.Event {
		return []domain.Event{
			domain.ProgressEvent{ScanID: id.String(), Message: "Scanning page 1/2"},
			domain.CompleteEvent{ScanID: id.String(), ScanResults: domain.ScanResults{
				Success:    true,
				URLResults: []domain.QrResult{{Page: 1, URL: "https://example.com/offer"}},
				Stats:      domain.Stats{TotalPages: 2, PagesWithQR: 1, UniqueURLs: 1, TotalURLResults: 1},
			}},
		}
	})

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := watch(ctx, url, domain.NewScanID().String(), pagegroup.TextBase, watchOptions{format: "text", width: 60}, &out)

	require.NoError(t, err)
	require.Contains(t, out.String(), "Scanning page 1/2")
	require.Contains(t, out.String(), "Scan complete")
	require.Contains(t, out.String(), "https://example.com/offer")
}

func TestWatch_ScanError(t *testing.T) {
	url := newHub(t, func(id domain.ScanID) []domain.Event {
		return []domain.Event{domain.ErrorEvent{ScanID: id.String(), Error: "Scan failed: broken pdf"}}
	})

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := watch(ctx, url, domain.NewScanID().String(), pagegroup.TextBase, watchOptions{format: "text"}, &out)

	require.EqualError(t, err, "scan failed: Scan failed: broken pdf")
	require.Contains(t, out.String(), "Error: Scan failed: broken pdf")
}

func TestWatch_BadInput(t *testing.T) {
	var out bytes.Buffer

	err := watch(context.Background(), "http://localhost", "id", pagegroup.TextBase, watchOptions{format: "pdf"}, &out)
	require.ErrorContains(t, err, "unknown format")

	err = watch(context.Background(), "http://127.0.0.1:1", "id", pagegroup.TextBase, watchOptions{format: "text"}, &out)
	require.ErrorContains(t, err, "could not connect")
}
