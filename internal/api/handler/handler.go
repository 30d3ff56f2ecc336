// Package handler implements the HTTP endpoints of the scan service.
package handler

import (
	"net/http"
	"qrscanner/internal/scanner"
	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/pagegroup"
	"qrscanner/pkg/serrors"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// DefaultLimit is the page size of scan listings.
	DefaultLimit = 20
	// MaxLimit caps the page size of scan listings.
	MaxLimit = 100
	// ChannelPath is where clients follow a registered scan.
	ChannelPath = "/ws"

	defaultMaxUploadSize = 50 << 20
)

// Deps are the services used by the handlers.
type Deps struct {
	Scanner scanner.Scanner
	// Extractor is only asked whether AI extraction is available.
	Extractor aiextract.Extractor
}

// Options configure the handlers.
type Options struct {
	// MaxUploadSize limits uploaded documents in bytes.
	MaxUploadSize int64
	// TextPolicy selects the text of extracted items in CSV exports.
	TextPolicy pagegroup.TextPolicy
}

type Handler struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func New(deps Deps, opts Options) *Handler {
	if deps.Extractor == nil {
		deps.Extractor = aiextract.Disabled{}
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	if opts.TextPolicy == "" {
		opts.TextPolicy = pagegroup.TextBase
	}

	return &Handler{deps: deps, opts: opts, now: time.Now}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/scan", h.SubmitScan)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", h.ScanNow)
		r.Get("/health", h.Health)
		r.Get("/info", h.Info)
	})
	r.Route("/scans", func(r chi.Router) {
		r.Get("/", h.ListScans)
		r.Get("/{id}", h.GetScan)
		r.Get("/{id}/export.csv", h.ExportCSV)
		r.Get("/{id}/report.txt", h.Report)
	})
}

// NotFound answers unknown routes with an ErrorResponse.
func NotFound(w http.ResponseWriter, r *http.Request) {
	controller.WriteError(r.Context(), w, serrors.With(serrors.ErrNotFound, "Not found"))
}

// MethodNotAllowed answers known routes called with another method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	controller.WriteJSON(r.Context(), w, http.StatusMethodNotAllowed, controller.ErrorResponse{
		Error:  "Method not allowed",
		Status: "error",
		Code:   http.StatusMethodNotAllowed,
	})
}

func scanIDParam(r *http.Request) (domain.ScanID, error) {
	id, err := domain.ParseScanID(chi.URLParam(r, "id"))
	if err != nil {
		return domain.ScanID{}, serrors.Wrap(serrors.ErrBadRequest, err, "invalid scan id")
	}

	return id, nil
}
