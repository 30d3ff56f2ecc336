package handler

import (
	"net/http"
	"qrscanner/internal/scanner"
	"qrscanner/pkg/controller"
	"strconv"
)

type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

type InfoResponse struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	Endpoints        map[string]string `json:"endpoints"`
	SupportedFormats []string          `json:"supported_formats"`
	MaxFileSize      string            `json:"max_file_size"`
	Features         []string          `json:"features"`
}

var features = []string{
	"QR code detection",
	"HTTP validation",
	"UTM parameter validation",
	"Domain validation",
	"Landing page text search",
	"AI data extraction",
	"Text extraction",
}

// Health reports the state of the services behind the API. AI extraction is
// reported unavailable when no model is configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ai := "unavailable"
	if h.deps.Extractor.Enabled() {
		ai = "ok"
	}

	controller.WriteJSON(r.Context(), w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: scanner.Version,
		Services: map[string]string{
			"file_service":  "ok",
			"scan_service":  "ok",
			"ai_extraction": ai,
		},
	})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	controller.WriteJSON(r.Context(), w, http.StatusOK, InfoResponse{
		Name:        "QR PDF Scanner API",
		Version:     scanner.Version,
		Description: "Scans the QR codes of PDF documents with link validation and AI extraction",
		Endpoints: map[string]string{
			"POST /scan":                 "Upload a PDF and follow the scan on " + ChannelPath,
			"POST /api/scan":             "Scan a PDF synchronously",
			"GET /api/health":            "Health check",
			"GET /api/info":              "API information",
			"GET /scans":                 "List scans",
			"GET /scans/{id}":            "Get a scan",
			"GET /scans/{id}/export.csv": "Download the extracted items as CSV",
			"GET /scans/{id}/report.txt": "Download a text report",
		},
		SupportedFormats: []string{"PDF"},
		MaxFileSize:      strconv.FormatInt(h.opts.MaxUploadSize>>20, 10) + "MB",
		Features:         features,
	})
}
