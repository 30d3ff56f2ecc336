package handler

import (
	"bytes"
	"io"
	"net/http"
	"qrscanner/internal/scanner"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/csvexport"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/serrors"
	"strconv"
	"strings"
)

// ScanList is a page of stored scans.
type ScanList struct {
	Items      []domain.Scan `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ListScans returns stored scans, newest first. The listing may be filtered by
// status and continued with the cursor of the previous page.
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	status := domain.ScanStatus(strings.ToUpper(q.Get("status")))
	switch status {
	case "", domain.ScanStatusPending, domain.ScanStatusRunning, domain.ScanStatusCompleted, domain.ScanStatusFailed:
	default:
		controller.WriteError(ctx, w, serrors.With(serrors.ErrBadRequest, "unknown status %q", q.Get("status")))

		return
	}

	limit := uint(DefaultLimit)
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n == 0 {
			controller.WriteError(ctx, w, serrors.With(serrors.ErrBadRequest, "limit must be a positive integer"))

			return
		}
		limit = uint(min(n, MaxLimit))
	}

	items, next, err := h.deps.Scanner.Scans(ctx, status, q.Get("cursor"), limit)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return
	}
	if items == nil {
		items = []domain.Scan{}
	}

	controller.WriteJSON(ctx, w, http.StatusOK, ScanList{Items: items, NextCursor: next})
}

func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	scan, ok := h.scan(w, r)
	if !ok {
		return
	}

	controller.WriteJSON(r.Context(), w, http.StatusOK, scan)
}

// ExportCSV downloads the items of a completed scan grouped by page.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scan, ok := h.scan(w, r)
	if !ok {
		return
	}
	if scan.Status != domain.ScanStatusCompleted || scan.Result == nil {
		controller.WriteError(ctx, w, serrors.With(serrors.ErrConflict, "scan %s is %s", scan.ID, scan.Status))

		return
	}

	var buf bytes.Buffer
	if err := csvexport.Write(&buf, *scan.Result, h.opts.TextPolicy); err != nil {
		controller.WriteError(ctx, w, err)

		return
	}

	download(w, "text/csv; charset=utf-8", csvexport.FileName(scan.ID.String(), h.now()), &buf)
}

// Report downloads a plain text report of a scan.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	scan, ok := h.scan(w, r)
	if !ok {
		return
	}

	name := "qr_scan_report_" + scan.ID.String() + ".txt"
	download(w, "text/plain; charset=utf-8", name, strings.NewReader(scanner.Report(scan)))
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) (*domain.Scan, bool) {
	ctx := r.Context()

	id, err := scanIDParam(r)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return nil, false
	}

	scan, err := h.deps.Scanner.Result(ctx, id)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return nil, false
	}

	return scan, true
}

func download(w http.ResponseWriter, contentType, name string, body io.Reader) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
