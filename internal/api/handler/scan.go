package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/scanform"
	"qrscanner/pkg/serrors"
	"strings"

	"go.uber.org/zap"
)

// multipartMemory is the part of an upload kept in memory while parsing.
const multipartMemory = 8 << 20

// SubmitResponse is returned when an upload is accepted for a push channel scan.
type SubmitResponse struct {
	ScanID  string            `json:"scan_id"`
	Status  domain.ScanStatus `json:"status"`
	Channel string            `json:"channel"`
}

// ScanNowResponse is the outcome of a synchronous scan.
type ScanNowResponse struct {
	ScanID string `json:"scan_id"`
	domain.ScanResults
}

// SubmitScan stores the upload and a PENDING scan. The scan starts once a
// client reports ready on the push channel.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	upload, opts, err := h.readUpload(w, r)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return
	}
	defer upload.Close()

	scan, err := h.deps.Scanner.Register(ctx, upload.name, upload, opts)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return
	}

	controller.WriteJSON(ctx, w, http.StatusAccepted, SubmitResponse{
		ScanID:  scan.ID.String(),
		Status:  scan.Status,
		Channel: ChannelPath,
	})
}

// ScanNow scans the upload synchronously and returns the results.
func (h *Handler) ScanNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	upload, opts, err := h.readUpload(w, r)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return
	}
	defer upload.Close()

	res, err := h.deps.Scanner.ScanNow(ctx, upload.name, upload, opts)
	if err != nil {
		controller.WriteError(ctx, w, err)

		return
	}

	id := domain.NewScanID()
	logger.Info(ctx, "synchronous scan done", zap.Stringer("scan_id", id),
		zap.String("file", upload.name), zap.Int("urls", res.Stats.TotalURLResults))

	controller.WriteJSON(ctx, w, http.StatusOK, ScanNowResponse{
		ScanID:      id.String(),
		ScanResults: *res,
	})
}

type upload struct {
	multipart.File
	name string
}

// readUpload parses the multipart form of a scan request. The document is
// read from the "file" field, or "pdf" as sent by the web form.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, domain.ScanOptions, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return nil, domain.ScanOptions{}, serrors.With(serrors.ErrTooLarge,
				"File too large. Maximum size: %dMB", h.opts.MaxUploadSize>>20)
		}

		return nil, domain.ScanOptions{}, serrors.Wrap(serrors.ErrBadRequest, err, "invalid multipart form")
	}

	var (
		file multipart.File
		name string
	)
	for _, field := range []string{"file", "pdf"} {
		f, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, domain.ScanOptions{}, serrors.Wrap(serrors.ErrBadRequest, err, "could not read %s", field)
		}
		file, name = f, header.Filename

		break
	}

	opts, err := scanform.Validate(scanform.Request{
		FileName:    name,
		Domains:     r.FormValue("expected_domains"),
		UTM:         r.FormValue("expected_utm_params"),
		SearchTexts: r.FormValue("search_texts"),
		Timeout:     r.FormValue("timeout"),
		ExtractText: r.FormValue("extract_text"),
		AIQuery:     firstValue(r, "ai_query", "unstructured_data_query"),
		AIKeywords:  append(r.MultipartForm.Value["ai_keywords"], r.MultipartForm.Value["extraction_keywords"]...),
	})
	if err != nil {
		if file != nil {
			_ = file.Close()
		}

		return nil, domain.ScanOptions{}, fmt.Errorf("invalid scan request: %w", err)
	}

	return &upload{File: file, name: name}, opts, nil
}

func firstValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.FormValue(k)); v != "" {
			return v
		}
	}

	return ""
}
