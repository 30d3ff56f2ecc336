package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"

	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
	Code   int    `json:"code"`
}

// StatusOf maps the kind of err to an HTTP status code. Errors without a kind
// are internal errors.
func StatusOf(err error) int {
	switch serrors.KindOf(err) {
	case serrors.ErrBadRequest:
		return http.StatusBadRequest
	case serrors.ErrNotFound:
		return http.StatusNotFound
	case serrors.ErrConflict:
		return http.StatusConflict
	case serrors.ErrUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case serrors.ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case serrors.ErrRateLimited:
		return http.StatusTooManyRequests
	case serrors.ErrTimeout:
		return http.StatusGatewayTimeout
	case serrors.ErrUnavailable, serrors.ErrClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorResponse. Internal errors are logged and
// their details are not sent to the client.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusOf(err)

	msg := err.Error()
	var serr *serrors.Error
	if errors.As(err, &serr) && serr.Message() != "" {
		msg = serr.Message()
	}
	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", zap.Error(err))
		msg = "Internal server error"
	} else {
		logger.Debug(ctx, "request rejected", zap.Int("status", status), zap.Error(err))
	}

	WriteJSON(ctx, w, status, ErrorResponse{Error: msg, Status: "error", Code: status})
}

// WriteJSON writes v with the given status.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(ctx, "could not write response", zap.Error(err))
	}
}
