package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/logger"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", zap.Error(err))
	}
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case apperrors.KindBusinessLogic, apperrors.KindInvalidStateTransition, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status of its kind. Internal messages are
// logged and replaced so store details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("internal server error", err)
	}

	status := statusFor(appErr.Kind)
	resp := errorResponse{
		Error:         appErr.Message,
		Code:          appErr.Code,
		CorrelationID: appErr.CorrelationID,
	}
	if status == http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.String("correlation_id", appErr.CorrelationID),
			zap.Error(err),
		)
		if appErr.Code == "" {
			resp.Error = "internal server error"
		}
	}
	if resp.Error == "" {
		resp.Error = string(appErr.Kind)
	}
	writeJSON(w, status, resp)
}

// decodeJSON decodes the body into dst and runs struct validation. An empty
// body is accepted when allowEmpty is set.
func (h *Handler) decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return apperrors.Validation("invalid request body")
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.Validation("invalid request: %v", err)
	}
	return nil
}
