package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/hash"
	"github.com/a2sh3r/fundsledger/internal/logger"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "HashSHA256"
	maxSignedBody   = 1 << 20
)

// NewSignatureMiddleware rejects requests whose HashSHA256 header is not the
// HMAC-SHA256 of the raw body under secretKey. Without a key every request
// is rejected.
func NewSignatureMiddleware(secretKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secretKey == "" {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logger.Log.Error("webhook rejected: no signing secret configured", zap.String("path", r.URL.Path))
				writeUnauthorized(w, apperrors.Unauthorized("webhook secret is not configured", apperrors.CodeWebhookSecretMissing))
			})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()

			if err := hash.VerifyHash(string(body), secretKey, r.Header.Get(SignatureHeader)); err != nil {
				logger.Log.Warn("webhook signature rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
				writeUnauthorized(w, apperrors.Unauthorized("invalid webhook signature", apperrors.CodeInvalidWebhookSignature))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, appErr *apperrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": appErr.Message, "code": appErr.Code}); err != nil {
		logger.Log.Error("failed to write response", zap.Error(err))
	}
}
