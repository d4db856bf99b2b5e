package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"crypto-service/internal/domain"
	"crypto-service/pkg/httputil"
)

// writeError はドメインエラーをHTTPステータスに変換して返す。
// 原因の詳細（鍵IDの解決過程など）はレスポンスに含めない。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidBody):
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	case errors.Is(err, domain.ErrInvalidTenantID):
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT_ID", "invalid tenant ID format")
	case errors.Is(err, domain.ErrInvalidKeyID):
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "invalid key ID format")
	case errors.Is(err, domain.ErrUnsupportedAlgorithm):
		httputil.Error(w, http.StatusBadRequest, "UNSUPPORTED_ALGORITHM", "unsupported algorithm")
	case errors.Is(err, domain.ErrInvalidKeyMetadata):
		httputil.Error(w, http.StatusBadRequest, "INVALID_KEY_METADATA", "invalid key metadata")
	case errors.Is(err, domain.ErrKeyNotFound):
		httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
	case errors.Is(err, domain.ErrKeyAlreadyRevoked):
		httputil.Error(w, http.StatusConflict, "KEY_ALREADY_REVOKED", "key is already revoked")
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		httputil.Error(w, http.StatusConflict, "INVALID_STATUS_TRANSITION", "invalid key status transition")
	case errors.Is(err, domain.ErrKeyAlreadyExists):
		httputil.Error(w, http.StatusConflict, "KEY_ALREADY_EXISTS", "key already exists")
	case errors.Is(err, domain.ErrMasterKeyUnavailable):
		slog.ErrorContext(r.Context(), "key material unavailable", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "KEY_UNAVAILABLE", "key material is unavailable")
	case errors.Is(err, domain.ErrDecryption):
		httputil.Error(w, http.StatusUnprocessableEntity, "DECRYPTION_FAILED", "decryption failed")
	case errors.Is(err, domain.ErrIntegrity):
		httputil.Error(w, http.StatusUnprocessableEntity, "INTEGRITY_FAILED", "integrity operation failed")
	case errors.Is(err, domain.ErrHashing):
		httputil.Error(w, http.StatusBadRequest, "HASHING_FAILED", "hashing failed")
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
