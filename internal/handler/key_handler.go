package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crypto-service/internal/domain"
	"crypto-service/internal/middleware"
	"crypto-service/internal/usecase"
	"crypto-service/pkg/httputil"
)

// KeyHandler は鍵メタデータ管理のHTTPハンドラを提供する。
type KeyHandler struct {
	keys   *usecase.KeyService
	crypto *usecase.CryptoService
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(keys *usecase.KeyService, crypto *usecase.CryptoService) *KeyHandler {
	return &KeyHandler{keys: keys, crypto: crypto}
}

// KeyMetadataResponse は鍵メタデータのレスポンス形式。
type KeyMetadataResponse struct {
	KeyID     string `json:"keyId"`
	TenantID  string `json:"tenantId"`
	Algorithm string `json:"algorithm"`
	KeySize   int    `json:"keySize"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt"`
}

// KeyListResponse は鍵一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyMetadataResponse `json:"keys"`
}

// RotateKeyRequest はローテーションリクエストの形式。ボディは省略可能。
type RotateKeyRequest struct {
	Purpose string `json:"purpose" validate:"omitempty,oneof=ENCRYPTION SIGNING KEY_EXCHANGE"`
}

func toKeyMetadataResponse(m *domain.KeyMetadata) KeyMetadataResponse {
	return KeyMetadataResponse{
		KeyID:     m.KeyID,
		TenantID:  m.TenantID,
		Algorithm: m.Algorithm,
		KeySize:   m.KeySize,
		Purpose:   string(m.Purpose),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: m.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// ListKeys はテナントの鍵メタデータ一覧を取得する。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")

	keys, err := h.keys.ListKeys(r.Context(), tenantID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LIST_KEYS", tenantID, "", middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "LIST_KEYS", tenantID, "", middleware.ResultSuccess)
	response := KeyListResponse{Keys: make([]KeyMetadataResponse, len(keys))}
	for i, k := range keys {
		response.Keys[i] = toKeyMetadataResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetKey は鍵メタデータを取得する。
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	keyID := chi.URLParam(r, "key_id")

	key, err := h.keys.GetKey(r.Context(), tenantID, keyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_KEY", tenantID, keyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "GET_KEY", tenantID, keyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, toKeyMetadataResponse(key))
}

// RotateKey は鍵をローテーションし、新しい鍵IDのメタデータを返す。
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	keyID := chi.URLParam(r, "key_id")

	var req RotateKeyRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	purpose := domain.KeyPurposeEncryption
	if req.Purpose != "" {
		purpose = domain.KeyPurpose(req.Purpose)
	}

	metadata, err := h.crypto.RotateKeyForPurpose(r.Context(), keyID, tenantID, purpose)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ROTATE_KEY", tenantID, keyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ROTATE_KEY", tenantID, metadata.KeyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, toKeyMetadataResponse(metadata))
}

// RevokeKey は鍵を失効させる。
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	keyID := chi.URLParam(r, "key_id")

	metadata, err := h.keys.RevokeKey(r.Context(), tenantID, keyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REVOKE_KEY", tenantID, keyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REVOKE_KEY", tenantID, keyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, toKeyMetadataResponse(metadata))
}
