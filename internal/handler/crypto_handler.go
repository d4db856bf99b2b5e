// Package handler はHTTPハンドラを提供する。
package handler

import (
	"net/http"
	"strconv"

	"crypto-service/internal/domain"
	"crypto-service/internal/middleware"
	"crypto-service/internal/usecase"
	"crypto-service/pkg/httputil"
)

// maxRandomSize は /v1/random で要求できる最大バイト数。
const maxRandomSize = 1024

// CryptoHandler は暗号操作のHTTPハンドラを提供する。
type CryptoHandler struct {
	service *usecase.CryptoService
}

// NewCryptoHandler は新しいCryptoHandlerを生成する。
func NewCryptoHandler(service *usecase.CryptoService) *CryptoHandler {
	return &CryptoHandler{service: service}
}

// EncryptRequest は暗号化リクエストの形式。
type EncryptRequest struct {
	Plaintext string `json:"plaintext" validate:"max=1048576"`
	KeyID     string `json:"keyId" validate:"omitempty,max=157"`
}

// EncryptedPayload は暗号化結果の入力形式。
type EncryptedPayload struct {
	Encrypted string `json:"encrypted" validate:"required,contains=:"`
	IV        string `json:"iv" validate:"required,hexadecimal"`
	Salt      string `json:"salt" validate:"required,hexadecimal"`
	Algorithm string `json:"algorithm" validate:"required,max=32"`
	KeyID     string `json:"keyId" validate:"required,max=157"`
}

func (p EncryptedPayload) toDomain() *domain.EncryptionResult {
	return &domain.EncryptionResult{
		Encrypted: p.Encrypted,
		IV:        p.IV,
		Salt:      p.Salt,
		Algorithm: p.Algorithm,
		KeyID:     p.KeyID,
	}
}

// DecryptResponse は復号結果の形式。
type DecryptResponse struct {
	Plaintext string `json:"plaintext"`
}

// ReencryptRequest は再暗号化リクエストの形式。
type ReencryptRequest struct {
	Result   EncryptedPayload `json:"result" validate:"required"`
	NewKeyID string           `json:"newKeyId" validate:"required,max=157"`
}

// HMACRequest はHMAC生成リクエストの形式。
type HMACRequest struct {
	Data  string `json:"data" validate:"max=1048576"`
	KeyID string `json:"keyId" validate:"omitempty,max=157"`
}

// HMACResponse はHMAC生成結果の形式。
type HMACResponse struct {
	HMAC  string `json:"hmac"`
	KeyID string `json:"keyId"`
}

// VerifyHMACRequest はHMAC検証リクエストの形式。
type VerifyHMACRequest struct {
	Data  string `json:"data" validate:"max=1048576"`
	HMAC  string `json:"hmac" validate:"required,hexadecimal"`
	KeyID string `json:"keyId" validate:"omitempty,max=157"`
}

// HashRequest はハッシュ計算リクエストの形式。
type HashRequest struct {
	Data string `json:"data" validate:"max=1048576"`
	Salt string `json:"salt" validate:"max=256"`
}

// VerifyHashRequest はハッシュ検証リクエストの形式。
type VerifyHashRequest struct {
	Data string `json:"data" validate:"max=1048576"`
	Salt string `json:"salt" validate:"required,max=256"`
	Hash string `json:"hash" validate:"required,hexadecimal,len=64"`
}

// ValidationResponse は検証結果の形式。
type ValidationResponse struct {
	Valid bool `json:"valid"`
}

// RandomResponse は乱数生成結果の形式。
type RandomResponse struct {
	Random string `json:"random"`
	Size   int    `json:"size"`
}

// StandardsRequest は暗号基準チェックのリクエスト形式。
type StandardsRequest struct {
	Algorithm string `json:"algorithm" validate:"required,max=64"`
	KeySize   int    `json:"keySize" validate:"gte=0"`
}

// Encrypt は平文を暗号化する。
func (h *CryptoHandler) Encrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Encrypt(r.Context(), req.Plaintext, req.KeyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ENCRYPT", "", req.KeyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ENCRYPT", "", result.KeyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, result)
}

// Decrypt は暗号化結果を復号する。
func (h *CryptoHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptedPayload
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	plaintext, err := h.service.Decrypt(r.Context(), req.toDomain())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "DECRYPT", "", req.KeyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DECRYPT", "", req.KeyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, DecryptResponse{Plaintext: plaintext})
}

// Reencrypt は暗号化結果を新しい鍵IDで暗号化し直す。
func (h *CryptoHandler) Reencrypt(w http.ResponseWriter, r *http.Request) {
	var req ReencryptRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Reencrypt(r.Context(), req.Result.toDomain(), req.NewKeyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "REENCRYPT", "", req.NewKeyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "REENCRYPT", "", result.KeyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, result)
}

// CreateHMAC はHMACを生成する。
func (h *CryptoHandler) CreateHMAC(w http.ResponseWriter, r *http.Request) {
	var req HMACRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	keyID := req.KeyID
	if keyID == "" {
		keyID = domain.DefaultKeyID
	}

	mac, err := h.service.CreateHMAC(r.Context(), req.Data, keyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_HMAC", "", keyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_HMAC", "", keyID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, HMACResponse{HMAC: mac, KeyID: keyID})
}

// VerifyHMAC はHMACを検証する。不一致は200で valid=false を返す。
func (h *CryptoHandler) VerifyHMAC(w http.ResponseWriter, r *http.Request) {
	var req VerifyHMACRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	valid, err := h.service.VerifyHMAC(r.Context(), req.Data, req.HMAC, req.KeyID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VERIFY_HMAC", "", req.KeyID, middleware.ResultFailed)
		writeError(w, r, err)
		return
	}

	result := middleware.ResultSuccess
	if !valid {
		result = middleware.ResultFailed
	}
	middleware.WriteAuditLog(r.Context(), "VERIFY_HMAC", "", req.KeyID, result)
	httputil.JSON(w, http.StatusOK, ValidationResponse{Valid: valid})
}

// Hash はデータのソルト付きハッシュを計算する。
func (h *CryptoHandler) Hash(w http.ResponseWriter, r *http.Request) {
	var req HashRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Hash(req.Data, req.Salt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// VerifyHash はデータとソルトからハッシュを再計算して比較する。
func (h *CryptoHandler) VerifyHash(w http.ResponseWriter, r *http.Request) {
	var req VerifyHashRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	valid, err := h.service.VerifyHash(req.Data, req.Salt, req.Hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ValidationResponse{Valid: valid})
}

// Random は暗号学的乱数を返す。sizeを省略した場合は32バイト。
func (h *CryptoHandler) Random(w http.ResponseWriter, r *http.Request) {
	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > maxRandomSize {
			httputil.Error(w, http.StatusBadRequest, "INVALID_SIZE", "size must be between 0 and 1024")
			return
		}
		size = n
	}

	random, err := h.service.GenerateSecureRandom(size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, RandomResponse{Random: random, Size: len(random) / 2})
}

// ValidateStandards はアルゴリズムと鍵長が基準を満たすかを返す。
func (h *CryptoHandler) ValidateStandards(w http.ResponseWriter, r *http.Request) {
	var req StandardsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ValidationResponse{
		Valid: h.service.ValidateEncryptionStandards(req.Algorithm, req.KeySize),
	})
}
