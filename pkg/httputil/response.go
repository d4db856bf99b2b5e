// Package httputil はHTTPレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// ErrorResponse はエラーレスポンスの形式。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// fallbackBody はレスポンスを組み立てられなかったときの本文。
const fallbackBody = `{"code":"INTERNAL_ERROR","message":"internal server error"}`

// JSON はdataをJSONで返す。レスポンスには暗号結果が載るためキャッシュさせない。
// ヘッダー送信前にエンコードするので、失敗時は500を返せる。
func JSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	if data == nil {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
		status, body = http.StatusInternalServerError, []byte(fallbackBody)
	}
	body = append(body, '\n')

	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

// Error はエラーレスポンスを返す。
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Code: code, Message: message})
}
