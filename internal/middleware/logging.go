// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果種別。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// WriteAuditLog は監査ログを出力する。平文・鍵・MAC値は渡さないこと。
func WriteAuditLog(ctx context.Context, operation, tenantID, keyID, result string) {
	attrs := []any{
		"operation", operation,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	if tenantID != "" {
		attrs = append(attrs, "tenant_id", tenantID)
	}
	if keyID != "" {
		attrs = append(attrs, "key_id", keyID)
	}
	if result == ResultSuccess {
		slog.InfoContext(ctx, "crypto operation completed", attrs...)
		return
	}
	slog.WarnContext(ctx, "crypto operation failed", attrs...)
}
