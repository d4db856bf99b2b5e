package middleware

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"crypto-service/pkg/httputil"
)

// RateLimit はプロセス全体で共有するトークンバケットでリクエストを制限する。
// 上限を超えたリクエストには429を返す。
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				WriteAuditLog(r.Context(), "RATE_LIMIT", "", "", ResultFailed)
				w.Header().Set("Retry-After", strconv.Itoa(1))
				httputil.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
