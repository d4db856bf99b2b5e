package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"crypto-service/config"
	"crypto-service/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(crypto *CryptoHandler, keys *KeyHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		// 鍵導出（scrypt）を伴うルートは流量と同時実行数を制限する
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			r.Use(chimiddleware.Throttle(cfg.MaxConcurrentKDF))
			r.Post("/encrypt", crypto.Encrypt)
			r.Post("/decrypt", crypto.Decrypt)
			r.Post("/reencrypt", crypto.Reencrypt)
		})

		r.Post("/hmac", crypto.CreateHMAC)
		r.Post("/hmac/verify", crypto.VerifyHMAC)
		r.Post("/hash", crypto.Hash)
		r.Post("/hash/verify", crypto.VerifyHash)
		r.Get("/random", crypto.Random)
		r.Post("/standards/validate", crypto.ValidateStandards)

		r.Route("/tenants/{tenant_id}/keys", func(r chi.Router) {
			r.Get("/", keys.ListKeys)
			r.Get("/{key_id}", keys.GetKey)
			r.Post("/{key_id}/rotate", keys.RotateKey)
			r.Delete("/{key_id}", keys.RevokeKey)
		})
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "crypto-service")
	}
	return r
}
