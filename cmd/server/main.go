// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crypto-service/config"
	"crypto-service/internal/handler"
	"crypto-service/internal/infra"
	"crypto-service/internal/repository"
	"crypto-service/internal/usecase"
	"crypto-service/internal/worker"
	"crypto-service/migrations"
)

// keyProvider はマスター鍵とHMAC鍵の両方を提供する。
type keyProvider interface {
	usecase.MasterKeyProvider
	usecase.HMACKeyProvider
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// トレーサー初期化（ロガー設定の前に実行）
	shutdownTracing, err := infra.StartTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)
	if cfg.IsDevelopment() {
		slog.Warn("running in development mode; missing keys are replaced with ephemeral keys")
	}

	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		return err
	}

	migrationService := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrations.FS)
	applied, err := migrationService.ApplyMigrations(ctx)
	if err != nil {
		return err
	}
	slog.Info("migrations applied", "count", applied)

	// 鍵プロバイダ初期化（必須鍵が揃わなければ起動しない）
	var keys keyProvider
	switch cfg.KeyProvider {
	case config.KeyProviderKMS:
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := kmsClient.Close(); closeErr != nil {
				slog.Error("failed to close KMS client", "error", closeErr)
			}
		}()
		keys, err = infra.NewKMSKeyProvider(ctx, kmsClient, cfg.RequiredKeyIDs, cfg.IsDevelopment())
		if err != nil {
			return err
		}
	default:
		keys, err = infra.NewEnvKeyProvider(ctx, cfg.RequiredKeyIDs, cfg.IsDevelopment())
		if err != nil {
			return err
		}
	}

	// DI
	repo := repository.NewKeyMetadataRepository(db)
	cryptoService, err := usecase.NewCryptoService(keys, keys, repo, usecase.CryptoConfig{
		Algorithm:   cfg.CipherAlgorithm,
		ScryptN:     cfg.ScryptN,
		ScryptR:     cfg.ScryptR,
		ScryptP:     cfg.ScryptP,
		KeyValidity: cfg.KeyValidity,
	})
	if err != nil {
		return err
	}
	keyService := usecase.NewKeyService(repo)
	router := handler.NewRouter(
		handler.NewCryptoHandler(cryptoService),
		handler.NewKeyHandler(keyService, cryptoService),
		cfg,
	)

	go worker.NewExpirySweeper(keyService, cfg.ExpirySweepInterval).Start(ctx)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port, "algorithm", cfg.CipherAlgorithm, "key_provider", cfg.KeyProvider)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
