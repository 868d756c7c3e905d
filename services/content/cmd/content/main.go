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

	"aitutor/internal/authclient"
	"aitutor/internal/usertoken"
	"aitutor/internal/util"
	"aitutor/pkg/storage"
	"aitutor/pkg/store"
	"aitutor/services/content/internal/app"
	"aitutor/services/content/internal/config"
	"aitutor/services/content/internal/server"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	util.InitLogger(cfg.LogLevel, "content")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to open store", "err", err)
	}
	defer dataStore.Close()

	var objects storage.ObjectStore
	if cfg.StorageEnabled() {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init object storage", "err", err)
		}
		objects = minioStore
	} else {
		slog.Warn("minioEndpoint not set; attachments are disabled")
	}

	presignTTL, _ := config.ParseDuration(cfg.PresignTTL, 15*time.Minute)
	appCore, err := app.New(app.Config{Store: dataStore, Objects: objects, PresignTTL: presignTTL})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	srvCfg := server.Config{
		App:            appCore,
		Auth:           authclient.NewClient(cfg.AuthServiceURL),
		MaxUploadBytes: cfg.MaxUploadBytes,
		Health:         dataStore.Ping,
	}
	if cfg.AuthJWKSURL != "" {
		leeway, _ := config.ParseDuration(cfg.JWTLeeway, 0)
		verifier, err := usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Leeway:     leeway,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			util.Fatal("failed to init jwks verifier", "err", err)
		}
		srvCfg.TokenVerifier = verifier
	}
	trusted, err := util.NewTrustedProxies(config.SplitList(cfg.TrustedProxies))
	if err != nil {
		util.Fatal("invalid trustedProxies", "err", err)
	}
	srvCfg.TrustedProxies = trusted
	httpServer := server.New(srvCfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("content server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}
}
