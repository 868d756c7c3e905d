package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"aitutor/internal/ratelimit"
	"aitutor/internal/util"
	"aitutor/pkg/store"
	"aitutor/services/auth/internal/app"
	"aitutor/services/auth/internal/config"
	"aitutor/services/auth/internal/server"
)

const defaultSessionTTL = 7 * 24 * time.Hour

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	util.InitLogger(cfg.LogLevel, "auth")

	sessionTTL, _ := config.ParseDuration(cfg.SessionTTL, defaultSessionTTL)
	leeway, _ := config.ParseDuration(cfg.JWTLeeway, 0)
	verifyKeys, _ := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)

	dataStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to open store", "err", err)
	}
	defer dataStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		redisClient *redis.Client
		revoker     store.TokenRevoker = store.NewMemoryTokenRevoker()
	)
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			util.Fatal("failed to reach redis", "addr", cfg.RedisAddr, "err", err)
		}
		revoker = store.NewRedisTokenRevoker(redisClient, sessionTTL)
	} else {
		slog.Warn("redisAddr not set; token revocation is local to this instance")
	}

	jwtOpts := store.JWTOptions{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: leeway}
	var sessions *store.JWTSessionStore
	if strings.TrimSpace(cfg.JWTPrivateKeyPath) != "" {
		sessions, err = store.NewJWTSessionStoreFromPEM(cfg.JWTPrivateKeyPath, cfg.JWTKeyID, verifyKeys, sessionTTL, revoker, jwtOpts)
	} else {
		slog.Warn("jwtPrivateKeyPath not set; using an ephemeral signing key")
		var key *rsa.PrivateKey
		key, err = store.GenerateSigningKey()
		if err == nil {
			sessions, err = store.NewJWTSessionStore(key, cfg.JWTKeyID, nil, sessionTTL, revoker, jwtOpts)
		}
	}
	if err != nil {
		util.Fatal("failed to init session store", "err", err)
	}

	appCore, err := app.New(app.Config{Store: dataStore, Sessions: sessions})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	if cfg.SeedAdminEmail != "" {
		if _, err := appCore.EnsureAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword, cfg.SeedAdminName); err != nil {
			util.Fatal("failed to seed admin", "err", err)
		}
	}

	trusted, err := util.NewTrustedProxies(config.SplitList(cfg.TrustedProxies))
	if err != nil {
		util.Fatal("invalid trustedProxies", "err", err)
	}
	registerLimiter := newLimiter(redisClient, "aitutor:ratelimit:register", cfg.RegisterRateLimitPerMinute)
	loginLimiter := newLimiter(redisClient, "aitutor:ratelimit:login", cfg.LoginRateLimitPerMinute)

	httpServer := server.New(server.Config{
		App:             appCore,
		RegisterLimiter: registerLimiter,
		LoginLimiter:    loginLimiter,
		TrustedProxies:  trusted,
		Health:          dataStore.Ping,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("auth server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}
}

func newLimiter(client *redis.Client, prefix string, perMinute int) *ratelimit.FixedWindowLimiter {
	if client == nil || perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(client, prefix, perMinute, time.Minute)
	if err != nil {
		util.Fatal("failed to init rate limiter", "prefix", prefix, "err", err)
	}
	return limiter
}
