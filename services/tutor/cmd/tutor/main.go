package main

import (
	"context"
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

	"aitutor/internal/authclient"
	"aitutor/internal/ratelimit"
	"aitutor/internal/usertoken"
	"aitutor/internal/util"
	"aitutor/pkg/ai"
	"aitutor/pkg/store"
	"aitutor/services/tutor/internal/app"
	"aitutor/services/tutor/internal/config"
	"aitutor/services/tutor/internal/server"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	util.InitLogger(cfg.LogLevel, "tutor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to open store", "err", err)
	}
	defer dataStore.Close()

	completer, err := ai.NewCompleter(ai.ProviderConfig{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		util.Fatal("failed to init llm client", "provider", cfg.LLMProvider, "err", err)
	}
	timeout, _ := config.ParseDuration(cfg.LLMTimeout, 60*time.Second)
	appCore, err := app.New(app.Config{
		Store:        dataStore,
		Completer:    completer,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		Timeout:      timeout,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	srvCfg := server.Config{
		App:    appCore,
		Auth:   authclient.NewClient(cfg.AuthServiceURL),
		Health: dataStore.Ping,
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
	if cfg.ChatRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		limiter, err := ratelimit.NewFixedWindowLimiter(client, "aitutor:ratelimit:chat", cfg.ChatRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init chat rate limiter", "err", err)
		}
		srvCfg.ChatLimiter = limiter
	}
	trusted, err := util.NewTrustedProxies(config.SplitList(cfg.TrustedProxies))
	if err != nil {
		util.Fatal("invalid trustedProxies", "err", err)
	}
	srvCfg.TrustedProxies = trusted
	httpServer := server.New(srvCfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Completions may take up to the llm timeout.
		WriteTimeout: timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("tutor server listening", "addr", addr, "llm_provider", cfg.LLMProvider, "llm_model", cfg.LLMModel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}
}
