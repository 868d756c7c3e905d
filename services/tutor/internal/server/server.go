package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aitutor/internal/authclient"
	"aitutor/internal/ratelimit"
	"aitutor/internal/util"
	"aitutor/pkg/domain"
	"aitutor/services/tutor/internal/app"
)

// UserResolver turns a bearer token into the current account.
type UserResolver interface {
	Me(ctx context.Context, token string) (domain.User, error)
}

// TokenVerifier checks a token's signature locally before the auth round trip.
type TokenVerifier interface {
	VerifySubject(ctx context.Context, token string) (string, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Auth           UserResolver
	TokenVerifier  TokenVerifier
	ChatLimiter    *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	Health         func(context.Context) error
}

// Server exposes HTTP endpoints for the tutor service.
type Server struct {
	app           *app.App
	auth          UserResolver
	tokenVerifier TokenVerifier
	chatLimiter   *ratelimit.FixedWindowLimiter
	trusted       *util.TrustedProxies
	health        func(context.Context) error
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		auth:          cfg.Auth,
		tokenVerifier: cfg.TokenVerifier,
		chatLimiter:   cfg.ChatLimiter,
		trusted:       cfg.TrustedProxies,
		health:        cfg.Health,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.Chain(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("POST /api/chat", s.withUser(s.handleChat))
	s.mux.Handle("GET /api/chat/sessions", s.withUser(s.handleListSessions))
	s.mux.Handle("GET /api/chat/sessions/{id}", s.withUser(s.handleGetSession))

	s.mux.Handle("GET /api/assessments", s.withUser(s.handleListAssessments))
	s.mux.Handle("POST /api/assessments", s.withUser(s.handleSaveAssessment))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusInternalServerError, "auth client not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var subject string
		if s.tokenVerifier != nil {
			sub, err := s.tokenVerifier.VerifySubject(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			subject = sub
		}
		user, err := s.auth.Me(r.Context(), token)
		if err != nil {
			var apiErr *authclient.APIError
			if errors.As(err, &apiErr) && apiErr.Unauthorized() {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			util.LoggerFromContext(r.Context()).Error("auth lookup failed", "err", err)
			writeError(w, http.StatusBadGateway, "auth service unavailable")
			return
		}
		if subject != "" && subject != user.ID {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if s.chatLimiter != nil && !s.chatLimiter.Allow(r.Context(), user.ID) {
		s.audit(r, "rate_limit", "denied", "user_id", user.ID)
		w.Header().Set("Retry-After", strconv.Itoa(int(s.chatLimiter.Window().Seconds())))
		writeError(w, http.StatusTooManyRequests, "too many chat messages")
		return
	}
	var req chatRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.app.HandleMessage(r.Context(), user, app.MessageInput{
		Message:     req.Message,
		SessionID:   req.SessionID,
		Subject:     req.Subject,
		Topic:       req.Topic,
		ContextType: req.ContextType,
	})
	if err != nil {
		if errors.Is(err, app.ErrSessionForbidden) {
			s.audit(r, "session_access", "denied", "user_id", user.ID, "session_id", req.SessionID)
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request, user domain.User) {
	sessions, err := s.app.ListSessions(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := r.PathValue("id")
	session, messages, err := s.app.Transcript(r.Context(), user, id)
	if err != nil {
		if errors.Is(err, app.ErrSessionForbidden) {
			s.audit(r, "session_access", "denied", "user_id", user.ID, "session_id", id)
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session, "messages": messages})
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request, user domain.User) {
	items, err := s.app.ListAssessments(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": items})
}

func (s *Server) handleSaveAssessment(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req assessmentRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.app.SaveAssessment(r.Context(), user, req.Subject, req.Topic, req.Level)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

type chatRequest struct {
	Message     string `json:"message" validate:"required,max=8000"`
	SessionID   string `json:"session_id" validate:"max=64"`
	Subject     string `json:"subject" validate:"max=100"`
	Topic       string `json:"topic" validate:"max=100"`
	ContextType string `json:"context_type" validate:"omitempty,oneof=doubt summary"`
}

type assessmentRequest struct {
	Subject string `json:"subject" validate:"required,max=100"`
	Topic   string `json:"topic" validate:"max=100"`
	Level   string `json:"level" validate:"required,oneof=beginner intermediate expert"`
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSessionForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, app.ErrInvalidContextType),
		errors.Is(err, app.ErrSubjectRequired),
		errors.Is(err, app.ErrInvalidLevel),
		errors.Is(err, app.ErrUserRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrCompletionFailed):
		// Provider details stay in the logs.
		writeError(w, http.StatusBadGateway, "Failed to process chat message")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		slog.Debug("missing bearer prefix", "path", r.URL.Path)
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
