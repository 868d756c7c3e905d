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
	"aitutor/internal/util"
	"aitutor/pkg/domain"
	"aitutor/services/content/internal/app"
)

const defaultMaxUploadBytes = 50 << 20

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
	TrustedProxies *util.TrustedProxies
	MaxUploadBytes int64
	Health         func(context.Context) error
}

// Server exposes HTTP endpoints for the content service.
type Server struct {
	app            *app.App
	auth           UserResolver
	tokenVerifier  TokenVerifier
	trusted        *util.TrustedProxies
	maxUploadBytes int64
	health         func(context.Context) error
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		auth:           cfg.Auth,
		tokenVerifier:  cfg.TokenVerifier,
		trusted:        cfg.TrustedProxies,
		maxUploadBytes: maxUploadBytes,
		health:         cfg.Health,
		mux:            http.NewServeMux(),
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

	// moderation
	s.mux.Handle("GET /api/content/verify", s.withReviewer(s.handleListPending))
	s.mux.Handle("POST /api/content/verify", s.withReviewer(s.handleVerify))
	s.mux.Handle("GET /api/content/{kind}/{id}/reviews", s.withReviewer(s.handleListReviews))

	// authoring
	s.mux.Handle("POST /api/books", s.withReviewer(s.handleCreateBook))
	s.mux.Handle("POST /api/videos", s.withReviewer(s.handleCreateVideo))
	s.mux.Handle("POST /api/quizzes", s.withReviewer(s.handleCreateQuiz))
	s.mux.Handle("PUT /api/content/{kind}/{id}", s.withUser(s.handleResubmit))
	s.mux.Handle("PUT /api/content/{kind}/{id}/file", s.withUser(s.handleUpload))
	s.mux.Handle("GET /api/content/{kind}/{id}/file", s.withUser(s.handleDownload))

	// catalogue
	s.mux.Handle("GET /api/books", s.withUser(s.handleListBooks))
	s.mux.Handle("GET /api/videos", s.withUser(s.handleListVideos))
	s.mux.Handle("GET /api/quizzes", s.withUser(s.handleListQuizzes))
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

// withReviewer admits admins and teachers only.
func (s *Server) withReviewer(next userHandler) http.Handler {
	return s.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.Role.CanReview() {
			s.audit(r, "content_access", "denied", "user_id", user.ID, "role", user.Role)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request, user domain.User) {
	pending, err := s.app.ListPending(r.Context(), user, r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req verifyRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := s.app.Decide(r.Context(), user, app.DecisionInput{
		Kind:    req.ContentType,
		ID:      req.ContentID,
		Action:  req.Action,
		Comment: req.Comments,
	})
	if err != nil {
		s.audit(r, "content_review", "failure", "user_id", user.ID, "content_id", req.ContentID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "content_review", "success",
		"user_id", user.ID,
		"content_type", decision.ContentKind,
		"content_id", decision.ContentID,
		"action", decision.Action,
	)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": decision.ToStatus})
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request, user domain.User) {
	reviews, err := s.app.ListReviews(r.Context(), user, r.PathValue("kind"), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req bookRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	book, err := s.app.CreateBook(r.Context(), user, req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req videoRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	video, err := s.app.CreateVideo(r.Context(), user, req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, video)
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req quizRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quiz, err := s.app.CreateQuiz(r.Context(), user, req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request, user domain.User) {
	kind, ok := domain.ParseContentKind(r.PathValue("kind"))
	if !ok {
		writeAppError(w, r, app.ErrInvalidKind)
		return
	}
	id := r.PathValue("id")
	var (
		item any
		err  error
	)
	switch kind {
	case domain.KindBook:
		var req bookRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		item, err = s.app.ResubmitBook(r.Context(), user, id, req.input())
	case domain.KindVideo:
		var req videoRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		item, err = s.app.ResubmitVideo(r.Context(), user, id, req.input())
	case domain.KindQuiz:
		var req quizRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		item, err = s.app.ResubmitQuiz(r.Context(), user, id, req.input())
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "content_resubmit", "success", "user_id", user.ID, "content_type", kind, "content_id", id)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	if err := s.app.UploadAttachment(r.Context(), user, r.PathValue("kind"), r.PathValue("id"), header.Filename, file, header.Size); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, user domain.User) {
	url, err := s.app.AttachmentURL(r.Context(), user, r.PathValue("kind"), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, _ domain.User) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	books, err := s.app.ListBooks(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books, "count": len(books)})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request, _ domain.User) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	videos, err := s.app.ListVideos(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": videos, "count": len(videos)})
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request, _ domain.User) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quizzes, err := s.app.ListQuizzes(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": quizzes, "count": len(quizzes)})
}

func parseFilter(r *http.Request) (domain.ContentFilter, error) {
	q := r.URL.Query()
	filter := domain.ContentFilter{
		Stream:  strings.TrimSpace(q.Get("stream")),
		Subject: strings.TrimSpace(q.Get("subject")),
	}
	if raw := strings.TrimSpace(q.Get("class_level")); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil || level < 1 {
			return domain.ContentFilter{}, errors.New("class_level must be a positive integer")
		}
		filter.ClassLevel = level
	}
	return filter, nil
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

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrNoAttachment):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidKind),
		errors.Is(err, app.ErrInvalidAction),
		errors.Is(err, app.ErrInvalidStatusFilter),
		errors.Is(err, app.ErrContentIDRequired),
		errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrSubjectRequired),
		errors.Is(err, app.ErrAttachmentUnsupported),
		errors.Is(err, app.ErrFilenameRequired),
		errors.Is(err, domain.ErrInvalidQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrStorageUnavailable):
		util.LoggerFromContext(r.Context()).Error("object storage failed", "err", err)
		writeError(w, http.StatusBadGateway, app.ErrStorageUnavailable.Error())
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
