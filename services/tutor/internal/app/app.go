package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aitutor/internal/util"
	"aitutor/pkg/ai"
	"aitutor/pkg/domain"
	"aitutor/pkg/store"
)

const (
	defaultMaxTokens    = 1500
	defaultTemperature  = 0.7
	defaultTimeout      = 60 * time.Second
	defaultHistoryLimit = 20
	sessionListLimit    = 100
)

// Store is the persistence surface the tutor needs.
type Store interface {
	store.ChatStore
	store.AssessmentStore
}

// Config holds runtime dependencies and completion tuning. Zero values take
// the defaults: 1500 tokens, temperature 0.7, 60s timeout, 20 history messages.
// Temperature is a pointer so an explicit 0 selects deterministic sampling.
type Config struct {
	Store        Store
	Completer    ai.ChatCompleter
	MaxTokens    int
	Temperature  *float64
	Timeout      time.Duration
	HistoryLimit int
}

// App orchestrates tutoring conversations.
type App struct {
	store        Store
	completer    ai.ChatCompleter
	maxTokens    int
	temperature  float64
	timeout      time.Duration
	historyLimit int
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("chat store required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("chat completer required")
	}
	a := &App{
		store:        cfg.Store,
		completer:    cfg.Completer,
		maxTokens:    cfg.MaxTokens,
		temperature:  defaultTemperature,
		timeout:      cfg.Timeout,
		historyLimit: cfg.HistoryLimit,
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	if cfg.Temperature != nil {
		a.temperature = *cfg.Temperature
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.historyLimit <= 0 {
		a.historyLimit = defaultHistoryLimit
	}
	return a, nil
}

// MessageInput is one learner message. SessionID empty starts a new session.
type MessageInput struct {
	Message     string
	SessionID   string
	Subject     string
	Topic       string
	ContextType string
}

// Reply is the tutor's answer and the session it was recorded in.
type Reply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// HandleMessage records the learner's message, asks the model for a reply
// grounded in the recent history, and records the reply. When the model call
// fails the learner's message stays in the transcript without an answer.
func (a *App) HandleMessage(ctx context.Context, user domain.User, in MessageInput) (Reply, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return Reply{}, ErrMessageRequired
	}
	contextType, err := parseContextType(in.ContextType)
	if err != nil {
		return Reply{}, err
	}
	subject := strings.TrimSpace(in.Subject)
	topic := strings.TrimSpace(in.Topic)

	userMsg := domain.ChatMessage{
		ID:        util.NewID(),
		Role:      domain.RoleUserMessage,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
	var session domain.ChatSession
	if id := strings.TrimSpace(in.SessionID); id != "" {
		session, err = a.ResolveSession(ctx, user, id)
		if err != nil {
			return Reply{}, err
		}
		if subject == "" {
			subject = session.Subject
		}
		if topic == "" {
			topic = session.Topic
		}
		if strings.TrimSpace(in.ContextType) == "" {
			contextType = session.ContextType
		}
		userMsg.SessionID = session.ID
		if _, err := a.store.AppendMessage(ctx, userMsg); err != nil {
			return Reply{}, fmt.Errorf("save user message: %w", err)
		}
	} else {
		session, err = newSession(user, SessionInput{
			Subject:     subject,
			Topic:       topic,
			ContextType: contextType,
			Title:       sessionTitle(text),
		})
		if err != nil {
			return Reply{}, err
		}
		if _, err := a.store.StartSession(ctx, session, userMsg); err != nil {
			return Reply{}, fmt.Errorf("start session: %w", err)
		}
	}

	history, err := a.store.ListRecentMessages(ctx, session.ID, a.historyLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}
	level, err := a.LevelFor(ctx, user.ID, subject, topic)
	if err != nil {
		return Reply{}, err
	}

	messages := make([]ai.Message, 0, len(history)+1)
	messages = append(messages, ai.Message{
		Role: ai.RoleSystem,
		Content: SystemPrompt(contextType, StudentContext{
			Name:    user.FullName,
			Level:   level,
			Subject: subject,
			Topic:   topic,
		}),
	})
	for _, msg := range history {
		messages = append(messages, ai.Message{Role: completionRole(msg.Role), Content: msg.Content})
	}

	response, err := a.complete(ctx, messages)
	if err != nil {
		util.LoggerFromContext(ctx).Error("tutor completion failed", "session_id", session.ID, "err", err)
		return Reply{}, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	if _, err := a.store.AppendMessage(ctx, domain.ChatMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.RoleAssistantMessage,
		Content:   response,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return Reply{}, fmt.Errorf("save assistant message: %w", err)
	}
	return Reply{Response: response, SessionID: session.ID}, nil
}

func (a *App) complete(ctx context.Context, messages []ai.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	response, err := a.completer.Complete(ctx, ai.CompletionRequest{
		Messages:    messages,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if errors.Is(err, ai.ErrEmptyCompletion) {
		return FallbackReply, nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(response) == "" {
		return FallbackReply, nil
	}
	return response, nil
}

// SessionInput describes a session opened by a learner's first message.
type SessionInput struct {
	Subject     string
	Topic       string
	ContextType domain.ContextType
	Title       string
}

func newSession(user domain.User, in SessionInput) (domain.ChatSession, error) {
	if strings.TrimSpace(user.ID) == "" {
		return domain.ChatSession{}, ErrUserRequired
	}
	contextType := in.ContextType
	if contextType == "" {
		contextType = domain.ContextDoubt
	}
	now := time.Now().UTC()
	return domain.ChatSession{
		ID:          util.NewID(),
		UserID:      user.ID,
		Title:       in.Title,
		Subject:     strings.TrimSpace(in.Subject),
		Topic:       strings.TrimSpace(in.Topic),
		ContextType: contextType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ResolveSession loads a session the user owns.
func (a *App) ResolveSession(ctx context.Context, user domain.User, id string) (domain.ChatSession, error) {
	session, ok, err := a.store.GetSession(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.ChatSession{}, ErrSessionNotFound
	}
	if session.UserID != user.ID {
		return domain.ChatSession{}, ErrSessionForbidden
	}
	return session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (a *App) ListSessions(ctx context.Context, user domain.User) ([]domain.ChatSession, error) {
	if strings.TrimSpace(user.ID) == "" {
		return nil, ErrUserRequired
	}
	sessions, err := a.store.ListSessionsByUser(ctx, user.ID, sessionListLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Transcript returns one owned session with every message in order.
func (a *App) Transcript(ctx context.Context, user domain.User, id string) (domain.ChatSession, []domain.ChatMessage, error) {
	session, err := a.ResolveSession(ctx, user, id)
	if err != nil {
		return domain.ChatSession{}, nil, err
	}
	messages, err := a.store.ListMessages(ctx, session.ID)
	if err != nil {
		return domain.ChatSession{}, nil, fmt.Errorf("list messages: %w", err)
	}
	return session, messages, nil
}

// LevelFor resolves the learner's self-declared level: the topic assessment,
// then any assessment of the subject, then intermediate.
func (a *App) LevelFor(ctx context.Context, userID, subject, topic string) (domain.Level, error) {
	if subject == "" {
		return domain.LevelIntermediate, nil
	}
	level, ok, err := a.store.FindLevel(ctx, userID, subject, topic)
	if err != nil {
		return "", fmt.Errorf("find level: %w", err)
	}
	if !ok {
		return domain.LevelIntermediate, nil
	}
	return level, nil
}

// ListAssessments returns every self-assessment of the user.
func (a *App) ListAssessments(ctx context.Context, user domain.User) ([]domain.SelfAssessment, error) {
	items, err := a.store.ListAssessments(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return items, nil
}

// SaveAssessment records the user's level for (subject, topic), replacing any
// earlier answer.
func (a *App) SaveAssessment(ctx context.Context, user domain.User, subject, topic, levelRaw string) (domain.SelfAssessment, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.SelfAssessment{}, ErrSubjectRequired
	}
	level, ok := domain.ParseLevel(strings.TrimSpace(levelRaw))
	if !ok {
		return domain.SelfAssessment{}, ErrInvalidLevel
	}
	now := time.Now().UTC()
	saved, err := a.store.UpsertAssessment(ctx, domain.SelfAssessment{
		ID:        util.NewID(),
		UserID:    user.ID,
		Subject:   subject,
		Topic:     strings.TrimSpace(topic),
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.SelfAssessment{}, fmt.Errorf("save assessment: %w", err)
	}
	return saved, nil
}

func parseContextType(raw string) (domain.ContextType, error) {
	switch domain.ContextType(strings.TrimSpace(raw)) {
	case "", domain.ContextDoubt:
		return domain.ContextDoubt, nil
	case domain.ContextSummary:
		return domain.ContextSummary, nil
	default:
		return "", ErrInvalidContextType
	}
}

func completionRole(role domain.MessageRole) string {
	switch role {
	case domain.RoleAssistantMessage:
		return ai.RoleAssistant
	case domain.RoleSystemMessage:
		return ai.RoleSystem
	default:
		return ai.RoleUser
	}
}
