package store

import (
	"context"
	"errors"
	"time"

	"aitutor/pkg/domain"
)

var (
	// ErrNotFound is returned when a mutation targets a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a content item is not in the status a
	// transition expects, including when a concurrent reviewer won the race.
	ErrStatusConflict = errors.New("content status conflict")
	// ErrDuplicateEmail is returned when an account email is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	// UsersByID resolves a batch of user ids; unknown ids are omitted.
	UsersByID(ctx context.Context, ids []string) (map[string]domain.User, error)
}

// ContentStore persists books, videos, quizzes and their review log.
type ContentStore interface {
	CreateBook(ctx context.Context, b domain.Book) error
	CreateVideo(ctx context.Context, v domain.Video) error
	CreateQuiz(ctx context.Context, q domain.Quiz) error

	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	GetVideo(ctx context.Context, id string) (domain.Video, bool, error)
	GetQuiz(ctx context.Context, id string) (domain.Quiz, bool, error)

	// List* return items in the given status, oldest first.
	ListBooks(ctx context.Context, status domain.ContentStatus, filter domain.ContentFilter) ([]domain.Book, error)
	ListVideos(ctx context.Context, status domain.ContentStatus, filter domain.ContentFilter) ([]domain.Video, error)
	ListQuizzes(ctx context.Context, status domain.ContentStatus, filter domain.ContentFilter) ([]domain.Quiz, error)

	// Resubmit* overwrite the editable fields of an item in changes_requested
	// and move it back to pending.
	ResubmitBook(ctx context.Context, b domain.Book) error
	ResubmitVideo(ctx context.Context, v domain.Video) error
	ResubmitQuiz(ctx context.Context, q domain.Quiz) error

	SetAttachment(ctx context.Context, kind domain.ContentKind, id, key string) error

	// ApplyReview moves a pending item to the decision's target status and
	// appends the decision to the review log in one transaction.
	ApplyReview(ctx context.Context, d domain.ReviewDecision) (domain.ReviewDecision, error)
	ListReviews(ctx context.Context, kind domain.ContentKind, id string) ([]domain.ReviewDecision, error)
}

// ChatStore persists tutoring sessions and their transcripts.
type ChatStore interface {
	CreateSession(ctx context.Context, s domain.ChatSession) error
	GetSession(ctx context.Context, id string) (domain.ChatSession, bool, error)
	ListSessionsByUser(ctx context.Context, userID string, limit int) ([]domain.ChatSession, error)
	// AppendMessage assigns the next per-session sequence number and bumps the
	// session's updated_at.
	AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	// StartSession creates a session together with its first message.
	StartSession(ctx context.Context, s domain.ChatSession, first domain.ChatMessage) (domain.ChatMessage, error)
	// ListRecentMessages returns the newest limit messages in chronological order.
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

// AssessmentStore persists self-declared mastery levels.
type AssessmentStore interface {
	UpsertAssessment(ctx context.Context, a domain.SelfAssessment) (domain.SelfAssessment, error)
	ListAssessments(ctx context.Context, userID string) ([]domain.SelfAssessment, error)
	// FindLevel tries subject+topic first, then any assessment on the subject.
	FindLevel(ctx context.Context, userID, subject, topic string) (domain.Level, bool, error)
}

// Store is the full persistence surface shared by the services.
type Store interface {
	UserStore
	ContentStore
	ChatStore
	AssessmentStore
	Ping(ctx context.Context) error
	Close() error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
