package domain

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// CanReview reports whether the role may moderate content.
func (r UserRole) CanReview() bool {
	return r == RoleAdmin || r == RoleTeacher
}

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	Role         UserRole   `json:"role"`
	Stream       string     `json:"stream,omitempty"`
	ClassLevel   int        `json:"class_level,omitempty"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ContentKind tags the three moderated content variants.
type ContentKind string

const (
	KindBook  ContentKind = "book"
	KindVideo ContentKind = "video"
	KindQuiz  ContentKind = "quiz"
)

// ParseContentKind accepts the singular wire names and their plurals.
func ParseContentKind(raw string) (ContentKind, bool) {
	switch raw {
	case "book", "books":
		return KindBook, true
	case "video", "videos":
		return KindVideo, true
	case "quiz", "quizzes":
		return KindQuiz, true
	default:
		return "", false
	}
}

type ContentStatus string

const (
	ContentPending          ContentStatus = "pending"
	ContentApproved         ContentStatus = "approved"
	ContentRejected         ContentStatus = "rejected"
	ContentChangesRequested ContentStatus = "changes_requested"
)

type ReviewAction string

const (
	ActionApprove        ReviewAction = "approve"
	ActionReject         ReviewAction = "reject"
	ActionRequestChanges ReviewAction = "request_changes"
)

// Status returns the content status a decision moves an item to.
func (a ReviewAction) Status() (ContentStatus, bool) {
	switch a {
	case ActionApprove:
		return ContentApproved, true
	case ActionReject:
		return ContentRejected, true
	case ActionRequestChanges:
		return ContentChangesRequested, true
	default:
		return "", false
	}
}

// ContentMeta is the metadata shared by every content variant.
type ContentMeta struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Stream     string        `json:"stream"`
	ClassLevel int           `json:"class_level"`
	Subject    string        `json:"subject"`
	Topic      string        `json:"topic"`
	Status     ContentStatus `json:"status"`
	CreatedBy  string        `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type Book struct {
	ContentMeta
	Author        string `json:"author"`
	Summary       string `json:"summary,omitempty"`
	AttachmentKey string `json:"-"`
	HasFile       bool   `json:"has_file"`
	UploaderName  string `json:"uploader_name,omitempty"`
}

type Video struct {
	ContentMeta
	TeacherName   string `json:"teacher_name"`
	Difficulty    string `json:"difficulty"`
	VideoURL      string `json:"video_url,omitempty"`
	AttachmentKey string `json:"-"`
	HasFile       bool   `json:"has_file"`
	UploaderName  string `json:"uploader_name,omitempty"`
}

type Quiz struct {
	ContentMeta
	Difficulty  string     `json:"difficulty"`
	Questions   []Question `json:"questions"`
	CreatorName string     `json:"creator_name,omitempty"`
}

// Question is one multiple-choice quiz entry.
type Question struct {
	Text         string   `json:"question" validate:"required"`
	Options      []string `json:"options" validate:"min=2,dive,required"`
	CorrectIndex int      `json:"correct_answer" validate:"gte=0"`
	Explanation  string   `json:"explanation,omitempty"`
}

// PendingContent groups pending items by kind.
type PendingContent struct {
	Books   []Book  `json:"books"`
	Videos  []Video `json:"videos"`
	Quizzes []Quiz  `json:"quizzes"`
}

// ReviewDecision is one immutable entry of the moderation log.
type ReviewDecision struct {
	ID          string        `json:"id"`
	ContentKind ContentKind   `json:"content_type"`
	ContentID   string        `json:"content_id"`
	Action      ReviewAction  `json:"action"`
	FromStatus  ContentStatus `json:"from_status"`
	ToStatus    ContentStatus `json:"to_status"`
	Comment     string        `json:"comments,omitempty"`
	ReviewerID  string        `json:"reviewer_id"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ContentFilter narrows catalogue listings; zero values match everything.
type ContentFilter struct {
	Stream     string
	ClassLevel int
	Subject    string
}

type ContextType string

const (
	ContextDoubt   ContextType = "doubt"
	ContextSummary ContextType = "summary"
)

type MessageRole string

const (
	RoleUserMessage      MessageRole = "user"
	RoleAssistantMessage MessageRole = "assistant"
	RoleSystemMessage    MessageRole = "system"
)

type ChatSession struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Title       string      `json:"title"`
	Subject     string      `json:"subject,omitempty"`
	Topic       string      `json:"topic,omitempty"`
	ContextType ContextType `json:"context_type"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type ChatMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Seq       int64       `json:"seq"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelExpert       Level = "expert"
)

// ParseLevel validates a self-declared mastery level.
func ParseLevel(raw string) (Level, bool) {
	switch Level(raw) {
	case LevelBeginner, LevelIntermediate, LevelExpert:
		return Level(raw), true
	default:
		return "", false
	}
}

type SelfAssessment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	Topic     string    `json:"topic"`
	Level     Level     `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
