package store

import (
	"time"

	"gorm.io/datatypes"

	"aitutor/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FullName     string `gorm:"not null"`
	Role         string `gorm:"not null;index"`
	Stream       string
	ClassLevel   int
	Status       string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Author        string
	Stream        string `gorm:"index:idx_book_catalogue,priority:2"`
	ClassLevel    int    `gorm:"index:idx_book_catalogue,priority:3"`
	Subject       string `gorm:"index:idx_book_catalogue,priority:4"`
	Topic         string
	Summary       string `gorm:"type:text"`
	AttachmentKey string
	Status        string    `gorm:"not null;index:idx_book_catalogue,priority:1"`
	CreatedBy     string    `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type VideoModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	TeacherName   string
	Stream        string `gorm:"index:idx_video_catalogue,priority:2"`
	ClassLevel    int    `gorm:"index:idx_video_catalogue,priority:3"`
	Subject       string `gorm:"index:idx_video_catalogue,priority:4"`
	Topic         string
	Difficulty    string
	VideoURL      string
	AttachmentKey string
	Status        string    `gorm:"not null;index:idx_video_catalogue,priority:1"`
	CreatedBy     string    `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type QuizModel struct {
	ID         string `gorm:"primaryKey"`
	Title      string `gorm:"not null"`
	Stream     string `gorm:"index:idx_quiz_catalogue,priority:2"`
	ClassLevel int    `gorm:"index:idx_quiz_catalogue,priority:3"`
	Subject    string `gorm:"index:idx_quiz_catalogue,priority:4"`
	Topic      string
	Difficulty string
	Questions  datatypes.JSONType[[]domain.Question] `gorm:"not null"`
	Status     string                                `gorm:"not null;index:idx_quiz_catalogue,priority:1"`
	CreatedBy  string                                `gorm:"not null;index"`
	CreatedAt  time.Time                             `gorm:"not null"`
	UpdatedAt  time.Time                             `gorm:"not null"`
}

// ReviewModel rows are inserted once and never updated.
type ReviewModel struct {
	ID          string    `gorm:"primaryKey"`
	ContentKind string    `gorm:"not null;index:idx_review_content,priority:1"`
	ContentID   string    `gorm:"not null;index:idx_review_content,priority:2"`
	Action      string    `gorm:"not null"`
	FromStatus  string    `gorm:"not null"`
	ToStatus    string    `gorm:"not null"`
	Comment     string    `gorm:"type:text"`
	ReviewerID  string    `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;index:idx_review_content,priority:3"`
}

type ChatSessionModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Subject     string
	Topic       string
	ContextType string `gorm:"not null"`
	// NextSeq hands out per-session message sequence numbers.
	NextSeq   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

type ChatMessageModel struct {
	ID        string    `gorm:"primaryKey"`
	SessionID string    `gorm:"not null;uniqueIndex:idx_chat_message_session_seq,priority:1"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_chat_message_session_seq,priority:2"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type SelfAssessmentModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_assessment_user_subject_topic,priority:1"`
	Subject   string    `gorm:"not null;uniqueIndex:idx_assessment_user_subject_topic,priority:2"`
	Topic     string    `gorm:"not null;uniqueIndex:idx_assessment_user_subject_topic,priority:3"`
	Level     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
