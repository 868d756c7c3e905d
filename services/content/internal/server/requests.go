package server

import (
	"aitutor/pkg/domain"
	"aitutor/services/content/internal/app"
)

type verifyRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=book video quiz"`
	ContentID   string `json:"content_id" validate:"required,max=64"`
	Action      string `json:"action" validate:"required,oneof=approve reject request_changes"`
	Comments    string `json:"comments" validate:"max=2000"`
}

// MetaFields is embedded by every create or resubmit body.
type MetaFields struct {
	Title      string `json:"title" validate:"required,max=200"`
	Stream     string `json:"stream" validate:"max=64"`
	ClassLevel int    `json:"class_level" validate:"omitempty,min=1,max=12"`
	Subject    string `json:"subject" validate:"required,max=100"`
	Topic      string `json:"topic" validate:"max=100"`
}

func (m MetaFields) input() app.MetaInput {
	return app.MetaInput{
		Title:      m.Title,
		Stream:     m.Stream,
		ClassLevel: m.ClassLevel,
		Subject:    m.Subject,
		Topic:      m.Topic,
	}
}

type bookRequest struct {
	MetaFields
	Author  string `json:"author" validate:"required,max=200"`
	Summary string `json:"summary" validate:"max=4000"`
}

func (b bookRequest) input() app.BookInput {
	return app.BookInput{MetaInput: b.MetaFields.input(), Author: b.Author, Summary: b.Summary}
}

type videoRequest struct {
	MetaFields
	TeacherName string `json:"teacher_name" validate:"max=120"`
	Difficulty  string `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	VideoURL    string `json:"video_url" validate:"omitempty,url,max=2048"`
}

func (v videoRequest) input() app.VideoInput {
	return app.VideoInput{
		MetaInput:   v.MetaFields.input(),
		TeacherName: v.TeacherName,
		Difficulty:  v.Difficulty,
		VideoURL:    v.VideoURL,
	}
}

type quizRequest struct {
	MetaFields
	Difficulty string            `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Questions  []domain.Question `json:"questions" validate:"required"`
}

func (q quizRequest) input() app.QuizInput {
	return app.QuizInput{MetaInput: q.MetaFields.input(), Difficulty: q.Difficulty, Questions: q.Questions}
}
