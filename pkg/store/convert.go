package store

import (
	"gorm.io/datatypes"

	"aitutor/pkg/domain"
)

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Role:         string(u.Role),
		Stream:       u.Stream,
		ClassLevel:   u.ClassLevel,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		Role:         domain.UserRole(m.Role),
		Stream:       m.Stream,
		ClassLevel:   m.ClassLevel,
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Stream:        b.Stream,
		ClassLevel:    b.ClassLevel,
		Subject:       b.Subject,
		Topic:         b.Topic,
		Summary:       b.Summary,
		AttachmentKey: b.AttachmentKey,
		Status:        string(b.Status),
		CreatedBy:     b.CreatedBy,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ContentMeta: domain.ContentMeta{
			ID:         m.ID,
			Title:      m.Title,
			Stream:     m.Stream,
			ClassLevel: m.ClassLevel,
			Subject:    m.Subject,
			Topic:      m.Topic,
			Status:     domain.ContentStatus(m.Status),
			CreatedBy:  m.CreatedBy,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		},
		Author:        m.Author,
		Summary:       m.Summary,
		AttachmentKey: m.AttachmentKey,
		HasFile:       m.AttachmentKey != "",
	}
}

func videoToModel(v domain.Video) VideoModel {
	return VideoModel{
		ID:            v.ID,
		Title:         v.Title,
		TeacherName:   v.TeacherName,
		Stream:        v.Stream,
		ClassLevel:    v.ClassLevel,
		Subject:       v.Subject,
		Topic:         v.Topic,
		Difficulty:    v.Difficulty,
		VideoURL:      v.VideoURL,
		AttachmentKey: v.AttachmentKey,
		Status:        string(v.Status),
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

func videoFromModel(m VideoModel) domain.Video {
	return domain.Video{
		ContentMeta: domain.ContentMeta{
			ID:         m.ID,
			Title:      m.Title,
			Stream:     m.Stream,
			ClassLevel: m.ClassLevel,
			Subject:    m.Subject,
			Topic:      m.Topic,
			Status:     domain.ContentStatus(m.Status),
			CreatedBy:  m.CreatedBy,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		},
		TeacherName:   m.TeacherName,
		Difficulty:    m.Difficulty,
		VideoURL:      m.VideoURL,
		AttachmentKey: m.AttachmentKey,
		HasFile:       m.AttachmentKey != "",
	}
}

func quizToModel(q domain.Quiz) QuizModel {
	questions := q.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	return QuizModel{
		ID:         q.ID,
		Title:      q.Title,
		Stream:     q.Stream,
		ClassLevel: q.ClassLevel,
		Subject:    q.Subject,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
		Questions:  datatypes.NewJSONType(questions),
		Status:     string(q.Status),
		CreatedBy:  q.CreatedBy,
		CreatedAt:  q.CreatedAt,
		UpdatedAt:  q.UpdatedAt,
	}
}

func quizFromModel(m QuizModel) domain.Quiz {
	return domain.Quiz{
		ContentMeta: domain.ContentMeta{
			ID:         m.ID,
			Title:      m.Title,
			Stream:     m.Stream,
			ClassLevel: m.ClassLevel,
			Subject:    m.Subject,
			Topic:      m.Topic,
			Status:     domain.ContentStatus(m.Status),
			CreatedBy:  m.CreatedBy,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
		},
		Difficulty: m.Difficulty,
		Questions:  m.Questions.Data(),
	}
}

func reviewToModel(d domain.ReviewDecision) ReviewModel {
	return ReviewModel{
		ID:          d.ID,
		ContentKind: string(d.ContentKind),
		ContentID:   d.ContentID,
		Action:      string(d.Action),
		FromStatus:  string(d.FromStatus),
		ToStatus:    string(d.ToStatus),
		Comment:     d.Comment,
		ReviewerID:  d.ReviewerID,
		CreatedAt:   d.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.ReviewDecision {
	return domain.ReviewDecision{
		ID:          m.ID,
		ContentKind: domain.ContentKind(m.ContentKind),
		ContentID:   m.ContentID,
		Action:      domain.ReviewAction(m.Action),
		FromStatus:  domain.ContentStatus(m.FromStatus),
		ToStatus:    domain.ContentStatus(m.ToStatus),
		Comment:     m.Comment,
		ReviewerID:  m.ReviewerID,
		CreatedAt:   m.CreatedAt,
	}
}

func sessionToModel(s domain.ChatSession) ChatSessionModel {
	return ChatSessionModel{
		ID:          s.ID,
		UserID:      s.UserID,
		Title:       s.Title,
		Subject:     s.Subject,
		Topic:       s.Topic,
		ContextType: string(s.ContextType),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func sessionFromModel(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		Subject:     m.Subject,
		Topic:       m.Topic,
		ContextType: domain.ContextType(m.ContextType),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func messageToModel(msg domain.ChatMessage) ChatMessageModel {
	return ChatMessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Seq:       msg.Seq,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        m.ID,
		SessionID: m.SessionID,
		Seq:       m.Seq,
		Role:      domain.MessageRole(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func assessmentToModel(a domain.SelfAssessment) SelfAssessmentModel {
	return SelfAssessmentModel{
		ID:        a.ID,
		UserID:    a.UserID,
		Subject:   a.Subject,
		Topic:     a.Topic,
		Level:     string(a.Level),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func assessmentFromModel(m SelfAssessmentModel) domain.SelfAssessment {
	return domain.SelfAssessment{
		ID:        m.ID,
		UserID:    m.UserID,
		Subject:   m.Subject,
		Topic:     m.Topic,
		Level:     domain.Level(m.Level),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
