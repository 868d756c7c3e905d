package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aitutor/pkg/domain"
)

// CreateSession creates a new tutoring session record.
func (s *GormStore) CreateSession(ctx context.Context, session domain.ChatSession) error {
	model := sessionToModel(session)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetSession returns one session by ID.
func (s *GormStore) GetSession(ctx context.Context, id string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByUser returns the most recently active sessions of a user.
func (s *GormStore) ListSessionsByUser(ctx context.Context, userID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []ChatSessionModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.ChatSession, 0, len(models))
	for _, model := range models {
		items = append(items, sessionFromModel(model))
	}
	return items, nil
}

// AppendMessage stores msg under the session's next sequence number.
func (s *GormStore) AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = appendMessage(tx, msg)
		return err
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// StartSession creates session and stores first as its opening message in
// one transaction; neither is kept when either write fails.
func (s *GormStore) StartSession(ctx context.Context, session domain.ChatSession, first domain.ChatMessage) (domain.ChatMessage, error) {
	first.SessionID = session.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := sessionToModel(session)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		var err error
		first, err = appendMessage(tx, first)
		return err
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return first, nil
}

func appendMessage(tx *gorm.DB, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.CreatedAt = nonZeroTime(msg.CreatedAt)
	// The row lock taken here serializes concurrent appends to one session.
	res := tx.Model(&ChatSessionModel{}).Where("id = ?", msg.SessionID).
		Updates(map[string]any{
			"next_seq":   gorm.Expr("next_seq + 1"),
			"updated_at": msg.CreatedAt,
		})
	if res.Error != nil {
		return msg, res.Error
	}
	if res.RowsAffected == 0 {
		return msg, ErrNotFound
	}
	var session ChatSessionModel
	if err := tx.Select("next_seq").First(&session, "id = ?", msg.SessionID).Error; err != nil {
		return msg, err
	}
	msg.Seq = session.NextSeq
	model := messageToModel(msg)
	return msg, tx.Create(&model).Error
}

// ListRecentMessages returns recent messages (newest first, then reversed to chronological).
func (s *GormStore) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}
	var models []ChatMessageModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// ListMessages returns the full transcript of a session.
func (s *GormStore) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

// UpsertAssessment stores the latest level for (user, subject, topic).
func (s *GormStore) UpsertAssessment(ctx context.Context, a domain.SelfAssessment) (domain.SelfAssessment, error) {
	model := assessmentToModel(a)
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "subject"}, {Name: "topic"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "updated_at"}),
	}).Create(&model).Error; err != nil {
		return domain.SelfAssessment{}, err
	}
	var stored SelfAssessmentModel
	if err := db.Where("user_id = ? AND subject = ? AND topic = ?", a.UserID, a.Subject, a.Topic).
		First(&stored).Error; err != nil {
		return domain.SelfAssessment{}, err
	}
	return assessmentFromModel(stored), nil
}

// ListAssessments returns the user's assessments ordered by subject and topic.
func (s *GormStore) ListAssessments(ctx context.Context, userID string) ([]domain.SelfAssessment, error) {
	var models []SelfAssessmentModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("subject ASC").
		Order("topic ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SelfAssessment, 0, len(models))
	for _, m := range models {
		res = append(res, assessmentFromModel(m))
	}
	return res, nil
}

// FindLevel returns the level for (subject, topic), falling back to the most
// recently updated assessment of the subject.
func (s *GormStore) FindLevel(ctx context.Context, userID, subject, topic string) (domain.Level, bool, error) {
	db := s.db.WithContext(ctx)
	var model SelfAssessmentModel
	if topic != "" {
		err := db.Where("user_id = ? AND subject = ? AND topic = ?", userID, subject, topic).First(&model).Error
		if err == nil {
			return domain.Level(model.Level), true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, err
		}
	}
	err := db.Where("user_id = ? AND subject = ?", userID, subject).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.Level(model.Level), true, nil
}
