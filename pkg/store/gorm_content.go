package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"aitutor/pkg/domain"
)

func contentModel(kind domain.ContentKind) (any, error) {
	switch kind {
	case domain.KindBook:
		return &BookModel{}, nil
	case domain.KindVideo:
		return &VideoModel{}, nil
	case domain.KindQuiz:
		return &QuizModel{}, nil
	default:
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
}

func applyFilter(tx *gorm.DB, status domain.ContentStatus, filter domain.ContentFilter) *gorm.DB {
	tx = tx.Where("status = ?", string(status))
	if filter.Stream != "" {
		tx = tx.Where("stream = ?", filter.Stream)
	}
	if filter.ClassLevel > 0 {
		tx = tx.Where("class_level = ?", filter.ClassLevel)
	}
	if filter.Subject != "" {
		tx = tx.Where("subject = ?", filter.Subject)
	}
	return tx.Order("created_at ASC").Order("id ASC")
}

func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) error {
	model := bookToModel(b)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) CreateVideo(ctx context.Context, v domain.Video) error {
	model := videoToModel(v)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) CreateQuiz(ctx context.Context, q domain.Quiz) error {
	model := quizToModel(q)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) GetVideo(ctx context.Context, id string) (domain.Video, bool, error) {
	var model VideoModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Video{}, false, nil
		}
		return domain.Video{}, false, err
	}
	return videoFromModel(model), true, nil
}

func (s *GormStore) GetQuiz(ctx context.Context, id string) (domain.Quiz, bool, error) {
	var model QuizModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Quiz{}, false, nil
		}
		return domain.Quiz{}, false, err
	}
	return quizFromModel(model), true, nil
}

func (s *GormStore) ListBooks(ctx context.Context, status domain.ContentStatus, filter domain.ContentFilter) ([]domain.Book, error) {
	var models []BookModel
	if err := applyFilter(s.db.WithContext(ctx), status, filter).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

func (s *GormStore) ListVideos(ctx context.Context, status domain.ContentStatus, filter domain.ContentFilter) ([]domain.Video, error) {
	var models []VideoModel
	if err := applyFilter(s.db.WithContext(ctx), status, filter).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Video, 0, len(models))
	for _, m := range models {
		res = append(res, videoFromModel(m))
	}
	return res, nil
}

func (s *GormStore) ListQuizzes(ctx context.Context, status domain.ContentStatus, filter domain.ContentFilter) ([]domain.Quiz, error) {
	var models []QuizModel
	if err := applyFilter(s.db.WithContext(ctx), status, filter).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Quiz, 0, len(models))
	for _, m := range models {
		res = append(res, quizFromModel(m))
	}
	return res, nil
}

func (s *GormStore) ResubmitBook(ctx context.Context, b domain.Book) error {
	return s.resubmit(ctx, &BookModel{}, b.ID, metaUpdates(b.ContentMeta, map[string]any{
		"author":  b.Author,
		"summary": b.Summary,
	}))
}

func (s *GormStore) ResubmitVideo(ctx context.Context, v domain.Video) error {
	return s.resubmit(ctx, &VideoModel{}, v.ID, metaUpdates(v.ContentMeta, map[string]any{
		"teacher_name": v.TeacherName,
		"difficulty":   v.Difficulty,
		"video_url":    v.VideoURL,
	}))
}

func (s *GormStore) ResubmitQuiz(ctx context.Context, q domain.Quiz) error {
	return s.resubmit(ctx, &QuizModel{}, q.ID, metaUpdates(q.ContentMeta, map[string]any{
		"difficulty": q.Difficulty,
		"questions":  datatypes.NewJSONType(q.Questions),
	}))
}

func metaUpdates(meta domain.ContentMeta, extra map[string]any) map[string]any {
	updates := map[string]any{
		"title":       meta.Title,
		"stream":      meta.Stream,
		"class_level": meta.ClassLevel,
		"subject":     meta.Subject,
		"topic":       meta.Topic,
		"status":      string(domain.ContentPending),
		"updated_at":  nonZeroTime(meta.UpdatedAt),
	}
	for k, v := range extra {
		updates[k] = v
	}
	return updates
}

func (s *GormStore) resubmit(ctx context.Context, model any, id string, updates map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(model).
			Where("id = ? AND status = ?", id, string(domain.ContentChangesRequested)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, model, id)
		}
		return nil
	})
}

// SetAttachment records the object key of an uploaded book or video file.
func (s *GormStore) SetAttachment(ctx context.Context, kind domain.ContentKind, id, key string) error {
	if kind == domain.KindQuiz {
		return fmt.Errorf("quizzes do not carry attachments")
	}
	model, err := contentModel(kind)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", id).
		Updates(map[string]any{"attachment_key": key, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyReview only ever moves an item out of pending. The conditional update
// makes a second concurrent decision on the same item affect zero rows.
func (s *GormStore) ApplyReview(ctx context.Context, d domain.ReviewDecision) (domain.ReviewDecision, error) {
	to, ok := d.Action.Status()
	if !ok {
		return domain.ReviewDecision{}, fmt.Errorf("unknown review action %q", d.Action)
	}
	model, err := contentModel(d.ContentKind)
	if err != nil {
		return domain.ReviewDecision{}, err
	}
	d.CreatedAt = nonZeroTime(d.CreatedAt)
	d.FromStatus = domain.ContentPending
	d.ToStatus = to
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(model).
			Where("id = ? AND status = ?", d.ContentID, string(domain.ContentPending)).
			Updates(map[string]any{"status": string(to), "updated_at": d.CreatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, model, d.ContentID)
		}
		review := reviewToModel(d)
		return tx.Create(&review).Error
	})
	if err != nil {
		return domain.ReviewDecision{}, err
	}
	return d, nil
}

// ListReviews returns the decision log of one item, oldest first.
func (s *GormStore) ListReviews(ctx context.Context, kind domain.ContentKind, id string) ([]domain.ReviewDecision, error) {
	var models []ReviewModel
	if err := s.db.WithContext(ctx).
		Where("content_kind = ? AND content_id = ?", string(kind), id).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ReviewDecision, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

func missingOrConflict(tx *gorm.DB, model any, id string) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func nonZeroTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
