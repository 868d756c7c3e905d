package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"aitutor/internal/util"
	"aitutor/pkg/domain"
	"aitutor/pkg/storage"
	"aitutor/pkg/store"
)

const defaultPresignTTL = 15 * time.Minute

// Store is the persistence surface the content service needs.
type Store interface {
	store.ContentStore
	UsersByID(ctx context.Context, ids []string) (map[string]domain.User, error)
}

// Config holds runtime dependencies for the content application.
type Config struct {
	Store Store
	// Objects stores book and video attachments; nil disables uploads.
	Objects    storage.ObjectStore
	PresignTTL time.Duration
}

// App implements moderation, authoring and the approved catalogue.
type App struct {
	store      Store
	objects    storage.ObjectStore
	presignTTL time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("content store required")
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &App{store: cfg.Store, objects: cfg.Objects, presignTTL: ttl}, nil
}

// ListPending returns every pending item grouped by kind, annotated with the
// creator's display name. status may be empty or "pending".
func (a *App) ListPending(ctx context.Context, reviewer domain.User, status string) (domain.PendingContent, error) {
	if !reviewer.Role.CanReview() {
		return domain.PendingContent{}, ErrForbidden
	}
	if status = strings.TrimSpace(status); status != "" && status != string(domain.ContentPending) {
		return domain.PendingContent{}, ErrInvalidStatusFilter
	}

	var out domain.PendingContent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		books, err := a.store.ListBooks(gctx, domain.ContentPending, domain.ContentFilter{})
		out.Books = books
		return err
	})
	g.Go(func() error {
		videos, err := a.store.ListVideos(gctx, domain.ContentPending, domain.ContentFilter{})
		out.Videos = videos
		return err
	})
	g.Go(func() error {
		quizzes, err := a.store.ListQuizzes(gctx, domain.ContentPending, domain.ContentFilter{})
		out.Quizzes = quizzes
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PendingContent{}, fmt.Errorf("list pending content: %w", err)
	}
	if err := a.annotate(ctx, out.Books, out.Videos, out.Quizzes); err != nil {
		return domain.PendingContent{}, err
	}
	return out, nil
}

// DecisionInput is one moderation verdict as submitted by a reviewer.
type DecisionInput struct {
	Kind    string
	ID      string
	Action  string
	Comment string
}

// Decide applies a verdict to a pending item and records it in the review log.
func (a *App) Decide(ctx context.Context, reviewer domain.User, in DecisionInput) (domain.ReviewDecision, error) {
	if !reviewer.Role.CanReview() {
		return domain.ReviewDecision{}, ErrForbidden
	}
	kind, ok := domain.ParseContentKind(strings.TrimSpace(in.Kind))
	if !ok {
		return domain.ReviewDecision{}, ErrInvalidKind
	}
	action := domain.ReviewAction(strings.TrimSpace(in.Action))
	if _, ok := action.Status(); !ok {
		return domain.ReviewDecision{}, ErrInvalidAction
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return domain.ReviewDecision{}, ErrContentIDRequired
	}
	decision, err := a.store.ApplyReview(ctx, domain.ReviewDecision{
		ID:          util.NewID(),
		ContentKind: kind,
		ContentID:   id,
		Action:      action,
		Comment:     strings.TrimSpace(in.Comment),
		ReviewerID:  reviewer.ID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.ReviewDecision{}, mapStoreErr("apply review", err)
	}
	util.LoggerFromContext(ctx).Info("content reviewed",
		"content_type", kind,
		"content_id", id,
		"action", action,
		"status", decision.ToStatus,
		"reviewer_id", reviewer.ID,
	)
	return decision, nil
}

// ListReviews returns the decision log of one item, oldest first.
func (a *App) ListReviews(ctx context.Context, reviewer domain.User, kindRaw, id string) ([]domain.ReviewDecision, error) {
	if !reviewer.Role.CanReview() {
		return nil, ErrForbidden
	}
	kind, ok := domain.ParseContentKind(kindRaw)
	if !ok {
		return nil, ErrInvalidKind
	}
	if _, _, err := a.lookup(ctx, kind, id); err != nil {
		return nil, err
	}
	reviews, err := a.store.ListReviews(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// MetaInput carries the fields shared by every content kind.
type MetaInput struct {
	Title      string
	Stream     string
	ClassLevel int
	Subject    string
	Topic      string
}

type BookInput struct {
	MetaInput
	Author  string
	Summary string
}

type VideoInput struct {
	MetaInput
	TeacherName string
	Difficulty  string
	VideoURL    string
}

type QuizInput struct {
	MetaInput
	Difficulty string
	Questions  []domain.Question
}

// CreateBook stores a new pending book.
func (a *App) CreateBook(ctx context.Context, creator domain.User, in BookInput) (domain.Book, error) {
	meta, err := newMeta(creator, in.MetaInput)
	if err != nil {
		return domain.Book{}, err
	}
	book := domain.Book{
		ContentMeta: meta,
		Author:      strings.TrimSpace(in.Author),
		Summary:     strings.TrimSpace(in.Summary),
	}
	if err := a.store.CreateBook(ctx, book); err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	book.UploaderName = creator.FullName
	return book, nil
}

// CreateVideo stores a new pending video.
func (a *App) CreateVideo(ctx context.Context, creator domain.User, in VideoInput) (domain.Video, error) {
	meta, err := newMeta(creator, in.MetaInput)
	if err != nil {
		return domain.Video{}, err
	}
	video := domain.Video{
		ContentMeta: meta,
		TeacherName: strings.TrimSpace(in.TeacherName),
		Difficulty:  strings.TrimSpace(in.Difficulty),
		VideoURL:    strings.TrimSpace(in.VideoURL),
	}
	if video.TeacherName == "" {
		video.TeacherName = creator.FullName
	}
	if err := a.store.CreateVideo(ctx, video); err != nil {
		return domain.Video{}, fmt.Errorf("create video: %w", err)
	}
	video.UploaderName = creator.FullName
	return video, nil
}

// CreateQuiz validates the questions and stores a new pending quiz.
func (a *App) CreateQuiz(ctx context.Context, creator domain.User, in QuizInput) (domain.Quiz, error) {
	meta, err := newMeta(creator, in.MetaInput)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := domain.ValidateQuestions(in.Questions); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{
		ContentMeta: meta,
		Difficulty:  strings.TrimSpace(in.Difficulty),
		Questions:   in.Questions,
	}
	if err := a.store.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	quiz.CreatorName = creator.FullName
	return quiz, nil
}

func newMeta(creator domain.User, in MetaInput) (domain.ContentMeta, error) {
	if !creator.Role.CanReview() {
		return domain.ContentMeta{}, ErrForbidden
	}
	if err := checkMeta(in); err != nil {
		return domain.ContentMeta{}, err
	}
	now := time.Now().UTC()
	return domain.ContentMeta{
		ID:         util.NewID(),
		Title:      strings.TrimSpace(in.Title),
		Stream:     strings.TrimSpace(in.Stream),
		ClassLevel: in.ClassLevel,
		Subject:    strings.TrimSpace(in.Subject),
		Topic:      strings.TrimSpace(in.Topic),
		Status:     domain.ContentPending,
		CreatedBy:  creator.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func checkMeta(in MetaInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(in.Subject) == "" {
		return ErrSubjectRequired
	}
	return nil
}

// ListBooks returns approved books matching the filter.
func (a *App) ListBooks(ctx context.Context, filter domain.ContentFilter) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx, domain.ContentApproved, filter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, a.annotate(ctx, books, nil, nil)
}

// ListVideos returns approved videos matching the filter.
func (a *App) ListVideos(ctx context.Context, filter domain.ContentFilter) ([]domain.Video, error) {
	videos, err := a.store.ListVideos(ctx, domain.ContentApproved, filter)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, a.annotate(ctx, nil, videos, nil)
}

// ListQuizzes returns approved quizzes matching the filter.
func (a *App) ListQuizzes(ctx context.Context, filter domain.ContentFilter) ([]domain.Quiz, error) {
	quizzes, err := a.store.ListQuizzes(ctx, domain.ContentApproved, filter)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, a.annotate(ctx, nil, nil, quizzes)
}

// ResubmitBook replaces the editable fields of a book in changes_requested and
// puts it back in the review queue.
func (a *App) ResubmitBook(ctx context.Context, caller domain.User, id string, in BookInput) (domain.Book, error) {
	meta, err := a.resubmitMeta(ctx, caller, domain.KindBook, id, in.MetaInput)
	if err != nil {
		return domain.Book{}, err
	}
	book := domain.Book{ContentMeta: meta, Author: strings.TrimSpace(in.Author), Summary: strings.TrimSpace(in.Summary)}
	if err := a.store.ResubmitBook(ctx, book); err != nil {
		return domain.Book{}, mapStoreErr("resubmit book", err)
	}
	book, _, err = a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("reload book: %w", err)
	}
	return book, nil
}

// ResubmitVideo is ResubmitBook for videos.
func (a *App) ResubmitVideo(ctx context.Context, caller domain.User, id string, in VideoInput) (domain.Video, error) {
	meta, err := a.resubmitMeta(ctx, caller, domain.KindVideo, id, in.MetaInput)
	if err != nil {
		return domain.Video{}, err
	}
	video := domain.Video{
		ContentMeta: meta,
		TeacherName: strings.TrimSpace(in.TeacherName),
		Difficulty:  strings.TrimSpace(in.Difficulty),
		VideoURL:    strings.TrimSpace(in.VideoURL),
	}
	if err := a.store.ResubmitVideo(ctx, video); err != nil {
		return domain.Video{}, mapStoreErr("resubmit video", err)
	}
	video, _, err = a.store.GetVideo(ctx, id)
	if err != nil {
		return domain.Video{}, fmt.Errorf("reload video: %w", err)
	}
	return video, nil
}

// ResubmitQuiz is ResubmitBook for quizzes; the questions are revalidated.
func (a *App) ResubmitQuiz(ctx context.Context, caller domain.User, id string, in QuizInput) (domain.Quiz, error) {
	meta, err := a.resubmitMeta(ctx, caller, domain.KindQuiz, id, in.MetaInput)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := domain.ValidateQuestions(in.Questions); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{ContentMeta: meta, Difficulty: strings.TrimSpace(in.Difficulty), Questions: in.Questions}
	if err := a.store.ResubmitQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, mapStoreErr("resubmit quiz", err)
	}
	quiz, _, err = a.store.GetQuiz(ctx, id)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("reload quiz: %w", err)
	}
	return quiz, nil
}

// resubmitMeta checks ownership and state and builds the replacement metadata.
// The store repeats the state check atomically.
func (a *App) resubmitMeta(ctx context.Context, caller domain.User, kind domain.ContentKind, id string, in MetaInput) (domain.ContentMeta, error) {
	current, _, err := a.lookup(ctx, kind, id)
	if err != nil {
		return domain.ContentMeta{}, err
	}
	if current.CreatedBy != caller.ID && caller.Role != domain.RoleAdmin {
		return domain.ContentMeta{}, ErrForbidden
	}
	if current.Status != domain.ContentChangesRequested {
		return domain.ContentMeta{}, ErrStatusConflict
	}
	if err := checkMeta(in); err != nil {
		return domain.ContentMeta{}, err
	}
	current.Title = strings.TrimSpace(in.Title)
	current.Stream = strings.TrimSpace(in.Stream)
	current.ClassLevel = in.ClassLevel
	current.Subject = strings.TrimSpace(in.Subject)
	current.Topic = strings.TrimSpace(in.Topic)
	current.UpdatedAt = time.Now().UTC()
	return current, nil
}

// UploadAttachment stores a book or video file and links it to the item,
// replacing any previous file.
func (a *App) UploadAttachment(ctx context.Context, caller domain.User, kindRaw, id, filename string, r io.Reader, size int64) error {
	kind, ok := domain.ParseContentKind(kindRaw)
	if !ok {
		return ErrInvalidKind
	}
	if kind == domain.KindQuiz {
		return ErrAttachmentUnsupported
	}
	if strings.TrimSpace(filename) == "" {
		return ErrFilenameRequired
	}
	if a.objects == nil {
		return ErrStorageUnavailable
	}
	meta, previous, err := a.lookup(ctx, kind, id)
	if err != nil {
		return err
	}
	if meta.CreatedBy != caller.ID && caller.Role != domain.RoleAdmin {
		return ErrForbidden
	}

	key := storage.AttachmentKey(string(kind), id, filename)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := a.store.SetAttachment(ctx, kind, id, key); err != nil {
		if delErr := a.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			util.LoggerFromContext(ctx).Warn("delete orphaned attachment failed", "key", key, "err", delErr)
		}
		return mapStoreErr("set attachment", err)
	}
	if previous != "" && previous != key {
		if err := a.objects.Delete(ctx, previous); err != nil {
			util.LoggerFromContext(ctx).Warn("delete replaced attachment failed", "key", previous, "err", err)
		}
	}
	return nil
}

// AttachmentURL returns a short-lived download URL. Approved items are public
// to every signed-in user; otherwise only the creator and reviewers may read.
func (a *App) AttachmentURL(ctx context.Context, caller domain.User, kindRaw, id string) (string, error) {
	kind, ok := domain.ParseContentKind(kindRaw)
	if !ok {
		return "", ErrInvalidKind
	}
	if kind == domain.KindQuiz {
		return "", ErrAttachmentUnsupported
	}
	meta, key, err := a.lookup(ctx, kind, id)
	if err != nil {
		return "", err
	}
	if meta.Status != domain.ContentApproved && meta.CreatedBy != caller.ID && !caller.Role.CanReview() {
		return "", ErrForbidden
	}
	if key == "" {
		return "", ErrNoAttachment
	}
	if a.objects == nil {
		return "", ErrStorageUnavailable
	}
	url, err := a.objects.PresignGet(ctx, key, a.presignTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return url, nil
}

// lookup loads the shared metadata and attachment key of any content kind.
func (a *App) lookup(ctx context.Context, kind domain.ContentKind, id string) (domain.ContentMeta, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ContentMeta{}, "", ErrContentIDRequired
	}
	var (
		meta domain.ContentMeta
		key  string
		ok   bool
		err  error
	)
	switch kind {
	case domain.KindBook:
		var b domain.Book
		b, ok, err = a.store.GetBook(ctx, id)
		meta, key = b.ContentMeta, b.AttachmentKey
	case domain.KindVideo:
		var v domain.Video
		v, ok, err = a.store.GetVideo(ctx, id)
		meta, key = v.ContentMeta, v.AttachmentKey
	case domain.KindQuiz:
		var q domain.Quiz
		q, ok, err = a.store.GetQuiz(ctx, id)
		meta = q.ContentMeta
	default:
		return domain.ContentMeta{}, "", ErrInvalidKind
	}
	if err != nil {
		return domain.ContentMeta{}, "", fmt.Errorf("load %s: %w", kind, err)
	}
	if !ok {
		return domain.ContentMeta{}, "", ErrNotFound
	}
	return meta, key, nil
}

// annotate fills creator display names in place with one batched user lookup.
func (a *App) annotate(ctx context.Context, books []domain.Book, videos []domain.Video, quizzes []domain.Quiz) error {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok || id == "" {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, b := range books {
		add(b.CreatedBy)
	}
	for _, v := range videos {
		add(v.CreatedBy)
	}
	for _, q := range quizzes {
		add(q.CreatedBy)
	}
	if len(ids) == 0 {
		return nil
	}
	users, err := a.store.UsersByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve creators: %w", err)
	}
	for i := range books {
		books[i].UploaderName = users[books[i].CreatedBy].FullName
	}
	for i := range videos {
		videos[i].UploaderName = users[videos[i].CreatedBy].FullName
	}
	for i := range quizzes {
		quizzes[i].CreatorName = users[quizzes[i].CreatedBy].FullName
	}
	return nil
}

func mapStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrStatusConflict):
		return ErrStatusConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
