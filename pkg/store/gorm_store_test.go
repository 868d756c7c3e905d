package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"aitutor/pkg/domain"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewSQLiteStore("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pendingBook(id, creator string, at time.Time) domain.Book {
	return domain.Book{
		ContentMeta: domain.ContentMeta{
			ID:         id,
			Title:      "Mechanics " + id,
			Stream:     "science",
			ClassLevel: 11,
			Subject:    "physics",
			Topic:      "motion",
			Status:     domain.ContentPending,
			CreatedBy:  creator,
			CreatedAt:  at,
			UpdatedAt:  at,
		},
		Author: "H. C. Verma",
	}
}

func TestGormStoreUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	u := domain.User{ID: "u1", Email: "a@example.com", PasswordHash: "h", FullName: "Asha", Role: domain.RoleStudent, Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := u
	dup.ID = "u2"
	if err := s.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	got, ok, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil || !ok || got.FullName != "Asha" {
		t.Fatalf("get by email: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := s.GetUserByID(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing user, ok=%v err=%v", ok, err)
	}
	users, err := s.UsersByID(ctx, []string{"u1", "missing"})
	if err != nil || len(users) != 1 || users["u1"].Email != u.Email {
		t.Fatalf("users by id: %+v err=%v", users, err)
	}
}

func TestGormStoreApplyReviewOnlyFromPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := s.CreateBook(ctx, pendingBook("b1", "t1", now)); err != nil {
		t.Fatalf("create book: %v", err)
	}

	d, err := s.ApplyReview(ctx, domain.ReviewDecision{ID: "r1", ContentKind: domain.KindBook, ContentID: "b1", Action: domain.ActionApprove, ReviewerID: "admin"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.FromStatus != domain.ContentPending || d.ToStatus != domain.ContentApproved {
		t.Fatalf("unexpected transition %s -> %s", d.FromStatus, d.ToStatus)
	}
	book, _, _ := s.GetBook(ctx, "b1")
	if book.Status != domain.ContentApproved {
		t.Fatalf("expected approved, got %s", book.Status)
	}

	_, err = s.ApplyReview(ctx, domain.ReviewDecision{ID: "r2", ContentKind: domain.KindBook, ContentID: "b1", Action: domain.ActionReject, ReviewerID: "admin"})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected conflict on decided item, got %v", err)
	}
	_, err = s.ApplyReview(ctx, domain.ReviewDecision{ID: "r3", ContentKind: domain.KindVideo, ContentID: "b1", Action: domain.ActionReject, ReviewerID: "admin"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for wrong kind, got %v", err)
	}

	reviews, err := s.ListReviews(ctx, domain.KindBook, "b1")
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].ID != "r1" {
		t.Fatalf("expected only the winning decision to be logged, got %+v", reviews)
	}
}

func TestGormStoreConcurrentReviewsHaveOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateBook(ctx, pendingBook("b1", "t1", time.Now().UTC())); err != nil {
		t.Fatalf("create book: %v", err)
	}

	actions := []domain.ReviewAction{domain.ActionApprove, domain.ActionReject, domain.ActionRequestChanges, domain.ActionApprove}
	var wg sync.WaitGroup
	errs := make([]error, len(actions))
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action domain.ReviewAction) {
			defer wg.Done()
			_, errs[i] = s.ApplyReview(ctx, domain.ReviewDecision{ID: uuid.NewString(), ContentKind: domain.KindBook, ContentID: "b1", Action: action, ReviewerID: "admin"})
		}(i, action)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrStatusConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning decision, got %d", wins)
	}
	reviews, _ := s.ListReviews(ctx, domain.KindBook, "b1")
	if len(reviews) != 1 {
		t.Fatalf("expected one log entry, got %d", len(reviews))
	}
}

func TestGormStoreResubmitRequiresChangesRequested(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := s.CreateBook(ctx, pendingBook("b1", "t1", now)); err != nil {
		t.Fatalf("create book: %v", err)
	}
	edited := pendingBook("b1", "t1", now)
	edited.Title = "Mechanics, second edition"
	if err := s.ResubmitBook(ctx, edited); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("pending item cannot be resubmitted, got %v", err)
	}
	if _, err := s.ApplyReview(ctx, domain.ReviewDecision{ID: "r1", ContentKind: domain.KindBook, ContentID: "b1", Action: domain.ActionRequestChanges, ReviewerID: "admin", Comment: "fix title"}); err != nil {
		t.Fatalf("request changes: %v", err)
	}
	if err := s.ResubmitBook(ctx, edited); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	book, _, _ := s.GetBook(ctx, "b1")
	if book.Status != domain.ContentPending || book.Title != edited.Title {
		t.Fatalf("unexpected book after resubmit: %+v", book)
	}
	missing := pendingBook("nope", "t1", now)
	if err := s.ResubmitBook(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGormStoreListFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		b := pendingBook(id, "t1", base.Add(time.Duration(i)*time.Minute))
		if id == "mid" {
			b.Subject = "chemistry"
		}
		if err := s.CreateBook(ctx, b); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	all, err := s.ListBooks(ctx, domain.ContentPending, domain.ContentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "old" || all[2].ID != "new" {
		t.Fatalf("expected creation order, got %v", bookIDs(all))
	}
	physics, _ := s.ListBooks(ctx, domain.ContentPending, domain.ContentFilter{Subject: "physics", ClassLevel: 11})
	if len(physics) != 2 {
		t.Fatalf("expected 2 physics books, got %v", bookIDs(physics))
	}
	approved, _ := s.ListBooks(ctx, domain.ContentApproved, domain.ContentFilter{})
	if len(approved) != 0 {
		t.Fatalf("expected no approved books, got %v", bookIDs(approved))
	}
}

func TestGormStoreQuizQuestionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	q := domain.Quiz{
		ContentMeta: domain.ContentMeta{ID: "q1", Title: "Vectors", Subject: "physics", Status: domain.ContentPending, CreatedBy: "t1", CreatedAt: now, UpdatedAt: now},
		Difficulty:  "easy",
		Questions: []domain.Question{
			{Text: "Unit of force?", Options: []string{"N", "J", "W"}, CorrectIndex: 0, Explanation: "newton"},
		},
	}
	if err := s.CreateQuiz(ctx, q); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	got, ok, err := s.GetQuiz(ctx, "q1")
	if err != nil || !ok {
		t.Fatalf("get quiz: ok=%v err=%v", ok, err)
	}
	if len(got.Questions) != 1 || got.Questions[0].Options[1] != "J" || got.Questions[0].Explanation != "newton" {
		t.Fatalf("questions not preserved: %+v", got.Questions)
	}
}

func TestGormStoreSetAttachment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateBook(ctx, pendingBook("b1", "t1", time.Now().UTC())); err != nil {
		t.Fatalf("create book: %v", err)
	}
	if err := s.SetAttachment(ctx, domain.KindBook, "b1", "books/b1/file.pdf"); err != nil {
		t.Fatalf("set attachment: %v", err)
	}
	book, _, _ := s.GetBook(ctx, "b1")
	if !book.HasFile || book.AttachmentKey != "books/b1/file.pdf" {
		t.Fatalf("attachment not recorded: %+v", book)
	}
	if err := s.SetAttachment(ctx, domain.KindVideo, "b1", "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SetAttachment(ctx, domain.KindQuiz, "b1", "k"); err == nil {
		t.Fatalf("quizzes must not accept attachments")
	}
}

func TestGormStoreMessagesAreSequenced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	session := domain.ChatSession{ID: "s1", UserID: "u1", Title: "t", ContextType: domain.ContextDoubt, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 5; i++ {
		role := domain.RoleUserMessage
		if i%2 == 1 {
			role = domain.RoleAssistantMessage
		}
		msg, err := s.AppendMessage(ctx, domain.ChatMessage{ID: uuid.NewString(), SessionID: "s1", Role: role, Content: string(rune('a' + i))})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if msg.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, msg.Seq)
		}
	}
	if _, err := s.AppendMessage(ctx, domain.ChatMessage{ID: "x", SessionID: "missing", Role: domain.RoleUserMessage, Content: "hi"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}

	recent, err := s.ListRecentMessages(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].Content != "c" || recent[2].Content != "e" {
		t.Fatalf("expected last three oldest-first, got %+v", recent)
	}
	all, _ := s.ListMessages(ctx, "s1")
	if len(all) != 5 || all[0].Seq != 1 {
		t.Fatalf("unexpected transcript: %+v", all)
	}
	got, _, _ := s.GetSession(ctx, "s1")
	if !got.UpdatedAt.After(now) && !got.UpdatedAt.Equal(now) {
		t.Fatalf("session updated_at should move forward")
	}
}

func TestGormStoreStartSessionIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	first, err := s.StartSession(ctx,
		domain.ChatSession{ID: "s1", UserID: "u1", Title: "t", ContextType: domain.ContextDoubt, CreatedAt: now, UpdatedAt: now},
		domain.ChatMessage{ID: "m1", Role: domain.RoleUserMessage, Content: "hello"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if first.SessionID != "s1" || first.Seq != 1 {
		t.Fatalf("unexpected first message %+v", first)
	}

	// Reusing m1 makes the message insert fail after the session row is written.
	if _, err := s.StartSession(ctx,
		domain.ChatSession{ID: "s2", UserID: "u1", Title: "t", ContextType: domain.ContextDoubt, CreatedAt: now, UpdatedAt: now},
		domain.ChatMessage{ID: "m1", Role: domain.RoleUserMessage, Content: "again"}); err == nil {
		t.Fatalf("expected duplicate message id to fail")
	}
	if _, ok, err := s.GetSession(ctx, "s2"); err != nil || ok {
		t.Fatalf("session must be rolled back with its message, ok=%v err=%v", ok, err)
	}
	sessions, _ := s.ListSessionsByUser(ctx, "u1", 10)
	if len(sessions) != 1 {
		t.Fatalf("expected only the first session, got %d", len(sessions))
	}
}

func TestGormStoreListSessionsByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"s1", "s2"} {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateSession(ctx, domain.ChatSession{ID: id, UserID: "u1", Title: id, ContextType: domain.ContextDoubt, CreatedAt: at, UpdatedAt: at}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.CreateSession(ctx, domain.ChatSession{ID: "other", UserID: "u2", Title: "x", ContextType: domain.ContextDoubt, CreatedAt: base, UpdatedAt: base}); err != nil {
		t.Fatalf("create other: %v", err)
	}
	if _, err := s.AppendMessage(ctx, domain.ChatMessage{ID: "m1", SessionID: "s1", Role: domain.RoleUserMessage, Content: "bump"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	sessions, err := s.ListSessionsByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s1" {
		t.Fatalf("expected s1 first after activity, got %+v", sessions)
	}
}

func TestGormStoreAssessmentUpsertAndLevelLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	first, err := s.UpsertAssessment(ctx, domain.SelfAssessment{ID: "a1", UserID: "u1", Subject: "physics", Topic: "optics", Level: domain.LevelBeginner, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertAssessment(ctx, domain.SelfAssessment{ID: "a2", UserID: "u1", Subject: "physics", Topic: "optics", Level: domain.LevelExpert, CreatedAt: now, UpdatedAt: now.Add(time.Second)})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if second.ID != first.ID || second.Level != domain.LevelExpert {
		t.Fatalf("expected in-place update, got %+v", second)
	}
	list, _ := s.ListAssessments(ctx, "u1")
	if len(list) != 1 {
		t.Fatalf("expected one assessment, got %d", len(list))
	}

	level, ok, err := s.FindLevel(ctx, "u1", "physics", "optics")
	if err != nil || !ok || level != domain.LevelExpert {
		t.Fatalf("exact lookup: %s ok=%v err=%v", level, ok, err)
	}
	level, ok, _ = s.FindLevel(ctx, "u1", "physics", "waves")
	if !ok || level != domain.LevelExpert {
		t.Fatalf("subject fallback: %s ok=%v", level, ok)
	}
	if _, ok, _ := s.FindLevel(ctx, "u1", "biology", ""); ok {
		t.Fatalf("unknown subject must not resolve")
	}
}

func TestGormStorePingAndClose(t *testing.T) {
	s, err := Open("sqlite:file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatalf("ping after close should fail")
	}
}

func bookIDs(books []domain.Book) []string {
	ids := make([]string, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids
}
