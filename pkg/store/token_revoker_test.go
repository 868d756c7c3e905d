package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTokenRevokerUserCutoffMonotonic(t *testing.T) {
	r := NewMemoryTokenRevoker()
	first := time.Now().UTC().Add(-time.Minute)
	second := time.Now().UTC()

	if err := r.RevokeUser("user-1", first); err != nil {
		t.Fatalf("revoke user first: %v", err)
	}
	if err := r.RevokeUser("user-1", first.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke user older cutoff: %v", err)
	}
	got, err := r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after first: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("expected first cutoff to be kept, got %v", got)
	}

	if err := r.RevokeUser("user-1", second); err != nil {
		t.Fatalf("revoke user second: %v", err)
	}
	got, err = r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after second: %v", err)
	}
	if !got.Equal(second) {
		t.Fatalf("expected newest cutoff, got %v", got)
	}
}

func TestRedisTokenRevokerUserCutoffMonotonic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisTokenRevoker(client, time.Hour)

	if got, err := r.RevokedAfter("nobody"); err != nil || !got.IsZero() {
		t.Fatalf("expected zero cutoff, got %v err=%v", got, err)
	}

	first := time.Now().UTC().Add(-time.Minute)
	if err := r.RevokeUser("user-1", first); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if err := r.RevokeUser("user-1", first.Add(-time.Hour)); err != nil {
		t.Fatalf("revoke user older: %v", err)
	}
	got, err := r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("expected %v, got %v", first, got)
	}
}

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if revoked, _ := r.IsRevoked("jti-1"); revoked {
		t.Fatalf("revocation should lapse with the token")
	}
	if err := r.Revoke("jti-2", 0); err != nil {
		t.Fatalf("revoke zero ttl: %v", err)
	}
	if revoked, _ := r.IsRevoked("jti-2"); revoked {
		t.Fatalf("already-expired token should not be stored")
	}
}
