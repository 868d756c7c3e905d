package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks revoked token ids (jti) until expiry.
type TokenRevoker interface {
	Revoke(tokenID string, ttl time.Duration) error
	IsRevoked(tokenID string) (bool, error)
}

// UserTokenRevoker invalidates every token of a user issued at or before a cutoff.
type UserTokenRevoker interface {
	RevokeUser(userID string, cutoff time.Time) error
	RevokedAfter(userID string) (time.Time, error)
}

// MemoryTokenRevoker keeps revoked tokens in-memory (single instance only).
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	tokens  map[string]time.Time
	cutoffs map[string]time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
	}
}

// Revoke marks a token as revoked until its expiry.
func (r *MemoryTokenRevoker) Revoke(tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	r.tokens[tokenID] = time.Now().Add(ttl)
	r.mu.Unlock()
	return nil
}

// IsRevoked checks if the token is revoked.
func (r *MemoryTokenRevoker) IsRevoked(tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.tokens[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.tokens, tokenID)
		return false, nil
	}
	return true, nil
}

// RevokeUser only moves the cutoff forward.
func (r *MemoryTokenRevoker) RevokeUser(userID string, cutoff time.Time) error {
	cutoff = cutoff.UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.cutoffs[userID]; ok && !cutoff.After(prev) {
		return nil
	}
	r.cutoffs[userID] = cutoff
	return nil
}

func (r *MemoryTokenRevoker) RevokedAfter(userID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoffs[userID], nil
}

// RedisTokenRevoker stores revoked tokens in Redis with TTL.
type RedisTokenRevoker struct {
	client  *redis.Client
	userTTL time.Duration
}

// NewRedisTokenRevoker builds a Redis-backed revoker. userTTL bounds how long
// a per-user cutoff is kept and should be at least the session TTL.
func NewRedisTokenRevoker(client *redis.Client, userTTL time.Duration) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client, userTTL: userTTL}
}

// Revoke marks a token as revoked until expiry.
func (r *RedisTokenRevoker) Revoke(tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, revocationKey(tokenID), "1", ttl).Err()
}

// IsRevoked checks if the token is revoked.
func (r *RedisTokenRevoker) IsRevoked(tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := r.client.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

var moveCutoffScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RevokeUser stores the cutoff as unix nanoseconds and never moves it backwards.
func (r *RedisTokenRevoker) RevokeUser(userID string, cutoff time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ttl := r.userTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return moveCutoffScript.Run(ctx, r.client, []string{userCutoffKey(userID)},
		strconv.FormatInt(cutoff.UTC().UnixNano(), 10), ttl.Milliseconds()).Err()
}

func (r *RedisTokenRevoker) RevokedAfter(userID string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := r.client.Get(ctx, userCutoffKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

func revocationKey(tokenID string) string {
	return "aitutor:revoked:" + tokenID
}

func userCutoffKey(userID string) string {
	return "aitutor:revoked-user:" + userID
}
