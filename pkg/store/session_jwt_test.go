package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	key := newTestKey(t)
	signing := newKeyStore(t, key, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-a", Leeway: time.Second})
	verify := newKeyStore(t, key, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-b", Leeway: time.Second})

	token, err := signing.NewSession("user-claim")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	store := newKeyStore(t, newTestKey(t), revoker, JWTOptions{})

	token, err := store.NewSession("user-revoke")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := store.GetUserIDByToken(token); err != nil || !ok {
		t.Fatalf("fresh token must verify, ok=%v err=%v", ok, err)
	}
	if err := store.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := store.GetUserIDByToken(token); !errors.Is(err, ErrTokenRevoked) || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRevokesByUserCutoff(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	store := newKeyStore(t, newTestKey(t), revoker, JWTOptions{})

	token, err := store.NewSession("user-cutoff")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := store.RevokeUserSessions("user-cutoff", time.Now().UTC()); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, ok, err := store.GetUserIDByToken(token); !errors.Is(err, ErrTokenRevoked) || ok {
		t.Fatalf("expected user-revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreFromPEMAndJWKS(t *testing.T) {
	privatePath, _ := writeRSAKeyPairFiles(t, "active")

	s, err := NewJWTSessionStoreFromPEM(privatePath, "kid-active", nil, time.Minute, NewMemoryTokenRevoker(), JWTOptions{})
	if err != nil {
		t.Fatalf("new rs256 store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("unexpected verify result: ok=%v userID=%q err=%v", ok, userID, err)
	}

	keys := s.JWKS()
	if len(keys) != 1 {
		t.Fatalf("expected 1 jwk, got %d", len(keys))
	}
	if keys[0].Kid != "kid-active" || keys[0].Kty != "RSA" || keys[0].Alg != "RS256" {
		t.Fatalf("unexpected jwk fields: %+v", keys[0])
	}
	if keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("expected RSA modulus/exponent in jwks")
	}
}

func TestJWTSessionStoreVerifiesPreviousKeyDuringRotation(t *testing.T) {
	oldKey := newTestKey(t)
	newKey := newTestKey(t)

	oldStore, err := NewJWTSessionStore(oldKey, "kid-old", nil, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("old store: %v", err)
	}
	token, err := oldStore.NewSession("user-rotated")
	if err != nil {
		t.Fatalf("old session: %v", err)
	}

	rotated, err := NewJWTSessionStore(newKey, "kid-new", map[string]*rsa.PublicKey{"kid-old": &oldKey.PublicKey}, time.Minute, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("rotated store: %v", err)
	}
	if userID, ok, err := rotated.GetUserIDByToken(token); err != nil || !ok || userID != "user-rotated" {
		t.Fatalf("old token should verify after rotation: ok=%v user=%q err=%v", ok, userID, err)
	}
	if got := len(rotated.JWKS()); got != 2 {
		t.Fatalf("expected both keys published, got %d", got)
	}
}

func TestJWTSessionStoreRejectsUnknownKid(t *testing.T) {
	signing := newKeyStore(t, newTestKey(t), nil, JWTOptions{})
	other := newKeyStore(t, newTestKey(t), nil, JWTOptions{})

	token, err := signing.NewSession("user-x")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := other.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected token signed by a foreign key to fail")
	}
}

func TestJWTSessionStoreRequiresJTIClaim(t *testing.T) {
	key := newTestKey(t)
	s := newKeyStore(t, key, nil, JWTOptions{})

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user-missing-jti",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		NotBefore: jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(5 * time.Minute)),
	})
	token.Header["kid"] = "jwt-active"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(signed); !errors.Is(err, ErrTokenClaims) {
		t.Fatalf("expected missing jti token to fail, got %v", err)
	}
}

func TestJWTSessionStoreRejectsExpiredToken(t *testing.T) {
	key := newTestKey(t)
	s := newKeyStore(t, key, nil, JWTOptions{Leeway: time.Second})

	past := time.Now().UTC().Add(-time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user-expired",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		ID:        "jti-expired",
	})
	token.Header["kid"] = "jwt-active"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, _, err := s.GetUserIDByToken(signed); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestRedisTokenRevokerSharesRevocations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	revoker := NewRedisTokenRevoker(client, time.Hour)
	store := newKeyStore(t, newTestKey(t), revoker, JWTOptions{})

	token, err := store.NewSession("user-redis")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := store.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := store.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("expected redis-revoked token to fail, ok=%v err=%v", ok, err)
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one revocation key, got %v", mr.Keys())
	}
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func newKeyStore(t *testing.T, key *rsa.PrivateKey, revoker TokenRevoker, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	store, err := NewJWTSessionStore(key, "jwt-active", nil, time.Minute, revoker, opts)
	if err != nil {
		t.Fatalf("new rs store: %v", err)
	}
	return store
}

func writeRSAKeyPairFiles(t *testing.T, prefix string) (string, string) {
	t.Helper()

	key := newTestKey(t)
	dir := t.TempDir()
	privatePath := filepath.Join(dir, prefix+"-private.pem")
	publicPath := filepath.Join(dir, prefix+"-public.pem")

	privateDER := x509.MarshalPKCS1PrivateKey(key)
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privateDER})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}

	return privatePath, publicPath
}
