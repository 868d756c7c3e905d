package store

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultJWTIssuer   = "aitutor-auth"
	defaultJWTAudience = "aitutor-api"
	defaultJWTLeeway   = 30 * time.Second
	defaultJWTKeyID    = "jwt-active"
)

var (
	// ErrTokenRevoked is returned for a token revoked by logout or by a
	// logout-all cutoff.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenClaims is returned when a validly signed token lacks jti or sub.
	ErrTokenClaims = errors.New("token claims incomplete")
)

// JWTOptions configures issuer, audience and clock leeway.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// JWTSessionStore issues RS256 access tokens and validates them against the
// active key and any retired keys still accepted during a rotation.
type JWTSessionStore struct {
	ttl     time.Duration
	revoker TokenRevoker

	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey
	jwks      []JWK

	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewJWTSessionStore builds the store around an in-memory signing key.
// verifiers maps kid to public key and may include retired keys.
func NewJWTSessionStore(
	signer *rsa.PrivateKey,
	keyID string,
	verifiers map[string]*rsa.PublicKey,
	ttl time.Duration,
	revoker TokenRevoker,
	opts JWTOptions,
) (*JWTSessionStore, error) {
	if signer == nil {
		return nil, errors.New("jwt signing key required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = defaultJWTKeyID
	}
	keys := make(map[string]*rsa.PublicKey, len(verifiers)+1)
	for kid, pub := range verifiers {
		if kid = strings.TrimSpace(kid); kid != "" && pub != nil {
			keys[kid] = pub
		}
	}
	keys[keyID] = &signer.PublicKey

	opts = normalizeJWTOptions(opts)
	return &JWTSessionStore{
		ttl:       ttl,
		revoker:   revoker,
		signer:    signer,
		signerKid: keyID,
		verifiers: keys,
		jwks:      publishKeys(keys),
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(opts.Issuer),
			jwt.WithAudience(opts.Audience),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(opts.Leeway),
		),
	}, nil
}

// NewJWTSessionStoreFromPEM loads the signing key and any retired verify keys
// (kid -> public key path) from PEM files.
func NewJWTSessionStoreFromPEM(
	privateKeyPath string,
	keyID string,
	verifyKeyFiles map[string]string,
	ttl time.Duration,
	revoker TokenRevoker,
	opts JWTOptions,
) (*JWTSessionStore, error) {
	signer, err := loadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	verifiers := make(map[string]*rsa.PublicKey, len(verifyKeyFiles))
	for kid, path := range verifyKeyFiles {
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		verifiers[kid] = pub
	}
	return NewJWTSessionStore(signer, keyID, verifiers, ttl, revoker, opts)
}

// GenerateSigningKey creates an ephemeral RSA key for local development.
// Tokens signed with it do not survive a restart.
func GenerateSigningKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// NewSession signs an access token for userID.
func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	token.Header["kid"] = s.signerKid
	return token.SignedString(s.signer)
}

// GetUserIDByToken validates the token, checks revocation and returns the
// subject.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", false, err
	}
	if err := s.checkRevoked(claims); err != nil {
		return "", false, err
	}
	return claims.Subject, true, nil
}

// DeleteSession revokes the token until it would have expired. Tokens that
// no longer verify are already unusable and are ignored.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUserSessions revokes every token of userID issued at or before since.
func (s *JWTSessionStore) RevokeUserSessions(userID string, since time.Time) error {
	if s.revoker == nil {
		return nil
	}
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return errors.New("session revoker does not support user revocation")
	}
	return userRevoker.RevokeUser(userID, since)
}

// JWKS returns the verification keys, active and retired.
func (s *JWTSessionStore) JWKS() []JWK {
	return s.jwks
}

func (s *JWTSessionStore) parse(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("invalid token format")
	}
	if _, err := s.parser.ParseWithClaims(token, &claims, s.keyFor); err != nil {
		return claims, err
	}
	if strings.TrimSpace(claims.ID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return claims, ErrTokenClaims
	}
	return claims, nil
}

func (s *JWTSessionStore) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	pub, ok := s.verifiers[strings.TrimSpace(kid)]
	if !ok {
		return nil, fmt.Errorf("unknown token key %q", kid)
	}
	return pub, nil
}

func (s *JWTSessionStore) checkRevoked(claims jwt.RegisteredClaims) error {
	if s.revoker == nil {
		return nil
	}
	revoked, err := s.revoker.IsRevoked(claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrTokenRevoked
	}
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return nil
	}
	cutoff, err := userRevoker.RevokedAfter(claims.Subject)
	if err != nil {
		return err
	}
	if cutoff.IsZero() {
		return nil
	}
	if claims.IssuedAt == nil || !claims.IssuedAt.Time.After(cutoff) {
		return ErrTokenRevoked
	}
	return nil
}

func normalizeJWTOptions(opts JWTOptions) JWTOptions {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = defaultJWTIssuer
	}
	if opts.Audience == "" {
		opts.Audience = defaultJWTAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	return opts
}
