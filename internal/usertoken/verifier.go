package usertoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "aitutor-auth"
	defaultAudience = "aitutor-api"
	defaultLeeway   = 30 * time.Second
)

// Config configures access-token verification against the auth service JWKS.
type Config struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client
}

// Claims are the verified parts of a learner or staff access token.
type Claims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks RS256 access tokens issued by the auth service.
type Verifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	keys     *keySet
}

// NewVerifier creates a token verifier. Keys are fetched on first use so a
// service can start before auth does.
func NewVerifier(cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	v := &Verifier{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   cfg.Leeway,
	}
	if v.issuer == "" {
		v.issuer = defaultIssuer
	}
	if v.audience == "" {
		v.audience = defaultAudience
	}
	if v.leeway <= 0 {
		v.leeway = defaultLeeway
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	v.keys = newKeySet(jwksURL, client)
	return v, nil
}

// VerifySubject validates the token and returns the user ID it was issued to.
func (v *Verifier) VerifySubject(ctx context.Context, token string) (string, error) {
	claims, err := v.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Verify validates signature, issuer, audience and times. An unknown kid
// triggers one key refresh so rotations are picked up without a restart.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	if v.keys.stale() {
		if err := v.keys.refresh(ctx); err != nil && v.keys.empty() {
			return Claims{}, err
		}
	}
	claims, err := v.parse(token)
	if errors.Is(err, errUnknownKey) {
		if refreshErr := v.keys.refresh(ctx); refreshErr != nil {
			return Claims{}, refreshErr
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (v *Verifier) parse(token string) (Claims, error) {
	var registered jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &registered, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.lookup(strings.TrimSpace(kid))
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	subject := strings.TrimSpace(registered.Subject)
	if subject == "" {
		return Claims{}, errors.New("token subject missing")
	}
	claims := Claims{UserID: subject, TokenID: registered.ID}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}
