package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "fractionball-cms"

// ErrInvalidToken indicates the session token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the signed form of a Session.
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. The secret must be non-empty.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: session secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session ttl must be greater than zero")
	}
	return &TokenIssuer{secret: []byte(secret), issuer: defaultIssuer, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs the session. Only sessions with a role can be issued, so an
// unauthorized session never leaves the process.
func (t *TokenIssuer) Issue(sess *Session) (string, error) {
	role, ok := sess.Role()
	if !ok {
		return "", fmt.Errorf("%w: session has no role", ErrUnauthorized)
	}
	if strings.TrimSpace(sess.ID) == "" {
		return "", fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	now := t.now().UTC()
	sess.IssuedAt = now
	sess.ExpiresAt = now.Add(t.ttl)

	claims := SessionClaims{
		Email: sess.Email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   sess.ID,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and rebuilds the session it describes.
func (t *TokenIssuer) Parse(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := t.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	role, err := ParseRole(claims.Role, false)
	if err != nil {
		return nil, ErrInvalidToken
	}

	sess := NewSession(claims.Subject, claims.Email)
	sess.IssuedAt = claims.IssuedAt.Time
	sess.ExpiresAt = claims.ExpiresAt.Time
	if err := sess.SetRole(role); err != nil {
		return nil, ErrInvalidToken
	}
	return sess, nil
}

func (t *TokenIssuer) validateClaims(claims *SessionClaims) error {
	if claims.Issuer != t.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.Email) == "" {
		return errors.New("email missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := t.now().UTC()
	if !now.Before(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	return nil
}
