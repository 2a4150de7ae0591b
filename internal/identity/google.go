// Package identity talks to upstream identity providers and turns their
// answers into auth.Identity values for the gate.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"fractionball.org/internal/auth"
)

const (
	ProviderGoogle = "google"

	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateAudience      = "login-oauth"
	stateTTL           = 5 * time.Minute
)

// ErrInvalidState indicates a missing, forged or expired OAuth state parameter.
var ErrInvalidState = errors.New("identity: invalid oauth state")

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the absolute callback URL registered with Google.
	RedirectURL string
	// StateSecret signs the state parameter.
	StateSecret string
}

// Google runs the authorization-code flow against Google.
type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	secret      []byte
	now         func() time.Time
}

type Option func(*Google)

// WithEndpoint overrides the OAuth endpoint (tests, emulators).
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(g *Google) { g.oauth.Endpoint = ep }
}

// WithUserInfoURL overrides the userinfo endpoint.
func WithUserInfoURL(u string) Option {
	return func(g *Google) { g.userInfoURL = u }
}

func NewGoogle(cfg GoogleConfig, opts ...Option) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("identity: google client id and secret are required")
	}
	if strings.TrimSpace(cfg.StateSecret) == "" {
		return nil, errors.New("identity: state secret is required")
	}
	g := &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
			RedirectURL:  cfg.RedirectURL,
		},
		userInfoURL: defaultUserInfoURL,
		secret:      []byte(cfg.StateSecret),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// AuthCodeURL returns the consent screen URL. callback is the local path the
// user lands on after sign-in and travels inside the signed state.
func (g *Google) AuthCodeURL(callback string) (string, error) {
	state, err := g.signState(callback)
	if err != nil {
		return "", err
	}
	return g.oauth.AuthCodeURL(state), nil
}

// Exchange verifies the state, redeems the code and fetches the profile.
// An account whose email Google has not verified yields an Identity with an
// empty email, which the gate treats as a missing identity.
func (g *Google) Exchange(ctx context.Context, code, state string) (auth.Identity, string, error) {
	callback, err := g.verifyState(state)
	if err != nil {
		return auth.Identity{}, "", err
	}
	if strings.TrimSpace(code) == "" {
		return auth.Identity{}, "", fmt.Errorf("identity: missing authorization code")
	}
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return auth.Identity{}, "", fmt.Errorf("identity: token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return auth.Identity{}, "", err
	}
	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return auth.Identity{}, "", fmt.Errorf("identity: userinfo fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return auth.Identity{}, "", fmt.Errorf("identity: userinfo status %d", resp.StatusCode)
	}

	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.Identity{}, "", fmt.Errorf("identity: userinfo decode: %w", err)
	}

	id := auth.Identity{
		Subject:  info.ID,
		Provider: ProviderGoogle,
		Claims: map[string]any{
			"name":           info.Name,
			"picture":        info.Picture,
			"verified_email": info.VerifiedEmail,
		},
	}
	if info.VerifiedEmail {
		id.Email = strings.ToLower(strings.TrimSpace(info.Email))
	}
	return id, callback, nil
}

func (g *Google) signState(callback string) (string, error) {
	now := g.now()
	claims := &jwt.RegisteredClaims{
		Subject:   callback,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

func (g *Google) verifyState(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return localPath(claims.Subject), nil
}

// localPath returns callback when it names a path on this site and "/"
// otherwise. Browsers read a backslash as a slash and drop tabs and newlines
// before resolving a Location header.
func localPath(callback string) string {
	if !strings.HasPrefix(callback, "/") || strings.ContainsAny(callback, "\\\r\n\t") {
		return "/"
	}
	if len(callback) > 1 && callback[1] == '/' {
		return "/"
	}
	u, err := url.Parse(callback)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return callback
}
