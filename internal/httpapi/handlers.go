package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"fractionball.org/internal/auth"
	"fractionball.org/internal/moderation"
	"fractionball.org/internal/obs"
	"fractionball.org/internal/siteconfig"
	"fractionball.org/internal/stream"
)

const serviceName = "fractionball-cms"

// Pinger is anything the readiness probe can ping (a store, a DB pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks that the backing store answers.
type ReadyProbe struct {
	Store   Pinger
	Timeout time.Duration
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	if rp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.Timeout)
		defer cancel()
	}
	return rp.Store.Ping(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// IdentityProvider runs the upstream sign-in flow.
type IdentityProvider interface {
	AuthCodeURL(callback string) (string, error)
	Exchange(ctx context.Context, code, state string) (auth.Identity, string, error)
}

// Deps are the services the HTTP layer serves.
type Deps struct {
	Gate       *auth.Gate
	Tokens     *auth.TokenIssuer
	Users      *auth.UserService
	SiteConfig *siteconfig.Service
	Moderation *moderation.Service
	// Identity may be nil when no provider is configured.
	Identity IdentityProvider
	Ready    readinessChecker
	// Events feeds the live moderation stream; optional.
	Events *stream.Stream
}

// API is the HTTP layer.
type API struct {
	router     *httprouter.Router
	deps       Deps
	version    string
	rateBurst  int
	ratePerSec int
	maxBody    int64
	secure     bool
	proxies    []netip.Prefix

	revokedMu sync.Mutex
	revoked   map[string]time.Time
	now       func() time.Time
}

type Option func(*API)

// WithRateLimit limits sign-in routes per client address.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithTrustedProxies lists the peers whose X-Forwarded-For is believed.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.proxies = prefixes }
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(a *API) { a.secure = secure }
}

func New(deps Deps, version string, opts ...Option) (*API, error) {
	if deps.Gate == nil || deps.Tokens == nil {
		return nil, errors.New("httpapi: gate and token issuer are required")
	}
	if deps.Users == nil || deps.SiteConfig == nil || deps.Moderation == nil {
		return nil, errors.New("httpapi: user, site config and moderation services are required")
	}
	if deps.Ready == nil {
		deps.Ready = ReadyProbe{}
	}
	a := &API{
		router:     httprouter.New(),
		deps:       deps,
		version:    version,
		rateBurst:  10,
		ratePerSec: 5,
		maxBody:    1 << 20,
		secure:     true,
		revoked:    make(map[string]time.Time),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.HandleMethodNotAllowed = true
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/healthz", a.Healthz)
	r.GET("/readyz", a.Ready)
	r.GET("/v1/info", a.Info)
	r.Handler(http.MethodGet, "/metrics", obs.Handler())

	signIn := newRateLimiter(a.rateBurst, a.ratePerSec)
	r.GET("/login/google", signIn.Handle(a.handleGoogleLogin))
	r.GET("/login/google/callback", signIn.Handle(a.handleGoogleCallback))

	r.POST("/v1/session/signout", a.withSession(a.handleSignOut))
	r.GET("/v1/session", a.withSession(a.handleSession))
	r.GET("/v1/permissions", a.withSession(a.handlePermissions))

	r.GET("/v1/users", a.requirePermission(auth.CollectionUsers, auth.ActionRead, a.handleListUsers))
	r.POST("/v1/users", a.requirePermission(auth.CollectionUsers, auth.ActionCreate, a.handleCreateUser))
	r.PUT("/v1/users/:email/role", a.requirePermission(auth.CollectionUsers, auth.ActionEdit, a.handleUpdateUserRole))

	r.GET("/v1/site-config", a.requirePermission(auth.CollectionSiteConfig, auth.ActionRead, a.handleListSiteConfig))
	r.PUT("/v1/site-config/:key", a.requirePermission(auth.CollectionSiteConfig, auth.ActionEdit, a.handlePutSiteConfig))

	r.POST("/v1/posts/:id/flag", a.requirePermission(auth.CollectionCommunityPosts, auth.ActionRead, a.handleFlagPost))
	r.POST("/v1/posts/:id/approve", a.requirePermission(auth.CollectionCommunityPosts, auth.ActionEdit, a.handleApprovePost))
	r.POST("/v1/posts/:id/delete", a.requirePermission(auth.CollectionCommunityPosts, auth.ActionEdit, a.handleDeletePost))
	r.POST("/v1/posts/:id/pin", a.requirePermission(auth.CollectionCommunityPosts, auth.ActionEdit, a.handlePinPost))
	r.GET("/v1/moderation/events", a.requirePermission(auth.CollectionCommunityPosts, auth.ActionEdit, a.handleModerationEvents))
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = ClientAddr(h, a.proxies)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        serviceName,
		"time":        time.Now().UTC().Format(time.RFC3339),
		"version":     a.version,
		"gate_policy": string(a.deps.Gate.Policy()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
