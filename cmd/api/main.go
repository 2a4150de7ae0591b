package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fractionball.org/internal/audit"
	"fractionball.org/internal/auth"
	"fractionball.org/internal/config"
	"fractionball.org/internal/httpapi"
	"fractionball.org/internal/identity"
	"fractionball.org/internal/moderation"
	"fractionball.org/internal/obs"
	"fractionball.org/internal/siteconfig"
	"fractionball.org/internal/store/firestore"
	"fractionball.org/internal/store/memory"
	"fractionball.org/internal/store/pg"
	"fractionball.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what every store implementation provides.
type backend interface {
	auth.UserStore
	moderation.PostStore
	siteconfig.Store
	Ping(ctx context.Context) error
}

func main() {
	obs.Init()

	conf, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.InitBuildInfo(version, commit, conf.GatePolicy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, conf)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	gateOpts := append(conf.GateOptions(),
		auth.WithDecisionHook(func(_ context.Context, p auth.Policy, _ auth.Identity, d auth.Decision) {
			obs.ObserveGateDecision(string(p), string(d.Reason), d.Admitted)
		}),
		auth.WithDecisionHook(audit.GateDecision),
	)
	gate, err := auth.NewGate(store, gateOpts...)
	if err != nil {
		log.Fatalf("gate: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(conf.SessionSecret, conf.SessionTTL)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	users, err := auth.NewUserService(store)
	if err != nil {
		log.Fatalf("users: %v", err)
	}
	siteCfg, err := siteconfig.NewService(store)
	if err != nil {
		log.Fatalf("site config: %v", err)
	}
	events := stream.New()
	mod, err := moderation.NewService(store,
		moderation.WithObserver(func(_ context.Context, a moderation.Action, _ string, _ moderation.Post) {
			obs.ObserveModeration(string(a))
		}),
		moderation.WithObserver(audit.ModerationAction),
		moderation.WithObserver(events.Observe),
	)
	if err != nil {
		log.Fatalf("moderation: %v", err)
	}

	deps := httpapi.Deps{
		Gate:       gate,
		Tokens:     tokens,
		Users:      users,
		SiteConfig: siteCfg,
		Moderation: mod,
		Ready:      httpapi.ReadyProbe{Store: store, Timeout: 2 * time.Second},
		Events:     events,
	}
	if conf.GoogleEnabled() {
		google, err := identity.NewGoogle(identity.GoogleConfig{
			ClientID:     conf.GoogleClientID,
			ClientSecret: conf.GoogleClientSecret,
			RedirectURL:  strings.TrimRight(conf.BaseURL, "/") + "/login/google/callback",
			StateSecret:  conf.SessionSecret,
		})
		if err != nil {
			log.Fatalf("google: %v", err)
		}
		deps.Identity = google
	}

	proxies, _ := conf.TrustedProxyPrefixes()
	api, err := httpapi.New(deps, version,
		httpapi.WithRateLimit(conf.RateBurst, conf.RatePerSec),
		httpapi.WithTrustedProxies(proxies),
		httpapi.WithMaxBodyBytes(conf.MaxBodyBytes),
		httpapi.WithSecureCookies(conf.SecureCookies),
	)
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	srv := &http.Server{
		Addr:              conf.HttpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(deps.Ready)
	grpcSrv := httpapi.NewGRPCServer(health)
	lis, err := net.Listen("tcp", conf.GrpcAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	go health.Run(ctx, 15*time.Second)

	obs.Info("starting", map[string]any{
		"service":     "fractionball-cms",
		"version":     version,
		"http_addr":   conf.HttpAddr,
		"grpc_addr":   conf.GrpcAddr,
		"store":       conf.Store,
		"gate_policy": conf.GatePolicy,
		"google":      conf.GoogleEnabled(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			obs.Error("grpc serve", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	obs.Info("stopped", nil)
}

func openStore(ctx context.Context, conf config.Config) (backend, func(), error) {
	switch conf.Store {
	case config.StorePostgres:
		s, err := pg.Open(conf.PgDSN, pg.WithQueryTimeout(conf.LookupTimeout))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoreFirestore:
		s, err := firestore.Open(ctx, firestore.Config{
			ProjectID:       conf.FirestoreProject,
			CredentialsFile: conf.FirestoreCredentials,
			QueryTimeout:    conf.LookupTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s := memory.New()
		if conf.BootstrapAdmin != "" {
			s.PutMembership(auth.MembershipRecord{
				Email:       strings.ToLower(strings.TrimSpace(conf.BootstrapAdmin)),
				Role:        string(auth.RoleAdmin),
				DisplayName: "Administrator",
				Active:      true,
			})
		}
		return s, func() {}, nil
	}
}
