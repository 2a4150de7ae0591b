// Package config loads the service configuration from FRACTIONBALL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"fractionball.org/internal/auth"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

type Config struct {
	HttpAddr string `envDefault:":8080"`
	GrpcAddr string `envDefault:":9090"`

	// BaseURL is the externally visible origin used for OAuth redirects.
	BaseURL string `envDefault:"http://localhost:8080"`

	Store                string `envDefault:"memory"`
	PgDSN                string
	FirestoreProject     string
	FirestoreCredentials string
	LookupTimeout        time.Duration `envDefault:"5s"`

	SessionSecret string
	SessionTTL    time.Duration `envDefault:"12h"`
	SecureCookies bool          `envDefault:"true"`

	GatePolicy      string `envDefault:"admin_only"`
	GateDefaultRole string `envDefault:"teacher"`
	GateFailureMode string `envDefault:"fail_closed"`

	GoogleClientID     string
	GoogleClientSecret string

	// Sign-in routes are limited per client address.
	RateBurst  int `envDefault:"10"`
	RatePerSec int `envDefault:"5"`
	// TrustedProxies are the CIDRs or addresses of load balancers whose
	// X-Forwarded-For header names the client. Empty trusts no one.
	TrustedProxies []string

	MaxBodyBytes int64 `envDefault:"1048576"`

	// BootstrapAdmin seeds one admin into the memory store so a fresh dev
	// deployment can be signed into.
	BootstrapAdmin string
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the given environment map instead of the process
// environment when environ is non-nil.
func LoadFrom(environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: "FRACTIONBALL_", UseFieldNameByDefault: true}
	if environ != nil {
		opts.Environment = environ
	}
	conf, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.PgDSN) == "" {
			errs = append(errs, errors.New("PgDSN is required for the postgres store"))
		}
	case StoreFirestore:
		if strings.TrimSpace(c.FirestoreProject) == "" {
			errs = append(errs, errors.New("FirestoreProject is required for the firestore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store %q", c.Store))
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		errs = append(errs, errors.New("SessionSecret is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SessionTTL must be positive"))
	}
	policy, err := auth.ParsePolicy(c.GatePolicy)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := auth.ParseRole(c.GateDefaultRole, false); err != nil {
		errs = append(errs, fmt.Errorf("GateDefaultRole: %w", err))
	}
	mode, err := auth.ParseFailureMode(c.GateFailureMode)
	if err != nil {
		errs = append(errs, err)
	}
	if policy == auth.PolicyAdminOnly && mode == auth.FailOpen {
		errs = append(errs, errors.New("admin_only policy must fail closed"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("RateBurst and RatePerSec must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MaxBodyBytes must be positive"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single-host
// prefix.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TrustedProxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TrustedProxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// GateOptions translates the gate settings into auth.GateOption values.
// Call only on a validated Config.
func (c Config) GateOptions() []auth.GateOption {
	policy, _ := auth.ParsePolicy(c.GatePolicy)
	role, _ := auth.ParseRole(c.GateDefaultRole, false)
	mode, _ := auth.ParseFailureMode(c.GateFailureMode)
	return []auth.GateOption{
		auth.WithPolicy(policy),
		auth.WithDefaultRole(role),
		auth.WithFailureMode(mode),
	}
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
