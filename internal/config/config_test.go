package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"fractionball.org/internal/auth"
)

func TestLoadDefaults(t *testing.T) {
	conf, err := LoadFrom(map[string]string{"FRACTIONBALL_SESSION_SECRET": "s3cret"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if conf.HttpAddr != ":8080" || conf.Store != StoreMemory {
		t.Fatalf("unexpected defaults %+v", conf)
	}
	if conf.GatePolicy != "admin_only" || conf.GateFailureMode != "fail_closed" {
		t.Fatalf("gate must default to admin_only/fail_closed, got %s/%s", conf.GatePolicy, conf.GateFailureMode)
	}
	if conf.SessionTTL != 12*time.Hour || conf.LookupTimeout != 5*time.Second {
		t.Fatalf("unexpected durations %v %v", conf.SessionTTL, conf.LookupTimeout)
	}
	if conf.GoogleEnabled() {
		t.Fatalf("google sign-in should be disabled without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	conf, err := LoadFrom(map[string]string{
		"FRACTIONBALL_SESSION_SECRET":    "s3cret",
		"FRACTIONBALL_STORE":             "postgres",
		"FRACTIONBALL_PG_DSN":            "postgres://localhost/fb",
		"FRACTIONBALL_GATE_POLICY":       "default_role",
		"FRACTIONBALL_GATE_DEFAULT_ROLE": "viewer",
		"FRACTIONBALL_GATE_FAILURE_MODE": "fail_open",
		"FRACTIONBALL_SESSION_TTL":       "30m",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if conf.Store != StorePostgres || conf.SessionTTL != 30*time.Minute {
		t.Fatalf("overrides not applied: %+v", conf)
	}
	if got := len(conf.GateOptions()); got != 3 {
		t.Fatalf("expected 3 gate options, got %d", got)
	}
	if _, err := auth.NewGate(stubStore{}, conf.GateOptions()...); err != nil {
		t.Fatalf("gate from config: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":       {},
		"admin only fail open": {"FRACTIONBALL_SESSION_SECRET": "x", "FRACTIONBALL_GATE_FAILURE_MODE": "fail_open"},
		"unknown policy":       {"FRACTIONBALL_SESSION_SECRET": "x", "FRACTIONBALL_GATE_POLICY": "everyone"},
		"unknown store":        {"FRACTIONBALL_SESSION_SECRET": "x", "FRACTIONBALL_STORE": "redis"},
		"postgres without dsn": {"FRACTIONBALL_SESSION_SECRET": "x", "FRACTIONBALL_STORE": "postgres"},
		"bad default role":     {"FRACTIONBALL_SESSION_SECRET": "x", "FRACTIONBALL_GATE_DEFAULT_ROLE": "Teacher"},
		"bad trusted proxy":    {"FRACTIONBALL_SESSION_SECRET": "x", "FRACTIONBALL_TRUSTED_PROXIES": "10.0.0.0/8,lb.internal"},
	}
	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFrom(environ); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTrustedProxyPrefixes(t *testing.T) {
	conf, err := LoadFrom(map[string]string{
		"FRACTIONBALL_SESSION_SECRET":  "x",
		"FRACTIONBALL_TRUSTED_PROXIES": "10.1.2.3/8, 192.168.0.7",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	prefixes, err := conf.TrustedProxyPrefixes()
	if err != nil {
		t.Fatalf("TrustedProxyPrefixes: %v", err)
	}
	if len(prefixes) != 2 || prefixes[0].String() != "10.0.0.0/8" || prefixes[1].String() != "192.168.0.7/32" {
		t.Fatalf("unexpected prefixes %v", prefixes)
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	err := Config{Store: "x", GatePolicy: "admin_only", GateDefaultRole: "teacher", GateFailureMode: "fail_closed"}.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"unsupported store", "SessionSecret", "SessionTTL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

type stubStore struct{}

func (stubStore) MembershipsByEmail(context.Context, string) ([]auth.MembershipRecord, error) {
	return nil, nil
}
