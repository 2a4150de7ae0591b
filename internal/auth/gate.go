package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Policy selects how the gate turns a membership lookup into a decision.
// A deployment runs exactly one policy.
type Policy string

const (
	// PolicyAdminOnly admits only identities whose record carries the admin role.
	PolicyAdminOnly Policy = "admin_only"
	// PolicyOpenAdmit admits every identity; unknown identities get the viewer role.
	PolicyOpenAdmit Policy = "open_admit"
	// PolicyDefaultRole admits every identity; unknown identities get the configured default role.
	PolicyDefaultRole Policy = "default_role"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAdminOnly, PolicyOpenAdmit, PolicyDefaultRole:
		return p, nil
	}
	return "", fmt.Errorf("%w: unsupported gate policy %q", ErrInvalidInput, s)
}

// foldsCase reports whether stored roles are lower-cased before validation.
func (p Policy) foldsCase() bool { return p == PolicyOpenAdmit }

// FailureMode decides the outcome when the membership lookup itself fails.
type FailureMode string

const (
	// FailClosed denies the sign-in.
	FailClosed FailureMode = "fail_closed"
	// FailOpen admits with the viewer role.
	FailOpen FailureMode = "fail_open"
)

// ParseFailureMode validates a failure mode name.
func ParseFailureMode(s string) (FailureMode, error) {
	switch m := FailureMode(strings.ToLower(strings.TrimSpace(s))); m {
	case FailClosed, FailOpen:
		return m, nil
	}
	return "", fmt.Errorf("%w: unsupported failure mode %q", ErrInvalidInput, s)
}

// Reason explains a gate decision.
type Reason string

const (
	ReasonAdmitted        Reason = "admitted"
	ReasonMissingIdentity Reason = "missing_identity"
	ReasonNoRecord        Reason = "no_record"
	ReasonNotAdmin        Reason = "not_admin"
	ReasonUnknownRole     Reason = "unknown_role"
	ReasonLookupFailed    Reason = "lookup_failed"
)

// Decision is the terminal outcome of one sign-in attempt.
type Decision struct {
	Admitted bool
	Role     Role
	Reason   Reason
	// Err carries the lookup or validation error behind the reason, if any.
	Err error
}

// DecisionHook observes every decision after it is made.
type DecisionHook func(ctx context.Context, policy Policy, id Identity, d Decision)

// Gate decides whether a freshly authenticated identity may enter the admin
// and attaches the role the rest of the system authorizes against.
type Gate struct {
	store       MembershipStore
	policy      Policy
	defaultRole Role
	failure     FailureMode
	hooks       []DecisionHook
}

// GateOption configures Gate behavior.
type GateOption func(*Gate) error

// WithPolicy selects the decision policy.
func WithPolicy(p Policy) GateOption {
	return func(g *Gate) error {
		if _, err := ParsePolicy(string(p)); err != nil {
			return err
		}
		g.policy = p
		return nil
	}
}

// WithDefaultRole sets the role given to unknown identities under PolicyDefaultRole.
func WithDefaultRole(r Role) GateOption {
	return func(g *Gate) error {
		if !r.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
		}
		g.defaultRole = r
		return nil
	}
}

// WithFailureMode selects the fallback for lookup failures.
func WithFailureMode(m FailureMode) GateOption {
	return func(g *Gate) error {
		if _, err := ParseFailureMode(string(m)); err != nil {
			return err
		}
		g.failure = m
		return nil
	}
}

// WithDecisionHook registers an observer for decisions (metrics, audit).
func WithDecisionHook(h DecisionHook) GateOption {
	return func(g *Gate) error {
		if h != nil {
			g.hooks = append(g.hooks, h)
		}
		return nil
	}
}

// NewGate constructs a Gate. The default is the admin-only policy failing closed.
func NewGate(store MembershipStore, opts ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, errors.New("auth: membership store is required")
	}
	g := &Gate{
		store:       store,
		policy:      PolicyAdminOnly,
		defaultRole: RoleTeacher,
		failure:     FailClosed,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.policy == PolicyAdminOnly && g.failure != FailClosed {
		return nil, fmt.Errorf("%w: admin_only policy must fail closed", ErrInvalidInput)
	}
	return g, nil
}

// Policy returns the configured policy.
func (g *Gate) Policy() Policy { return g.policy }

// Evaluate runs one sign-in attempt. On every admitting path the resolved
// role is written into sess before Evaluate returns; denials leave sess
// untouched. Evaluate never fails: store errors become a decision.
func (g *Gate) Evaluate(ctx context.Context, id Identity, sess *Session) Decision {
	d := g.decide(ctx, id)
	if d.Admitted {
		if sess == nil {
			d = Decision{Reason: d.Reason, Err: errors.New("auth: nil session")}
		} else if err := sess.SetRole(d.Role); err != nil {
			d = Decision{Reason: d.Reason, Err: err}
		}
	}
	for _, h := range g.hooks {
		h(ctx, g.policy, id, d)
	}
	return d
}

func (g *Gate) decide(ctx context.Context, id Identity) Decision {
	if strings.TrimSpace(id.Email) == "" {
		return Decision{Reason: ReasonMissingIdentity}
	}

	records, err := g.store.MembershipsByEmail(ctx, id.Email)
	if err != nil {
		if g.failure == FailOpen {
			return Decision{Admitted: true, Role: RoleViewer, Reason: ReasonLookupFailed, Err: err}
		}
		return Decision{Reason: ReasonLookupFailed, Err: err}
	}

	if len(records) == 0 {
		switch g.policy {
		case PolicyOpenAdmit:
			return Decision{Admitted: true, Role: RoleViewer, Reason: ReasonNoRecord}
		case PolicyDefaultRole:
			return Decision{Admitted: true, Role: g.defaultRole, Reason: ReasonNoRecord}
		default:
			return Decision{Reason: ReasonNoRecord}
		}
	}

	// More than one match is tolerated; only the first record counts.
	role, err := ParseRole(records[0].Role, g.policy.foldsCase())
	if err != nil {
		if g.policy == PolicyAdminOnly {
			return Decision{Reason: ReasonUnknownRole, Err: err}
		}
		return Decision{Admitted: true, Role: RoleViewer, Reason: ReasonUnknownRole, Err: err}
	}

	if g.policy == PolicyAdminOnly && role != RoleAdmin {
		return Decision{Reason: ReasonNotAdmin}
	}
	return Decision{Admitted: true, Role: role, Reason: ReasonAdmitted}
}
