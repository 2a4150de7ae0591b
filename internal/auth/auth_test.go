package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubMembershipStore struct {
	calls   int
	emails  []string
	records []MembershipRecord
	err     error
}

func (s *stubMembershipStore) MembershipsByEmail(_ context.Context, email string) ([]MembershipRecord, error) {
	s.calls++
	s.emails = append(s.emails, email)
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func newTestGate(t *testing.T, store MembershipStore, opts ...GateOption) *Gate {
	t.Helper()
	g, err := NewGate(store, opts...)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestGateDeniesMissingEmailWithoutLookup(t *testing.T) {
	for _, policy := range []Policy{PolicyAdminOnly, PolicyOpenAdmit, PolicyDefaultRole} {
		for _, email := range []string{"", "   "} {
			store := &stubMembershipStore{records: []MembershipRecord{{Email: email, Role: "admin"}}}
			opts := []GateOption{WithPolicy(policy)}
			if policy != PolicyAdminOnly {
				opts = append(opts, WithFailureMode(FailOpen))
			}
			g := newTestGate(t, store, opts...)
			sess := NewSession("s1", email)

			d := g.Evaluate(context.Background(), Identity{Email: email}, sess)
			if d.Admitted {
				t.Fatalf("%s: expected deny for email %q", policy, email)
			}
			if d.Reason != ReasonMissingIdentity {
				t.Fatalf("%s: unexpected reason %s", policy, d.Reason)
			}
			if store.calls != 0 {
				t.Fatalf("%s: store queried %d times", policy, store.calls)
			}
			if _, ok := sess.Role(); ok {
				t.Fatalf("%s: role set on denied session", policy)
			}
		}
	}
}

func TestAdminOnlyAdmitsAdmin(t *testing.T) {
	store := &stubMembershipStore{records: []MembershipRecord{{Email: "a@x.com", Role: "admin"}}}
	g := newTestGate(t, store)
	sess := NewSession("s1", "a@x.com")

	d := g.Evaluate(context.Background(), Identity{Email: "a@x.com"}, sess)
	if !d.Admitted || d.Role != RoleAdmin {
		t.Fatalf("expected admit as admin, got %+v", d)
	}
	role, ok := sess.Role()
	if !ok || role != RoleAdmin {
		t.Fatalf("session role = %q, %v", role, ok)
	}
	if len(store.emails) != 1 || store.emails[0] != "a@x.com" {
		t.Fatalf("unexpected lookups: %v", store.emails)
	}
}

func TestAdminOnlyDeniesOtherOutcomes(t *testing.T) {
	cases := map[string]struct {
		store  *stubMembershipStore
		reason Reason
	}{
		"non-admin":     {&stubMembershipStore{records: []MembershipRecord{{Role: "teacher"}}}, ReasonNotAdmin},
		"no record":     {&stubMembershipStore{}, ReasonNoRecord},
		"lookup failed": {&stubMembershipStore{err: errors.New("unavailable")}, ReasonLookupFailed},
		"unknown role":  {&stubMembershipStore{records: []MembershipRecord{{Role: "superuser"}}}, ReasonUnknownRole},
		"case mismatch": {&stubMembershipStore{records: []MembershipRecord{{Role: "Admin"}}}, ReasonUnknownRole},
	}
	for name, tc := range cases {
		g := newTestGate(t, tc.store, WithPolicy(PolicyAdminOnly))
		sess := NewSession("s1", "b@x.com")
		d := g.Evaluate(context.Background(), Identity{Email: "b@x.com"}, sess)
		if d.Admitted {
			t.Fatalf("%s: expected deny", name)
		}
		if d.Reason != tc.reason {
			t.Fatalf("%s: reason = %s, want %s", name, d.Reason, tc.reason)
		}
		if _, ok := sess.Role(); ok {
			t.Fatalf("%s: role set on denied session", name)
		}
	}
}

func TestOpenAdmitDefaultsToViewer(t *testing.T) {
	g := newTestGate(t, &stubMembershipStore{}, WithPolicy(PolicyOpenAdmit), WithFailureMode(FailOpen))
	sess := NewSession("s1", "b@x.com")

	d := g.Evaluate(context.Background(), Identity{Email: "b@x.com"}, sess)
	if !d.Admitted || d.Role != RoleViewer || d.Reason != ReasonNoRecord {
		t.Fatalf("unexpected decision %+v", d)
	}
	if role, _ := sess.Role(); role != RoleViewer {
		t.Fatalf("session role = %q", role)
	}
}

func TestOpenAdmitFoldsRoleCase(t *testing.T) {
	store := &stubMembershipStore{records: []MembershipRecord{{Role: " Content_Manager "}}}
	g := newTestGate(t, store, WithPolicy(PolicyOpenAdmit), WithFailureMode(FailOpen))
	sess := NewSession("s1", "c@x.com")

	d := g.Evaluate(context.Background(), Identity{Email: "c@x.com"}, sess)
	if !d.Admitted || d.Role != RoleContentManager {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestDefaultRolePolicy(t *testing.T) {
	g := newTestGate(t, &stubMembershipStore{}, WithPolicy(PolicyDefaultRole), WithDefaultRole(RoleTeacher), WithFailureMode(FailOpen))
	sess := NewSession("s1", "d@x.com")
	d := g.Evaluate(context.Background(), Identity{Email: "d@x.com"}, sess)
	if !d.Admitted || d.Role != RoleTeacher {
		t.Fatalf("unexpected decision %+v", d)
	}

	// Stored roles are compared exactly; an unrecognised token drops to viewer.
	store := &stubMembershipStore{records: []MembershipRecord{{Role: "Admin"}}}
	g = newTestGate(t, store, WithPolicy(PolicyDefaultRole), WithFailureMode(FailOpen))
	sess = NewSession("s2", "d@x.com")
	d = g.Evaluate(context.Background(), Identity{Email: "d@x.com"}, sess)
	if !d.Admitted || d.Role != RoleViewer || d.Reason != ReasonUnknownRole {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestLookupFailureFallbacks(t *testing.T) {
	failing := &stubMembershipStore{err: errors.New("store unreachable")}

	g := newTestGate(t, failing, WithPolicy(PolicyOpenAdmit), WithFailureMode(FailClosed))
	d := g.Evaluate(context.Background(), Identity{Email: "e@x.com"}, NewSession("s1", "e@x.com"))
	if d.Admitted || d.Reason != ReasonLookupFailed || d.Err == nil {
		t.Fatalf("expected fail closed, got %+v", d)
	}

	g = newTestGate(t, failing, WithPolicy(PolicyOpenAdmit), WithFailureMode(FailOpen))
	sess := NewSession("s2", "e@x.com")
	d = g.Evaluate(context.Background(), Identity{Email: "e@x.com"}, sess)
	if !d.Admitted || d.Role != RoleViewer {
		t.Fatalf("expected fail open as viewer, got %+v", d)
	}
	if role, ok := sess.Role(); !ok || role != RoleViewer {
		t.Fatalf("fail open left session role %q, %v", role, ok)
	}
}

func TestAdminOnlyRejectsFailOpen(t *testing.T) {
	if _, err := NewGate(&stubMembershipStore{}, WithPolicy(PolicyAdminOnly), WithFailureMode(FailOpen)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := NewGate(nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestGateUsesFirstOfAmbiguousRecords(t *testing.T) {
	store := &stubMembershipStore{records: []MembershipRecord{
		{Email: "f@x.com", Role: "admin"},
		{Email: "f@x.com", Role: "viewer"},
	}}
	g := newTestGate(t, store)
	d := g.Evaluate(context.Background(), Identity{Email: "f@x.com"}, NewSession("s1", "f@x.com"))
	if !d.Admitted || d.Role != RoleAdmin {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestGateIgnoresIdentityRoleClaims(t *testing.T) {
	g := newTestGate(t, &stubMembershipStore{records: []MembershipRecord{{Role: "viewer"}}})
	id := Identity{Email: "g@x.com", Claims: map[string]any{"role": "admin"}}
	d := g.Evaluate(context.Background(), id, NewSession("s1", "g@x.com"))
	if d.Admitted {
		t.Fatalf("identity claim must not grant admin: %+v", d)
	}
}

func TestGateRejectsReusedSession(t *testing.T) {
	g := newTestGate(t, &stubMembershipStore{records: []MembershipRecord{{Role: "admin"}}})
	sess := NewSession("s1", "h@x.com")
	if d := g.Evaluate(context.Background(), Identity{Email: "h@x.com"}, sess); !d.Admitted {
		t.Fatalf("first evaluation denied: %+v", d)
	}
	d := g.Evaluate(context.Background(), Identity{Email: "h@x.com"}, sess)
	if d.Admitted || !errors.Is(d.Err, ErrRoleAlreadySet) {
		t.Fatalf("expected second evaluation to be denied, got %+v", d)
	}
}

func TestGateDecisionHook(t *testing.T) {
	var seen []Reason
	hook := func(_ context.Context, p Policy, _ Identity, d Decision) {
		if p != PolicyAdminOnly {
			t.Fatalf("unexpected policy %s", p)
		}
		seen = append(seen, d.Reason)
	}
	g := newTestGate(t, &stubMembershipStore{}, WithDecisionHook(hook))
	g.Evaluate(context.Background(), Identity{}, NewSession("s1", ""))
	g.Evaluate(context.Background(), Identity{Email: "i@x.com"}, NewSession("s2", "i@x.com"))
	if len(seen) != 2 || seen[0] != ReasonMissingIdentity || seen[1] != ReasonNoRecord {
		t.Fatalf("unexpected hook reasons: %v", seen)
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("teacher", false); err != nil || r != RoleTeacher {
		t.Fatalf("ParseRole exact: %v %v", r, err)
	}
	if _, err := ParseRole("Teacher", false); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if r, err := ParseRole(" TEACHER", true); err != nil || r != RoleTeacher {
		t.Fatalf("ParseRole folded: %v %v", r, err)
	}
	if !(RoleAdmin.Rank() > RoleContentManager.Rank() && RoleTeacher.Rank() > RoleViewer.Rank()) {
		t.Fatalf("role ranks out of order")
	}
}

func TestPermissionsFor(t *testing.T) {
	admin := NewSession("s1", "a@x.com")
	_ = admin.SetRole(RoleAdmin)
	teacher := NewSession("s2", "t@x.com")
	_ = teacher.SetRole(RoleTeacher)

	if p := PermissionsFor(admin, CollectionSiteConfig); p != full {
		t.Fatalf("admin siteConfig = %+v", p)
	}
	if p := PermissionsFor(teacher, CollectionUsers); p != none {
		t.Fatalf("teacher users = %+v", p)
	}
	if p := PermissionsFor(teacher, CollectionCommunityPosts); !p.Read || !p.Create || p.Edit || p.Delete {
		t.Fatalf("teacher communityPosts = %+v", p)
	}
	if p := PermissionsFor(NewSession("s3", "x@x.com"), CollectionActivities); p != none {
		t.Fatalf("roleless session = %+v", p)
	}
	if p := PermissionsFor(nil, CollectionActivities); p != none {
		t.Fatalf("nil session = %+v", p)
	}
	if len(PermissionTable(admin)) != len(Collections()) {
		t.Fatalf("permission table incomplete")
	}
}

func TestPermissionsByRole(t *testing.T) {
	postCreate := Permissions{Read: true, Create: true}
	want := map[Role]map[Collection]Permissions{
		RoleAdmin: {
			CollectionActivities: full, CollectionCommunityPosts: full,
			CollectionUsers: full, CollectionSiteConfig: full,
		},
		RoleContentManager: {
			CollectionActivities: full, CollectionCommunityPosts: full,
			CollectionUsers: none, CollectionSiteConfig: none,
		},
		RoleTeacher: {
			CollectionActivities: readOnly, CollectionCommunityPosts: postCreate,
			CollectionUsers: none, CollectionSiteConfig: none,
		},
		RoleViewer: {
			CollectionActivities: readOnly, CollectionCommunityPosts: readOnly,
			CollectionUsers: none, CollectionSiteConfig: none,
		},
	}
	for role, table := range want {
		sess := NewSession("s-"+string(role), "x@x.com")
		if err := sess.SetRole(role); err != nil {
			t.Fatalf("SetRole(%s): %v", role, err)
		}
		for c, p := range table {
			if got := PermissionsFor(sess, c); got != p {
				t.Fatalf("%s on %s = %+v, want %+v", role, c, got, p)
			}
		}
		if got, act := PermissionsFor(sess, CollectionFAQs), PermissionsFor(sess, CollectionActivities); got != act {
			t.Fatalf("%s: faqs %+v differs from activities %+v", role, got, act)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	sess := NewSession("sess-1", "a@x.com")
	if _, err := issuer.Issue(sess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected roleless session to be rejected, got %v", err)
	}
	_ = sess.SetRole(RoleContentManager)

	token, err := issuer.Issue(sess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parsed, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.ID != "sess-1" || parsed.Email != "a@x.com" {
		t.Fatalf("unexpected session %+v", parsed)
	}
	if role, _ := parsed.Role(); role != RoleContentManager {
		t.Fatalf("unexpected role %q", role)
	}

	other, _ := NewTokenIssuer("other-secret", time.Hour)
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Minute)
	start := time.Now()
	issuer.now = func() time.Time { return start }

	sess := NewSession("sess-2", "a@x.com")
	_ = sess.SetRole(RoleViewer)
	token, err := issuer.Issue(sess)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	issuer.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatalf("unexpected session in empty context")
	}
	sess := NewSession("s1", "a@x.com")
	_ = sess.SetRole(RoleTeacher)
	ctx := ContextWithSession(context.Background(), sess)
	if role, ok := RoleFromContext(ctx); !ok || role != RoleTeacher {
		t.Fatalf("RoleFromContext = %q, %v", role, ok)
	}
	if _, ok := RoleFromContext(ContextWithSession(context.Background(), NewSession("s2", "b@x.com"))); ok {
		t.Fatalf("unassigned session reported a role")
	}
}
