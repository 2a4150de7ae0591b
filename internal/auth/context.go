package auth

import "context"

type sessionContextKey struct{}

// ContextWithSession attaches the authenticated session to the context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the authenticated session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// RoleFromContext returns the role of the session stored in ctx.
func RoleFromContext(ctx context.Context) (Role, bool) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return sess.Role()
}
