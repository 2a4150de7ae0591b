package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fractionball.org/internal/auth"
	"fractionball.org/internal/moderation"
	"fractionball.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and session context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if sess, ok := auth.SessionFromContext(ctx); ok {
		entry["actor"] = sess.Email
	}
	if role, ok := auth.RoleFromContext(ctx); ok {
		entry["actor_role"] = string(role)
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// GateDecision is an auth.DecisionHook that records every sign-in outcome.
func GateDecision(ctx context.Context, policy auth.Policy, id auth.Identity, d auth.Decision) {
	fields := map[string]any{
		"policy":   string(policy),
		"email":    id.Email,
		"provider": id.Provider,
		"admitted": d.Admitted,
		"reason":   string(d.Reason),
	}
	if d.Admitted {
		fields["role"] = string(d.Role)
	}
	if d.Err != nil {
		fields["error"] = d.Err.Error()
	}
	_ = LogEvent(ctx, "auth.gate.decision", fields)
}

// ModerationAction is a moderation.Observer that records applied actions.
func ModerationAction(ctx context.Context, action moderation.Action, actorID string, post moderation.Post) {
	_ = LogEvent(ctx, "moderation."+string(action), map[string]any{
		"post_id": post.ID,
		"actor":   actorID,
		"status":  string(post.Status),
		"pinned":  post.IsPinned,
	})
}
