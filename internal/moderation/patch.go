// Package moderation computes and applies state changes for community posts.
package moderation

import "time"

// Status is the lifecycle state of a community post.
type Status string

const (
	StatusActive  Status = "active"
	StatusFlagged Status = "flagged"
	StatusDeleted Status = "deleted"
)

const (
	defaultApproveNotes = "Approved by moderator"
	defaultDeleteNotes  = "Deleted by moderator"
)

// Patch is a partial post update. Nil fields are left untouched.
type Patch struct {
	IsFlagged       *bool      `json:"is_flagged,omitempty"`
	Status          *Status    `json:"status,omitempty"`
	FlaggedAt       *time.Time `json:"flagged_at,omitempty"`
	FlaggedBy       *string    `json:"flagged_by,omitempty"`
	FlagReason      *string    `json:"flag_reason,omitempty"`
	ModeratedAt     *time.Time `json:"moderated_at,omitempty"`
	ModeratedBy     *string    `json:"moderated_by,omitempty"`
	ModerationNotes *string    `json:"moderation_notes,omitempty"`
	IsPinned        *bool      `json:"is_pinned,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Flag marks a post for review. Flagging an already flagged post yields the
// same flag fields; only the timestamp moves.
func Flag(now time.Time, actorID, reason string) Patch {
	p := Patch{
		IsFlagged: ptr(true),
		Status:    ptr(StatusFlagged),
		FlaggedAt: ptr(now.UTC()),
	}
	if actorID != "" {
		p.FlaggedBy = ptr(actorID)
	}
	if reason != "" {
		p.FlagReason = ptr(reason)
	}
	return p
}

// Approve clears the flag and reactivates the post.
func Approve(now time.Time, moderatorID, notes string) Patch {
	if notes == "" {
		notes = defaultApproveNotes
	}
	p := Patch{
		IsFlagged:       ptr(false),
		Status:          ptr(StatusActive),
		ModeratedAt:     ptr(now.UTC()),
		ModerationNotes: ptr(notes),
	}
	if moderatorID != "" {
		p.ModeratedBy = ptr(moderatorID)
	}
	return p
}

// SoftDelete hides the post without removing the record.
func SoftDelete(now time.Time, moderatorID, reason string) Patch {
	if reason == "" {
		reason = defaultDeleteNotes
	}
	p := Patch{
		Status:          ptr(StatusDeleted),
		ModeratedAt:     ptr(now.UTC()),
		ModerationNotes: ptr(reason),
	}
	if moderatorID != "" {
		p.ModeratedBy = ptr(moderatorID)
	}
	return p
}

// TogglePin inverts the pinned flag.
func TogglePin(isPinned bool) Patch {
	return Patch{IsPinned: ptr(!isPinned)}
}

// Apply returns post with the patch fields written over it.
func (p Patch) Apply(post Post) Post {
	if p.IsFlagged != nil {
		post.IsFlagged = *p.IsFlagged
	}
	if p.Status != nil {
		post.Status = *p.Status
	}
	if p.FlaggedAt != nil {
		post.FlaggedAt = *p.FlaggedAt
	}
	if p.FlaggedBy != nil {
		post.FlaggedBy = *p.FlaggedBy
	}
	if p.FlagReason != nil {
		post.FlagReason = *p.FlagReason
	}
	if p.ModeratedAt != nil {
		post.ModeratedAt = *p.ModeratedAt
	}
	if p.ModeratedBy != nil {
		post.ModeratedBy = *p.ModeratedBy
	}
	if p.ModerationNotes != nil {
		post.ModerationNotes = *p.ModerationNotes
	}
	if p.IsPinned != nil {
		post.IsPinned = *p.IsPinned
	}
	return post
}

func ptr[T any](v T) *T { return &v }
