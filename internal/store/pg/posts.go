package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fractionball.org/internal/moderation"
)

var _ moderation.PostStore = (*Store)(nil)

const postColumns = `id, author_id, title, status, is_pinned, is_flagged, flag_reason, flagged_at, flagged_by, moderated_at, moderated_by, moderation_notes, updated_at`

func (s *Store) Post(ctx context.Context, id string) (moderation.Post, error) {
	if s.db == nil {
		return moderation.Post{}, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `select `+postColumns+` from community_posts where id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.Post{}, moderation.ErrNotFound
	}
	return p, err
}

// ApplyPatch writes every non-nil patch field in one update statement.
func (s *Store) ApplyPatch(ctx context.Context, id string, p moderation.Patch) (moderation.Post, error) {
	if s.db == nil {
		return moderation.Post{}, errNoDB
	}
	if p.Empty() {
		return s.Post(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.IsFlagged != nil {
		set("is_flagged", *p.IsFlagged)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.FlaggedAt != nil {
		set("flagged_at", *p.FlaggedAt)
	}
	if p.FlaggedBy != nil {
		set("flagged_by", *p.FlaggedBy)
	}
	if p.FlagReason != nil {
		set("flag_reason", *p.FlagReason)
	}
	if p.ModeratedAt != nil {
		set("moderated_at", *p.ModeratedAt)
	}
	if p.ModeratedBy != nil {
		set("moderated_by", *p.ModeratedBy)
	}
	if p.ModerationNotes != nil {
		set("moderation_notes", *p.ModerationNotes)
	}
	if p.IsPinned != nil {
		set("is_pinned", *p.IsPinned)
	}
	args = append(args, id)
	query := fmt.Sprintf(`update community_posts set %s, updated_at = now() where id = $%d returning %s`,
		strings.Join(sets, ", "), len(args), postColumns)

	ctx, cancel := s.bound(ctx)
	defer cancel()
	post, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.Post{}, moderation.ErrNotFound
	}
	return post, err
}

func scanPost(row scanner) (moderation.Post, error) {
	var (
		p                                     moderation.Post
		status                                string
		flagReason, flaggedBy, modBy, modNote sql.NullString
		flaggedAt, moderatedAt                sql.NullTime
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &status, &p.IsPinned, &p.IsFlagged,
		&flagReason, &flaggedAt, &flaggedBy, &moderatedAt, &modBy, &modNote, &p.UpdatedAt)
	if err != nil {
		return moderation.Post{}, err
	}
	p.Status = moderation.Status(status)
	p.FlagReason = flagReason.String
	p.FlaggedBy = flaggedBy.String
	p.ModeratedBy = modBy.String
	p.ModerationNotes = modNote.String
	if flaggedAt.Valid {
		p.FlaggedAt = flaggedAt.Time
	}
	if moderatedAt.Valid {
		p.ModeratedAt = moderatedAt.Time
	}
	return p, nil
}
