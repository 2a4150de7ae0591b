package pg

import (
	"context"

	"fractionball.org/internal/siteconfig"
)

var _ siteconfig.Store = (*Store)(nil)

func (s *Store) ListEntries(ctx context.Context) ([]siteconfig.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		select key, value, description, data_type, updated_at
		from site_config
		order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []siteconfig.Entry
	for rows.Next() {
		var (
			e  siteconfig.Entry
			dt string
		)
		if err := rows.Scan(&e.Key, &e.Value, &e.Description, &dt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.DataType = siteconfig.DataType(dt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) PutEntry(ctx context.Context, e siteconfig.Entry) (siteconfig.Entry, error) {
	if s.db == nil {
		return siteconfig.Entry{}, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		insert into site_config (key, value, description, data_type, updated_at)
		values ($1, $2, $3, $4, $5)
		on conflict (key) do update
		set value = excluded.value,
		    description = excluded.description,
		    data_type = excluded.data_type,
		    updated_at = excluded.updated_at
	`, e.Key, e.Value, e.Description, string(e.DataType), e.UpdatedAt)
	if err != nil {
		return siteconfig.Entry{}, err
	}
	return e, nil
}
