package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/susu3304/piebot/internal/pie"
)

var _ pie.Store = (*DB)(nil)

const pieColumns = `id, owner, channel_id, thread_token, declared_value::text, settled, created_at`

func (db *DB) InsertPie(ctx context.Context, p *pie.Pie) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO pies (id, owner, channel_id, thread_token, declared_value, settled, created_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, FALSE, $6)`,
		p.ID, p.Owner, p.Channel, string(p.Token), p.DeclaredValue.String(), p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return pie.ErrPieExists
		}
		return err
	}
	return nil
}

func (db *DB) PieByID(ctx context.Context, id string) (*pie.Pie, error) {
	return scanPie(db.pool.QueryRow(ctx, `SELECT `+pieColumns+` FROM pies WHERE id = $1`, id))
}

func (db *DB) PieByToken(ctx context.Context, token pie.Token) (*pie.Pie, error) {
	return scanPie(db.pool.QueryRow(ctx, `SELECT `+pieColumns+` FROM pies WHERE thread_token = $1`, string(token)))
}

func (db *DB) OpenPies(ctx context.Context) ([]*pie.Pie, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+pieColumns+` FROM pies WHERE NOT settled ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pie.Pie
	for rows.Next() {
		p, err := scanPie(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertSlice holds a share lock on the pie row, so it either commits before
// MarkSettled takes the row or sees the pie as settled.
func (db *DB) InsertSlice(ctx context.Context, s *pie.Slice) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var settled bool
	if err := tx.QueryRow(ctx, `SELECT settled FROM pies WHERE id = $1 FOR SHARE`, s.PieID).Scan(&settled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pie.ErrPieNotFound
		}
		return err
	}
	if settled {
		return pie.ErrPieAlreadySettled
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO pie_slices (id, pie_id, claimant, value, created_at) VALUES ($1, $2, $3, $4::numeric, $5)`,
		s.ID, s.PieID, s.Claimant, s.Value.String(), s.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *DB) SlicesByPie(ctx context.Context, pieID string) ([]*pie.Slice, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, pie_id, claimant, value::text, created_at FROM pie_slices WHERE pie_id = $1 ORDER BY created_at, id`,
		pieID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pie.Slice
	for rows.Next() {
		var (
			s     pie.Slice
			value string
		)
		if err := rows.Scan(&s.ID, &s.PieID, &s.Claimant, &value, &s.CreatedAt); err != nil {
			return nil, err
		}
		if s.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("slice %s value: %w", s.ID, err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (db *DB) UpsertSettlement(ctx context.Context, s *pie.Settlement) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO pie_settlements (pie_id, claimant, total, slice_count, average, percentage, settled_at)
		 VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6::numeric, $7)
		 ON CONFLICT (pie_id) DO UPDATE
		 SET claimant = EXCLUDED.claimant,
			 total = EXCLUDED.total,
			 slice_count = EXCLUDED.slice_count,
			 average = EXCLUDED.average,
			 percentage = EXCLUDED.percentage,
			 settled_at = EXCLUDED.settled_at`,
		s.PieID, s.Claimant, s.Total.String(), s.SliceCount, s.Average.String(), s.Percentage.String(), s.SettledAt,
	)
	return err
}

func (db *DB) Settlements(ctx context.Context) ([]*pie.Settlement, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT pie_id, claimant, total::text, slice_count, average::text, percentage::text, settled_at
		 FROM pie_settlements ORDER BY pie_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pie.Settlement
	for rows.Next() {
		var (
			s                         pie.Settlement
			total, average, percentage string
		)
		if err := rows.Scan(&s.PieID, &s.Claimant, &total, &s.SliceCount, &average, &percentage, &s.SettledAt); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			decimalField{total, &s.Total},
			decimalField{average, &s.Average},
			decimalField{percentage, &s.Percentage},
		); err != nil {
			return nil, fmt.Errorf("settlement %s: %w", s.PieID, err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (db *DB) MarkSettled(ctx context.Context, pieID string) error {
	ct, err := db.pool.Exec(ctx, `UPDATE pies SET settled = TRUE WHERE id = $1 AND NOT settled`, pieID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pies WHERE id = $1)`, pieID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pie.ErrPieNotFound
	}
	return pie.ErrPieAlreadySettled
}

func (db *DB) Clear(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `TRUNCATE pie_settlements, pie_slices, pies`)
	return err
}

func scanPie(row pgx.Row) (*pie.Pie, error) {
	var (
		p     pie.Pie
		token string
		value string
	)
	if err := row.Scan(&p.ID, &p.Owner, &p.Channel, &token, &value, &p.Settled, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pie.ErrPieNotFound
		}
		return nil, err
	}
	p.Token = pie.Token(token)
	var err error
	if p.DeclaredValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("pie %s declared value: %w", p.ID, err)
	}
	return &p, nil
}

type decimalField struct {
	raw string
	dst *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return err
		}
		*f.dst = d
	}
	return nil
}
