// Package sqlitestore provides a SQLite-backed pie ledger, the default store
// for single-host deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/susu3304/piebot/internal/pie"
)

const schema = `
CREATE TABLE IF NOT EXISTS pies (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	thread_token TEXT NOT NULL UNIQUE,
	declared_value TEXT NOT NULL,
	settled INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pies_open ON pies(settled, created_at);

CREATE TABLE IF NOT EXISTS pie_slices (
	id TEXT PRIMARY KEY,
	pie_id TEXT NOT NULL REFERENCES pies(id) ON DELETE CASCADE,
	claimant TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pie_slices_pie_id ON pie_slices(pie_id, created_at);

CREATE TABLE IF NOT EXISTS pie_settlements (
	pie_id TEXT PRIMARY KEY,
	claimant TEXT NOT NULL,
	total TEXT NOT NULL,
	slice_count INTEGER NOT NULL,
	average TEXT NOT NULL,
	percentage TEXT NOT NULL,
	settled_at INTEGER NOT NULL
);
`

var _ pie.Store = (*Store)(nil)

// Store persists the ledger in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// modernc.org/sqlite applies connection pragmas only in the _pragma form.
const dsnParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"

// Open opens the database at path and creates the ledger tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	sqlDB, err := sql.Open("sqlite", cleanPath+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time within the process; busy_timeout covers other
	// processes sharing the file.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) InsertPie(ctx context.Context, p *pie.Pie) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pies (id, owner, channel_id, thread_token, declared_value, settled, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		p.ID, p.Owner, p.Channel, string(p.Token), p.DeclaredValue.String(), toMillis(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pie.ErrPieExists
		}
		return fmt.Errorf("insert pie: %w", err)
	}
	return nil
}

const pieColumns = `id, owner, channel_id, thread_token, declared_value, settled, created_at`

func (s *Store) PieByID(ctx context.Context, id string) (*pie.Pie, error) {
	return scanPie(s.sqlDB.QueryRowContext(ctx, `SELECT `+pieColumns+` FROM pies WHERE id = ?`, id))
}

func (s *Store) PieByToken(ctx context.Context, token pie.Token) (*pie.Pie, error) {
	return scanPie(s.sqlDB.QueryRowContext(ctx, `SELECT `+pieColumns+` FROM pies WHERE thread_token = ?`, string(token)))
}

func (s *Store) OpenPies(ctx context.Context) ([]*pie.Pie, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+pieColumns+` FROM pies WHERE settled = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list open pies: %w", err)
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

// InsertSlice inserts only while the pie row is still open; the check and
// the write are one statement.
func (s *Store) InsertSlice(ctx context.Context, sl *pie.Slice) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pie_slices (id, pie_id, claimant, value, created_at)
		 SELECT ?, id, ?, ?, ? FROM pies WHERE id = ? AND settled = 0`,
		sl.ID, sl.Claimant, sl.Value.String(), toMillis(sl.CreatedAt), sl.PieID,
	)
	if err != nil {
		return fmt.Errorf("insert slice: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert slice: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.PieByID(ctx, sl.PieID); err != nil {
		return err
	}
	return pie.ErrPieAlreadySettled
}

func (s *Store) SlicesByPie(ctx context.Context, pieID string) ([]*pie.Slice, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, pie_id, claimant, value, created_at FROM pie_slices WHERE pie_id = ? ORDER BY created_at, id`,
		pieID,
	)
	if err != nil {
		return nil, fmt.Errorf("list slices: %w", err)
	}
	defer rows.Close()

	var out []*pie.Slice
	for rows.Next() {
		var (
			sl      pie.Slice
			value   string
			created int64
		)
		if err := rows.Scan(&sl.ID, &sl.PieID, &sl.Claimant, &value, &created); err != nil {
			return nil, fmt.Errorf("scan slice: %w", err)
		}
		if sl.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("slice %s value: %w", sl.ID, err)
		}
		sl.CreatedAt = fromMillis(created)
		out = append(out, &sl)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSettlement(ctx context.Context, st *pie.Settlement) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pie_settlements (pie_id, claimant, total, slice_count, average, percentage, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pie_id) DO UPDATE SET
			claimant = excluded.claimant,
			total = excluded.total,
			slice_count = excluded.slice_count,
			average = excluded.average,
			percentage = excluded.percentage,
			settled_at = excluded.settled_at`,
		st.PieID, st.Claimant, st.Total.String(), st.SliceCount, st.Average.String(), st.Percentage.String(), toMillis(st.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("upsert settlement: %w", err)
	}
	return nil
}

func (s *Store) Settlements(ctx context.Context) ([]*pie.Settlement, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT pie_id, claimant, total, slice_count, average, percentage, settled_at FROM pie_settlements ORDER BY pie_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []*pie.Settlement
	for rows.Next() {
		var (
			st                         pie.Settlement
			total, average, percentage string
			settledAt                  int64
		)
		if err := rows.Scan(&st.PieID, &st.Claimant, &total, &st.SliceCount, &average, &percentage, &settledAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		if st.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("settlement %s total: %w", st.PieID, err)
		}
		if st.Average, err = decimal.NewFromString(average); err != nil {
			return nil, fmt.Errorf("settlement %s average: %w", st.PieID, err)
		}
		if st.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("settlement %s percentage: %w", st.PieID, err)
		}
		st.SettledAt = fromMillis(settledAt)
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *Store) MarkSettled(ctx context.Context, pieID string) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE pies SET settled = 1 WHERE id = ? AND settled = 0`, pieID)
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.PieByID(ctx, pieID); err != nil {
		return err
	}
	return pie.ErrPieAlreadySettled
}

func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"pie_settlements", "pie_slices", "pies"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPie(row rowScanner) (*pie.Pie, error) {
	var (
		p       pie.Pie
		token   string
		value   string
		settled int
		created int64
	)
	if err := row.Scan(&p.ID, &p.Owner, &p.Channel, &token, &value, &settled, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pie.ErrPieNotFound
		}
		return nil, fmt.Errorf("scan pie: %w", err)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("pie %s declared value: %w", p.ID, err)
	}
	p.Token = pie.Token(token)
	p.DeclaredValue = d
	p.Settled = settled != 0
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
