package doctors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/carenav/carenav/engine/domain"
)

const selectDoctors = `SELECT name, specialty, COALESCE(phone, ''), COALESCE(location, ''), experience FROM doctors`

// PostgresStore reads doctors from a Postgres table. Natural order is the
// serial primary key.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and pings the database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("doctors: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("doctors: ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database handle.
func (p *PostgresStore) Close() error { return p.db.Close() }

// Ping checks connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) FetchAll(ctx context.Context) ([]domain.Doctor, error) {
	rows, err := p.db.QueryContext(ctx, selectDoctors+` ORDER BY id`)
	if err != nil {
		return nil, domain.Wrap("doctors.FetchAll", domain.ErrStore, err)
	}
	return scanDoctors("doctors.FetchAll", rows)
}

func (p *PostgresStore) FetchBySpecialty(ctx context.Context, needle string, limit int) ([]domain.Doctor, error) {
	if limit <= 0 {
		limit = domain.DefaultLookupLimit
	}
	q := selectDoctors + ` WHERE LOWER(specialty) LIKE $1 ORDER BY experience DESC, id ASC LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, likePattern(needle), limit)
	if err != nil {
		return nil, domain.Wrap("doctors.FetchBySpecialty", domain.ErrStore, err)
	}
	return scanDoctors("doctors.FetchBySpecialty", rows)
}

// ReplaceAll truncates the table and bulk-loads docs with COPY.
func (p *PostgresStore) ReplaceAll(ctx context.Context, docs []domain.Doctor) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("doctors: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE doctors RESTART IDENTITY`); err != nil {
		return 0, fmt.Errorf("doctors: truncate: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("doctors", "name", "specialty", "phone", "location", "experience"))
	if err != nil {
		return 0, fmt.Errorf("doctors: prepare copy: %w", err)
	}
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.Name, d.Specialty, d.Phone, d.Location, d.ExperienceYears); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("doctors: copy %s: %w", d.Name, describe(err))
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("doctors: flush copy: %w", describe(err))
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("doctors: close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("doctors: commit: %w", err)
	}
	return len(docs), nil
}

func scanDoctors(op string, rows *sql.Rows) ([]domain.Doctor, error) {
	defer rows.Close()
	var out []domain.Doctor
	for rows.Next() {
		var d domain.Doctor
		if err := rows.Scan(&d.Name, &d.Specialty, &d.Phone, &d.Location, &d.ExperienceYears); err != nil {
			return nil, domain.Wrap(op, domain.ErrStore, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(op, domain.ErrStore, err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive substring pattern for LIKE with the
// wildcard characters of needle escaped.
func likePattern(needle string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(needle)) + "%"
}

// describe adds the Postgres error code when err came from the server.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
