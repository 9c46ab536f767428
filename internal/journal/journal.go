// Package journal persists module load attempts so operators can tell a
// missing module from a stale one after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DefaultLimit = 50

// timeFormat has a fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Attempt is one recorded load.
type Attempt struct {
	ID          string    `json:"id"`
	BootID      string    `json:"boot_id"`
	ModuleID    string    `json:"module_id"`
	Path        string    `json:"path,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	HostStamp   string    `json:"host_stamp"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a. ID and AttemptedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ModuleID == "" {
		return Attempt{}, fmt.Errorf("module id is empty")
	}
	if a.Outcome == "" {
		return Attempt{}, fmt.Errorf("outcome is empty for module=%q", a.ModuleID)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	a.AttemptedAt = a.AttemptedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO module_load_log(id, boot_id, module_id, path, outcome, detail, host_stamp, attempted_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ID, a.BootID, a.ModuleID, nullable(a.Path), a.Outcome, nullable(a.Detail), a.HostStamp,
		a.AttemptedAt.Format(timeFormat),
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("insert load attempt: %w", err)
	}
	return a, nil
}

// Recent returns up to limit attempts, newest first. A non-empty moduleID
// filters to that module.
func (s *Store) Recent(ctx context.Context, moduleID string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, boot_id, module_id, path, outcome, detail, host_stamp, attempted_at FROM module_load_log`
	args := []any{}
	if moduleID != "" {
		query += ` WHERE module_id = ?`
		args = append(args, moduleID)
	}
	query += ` ORDER BY attempted_at DESC, rowid DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query load attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a              Attempt
			path, detail   sql.NullString
			attemptedAtRaw string
		)
		if err := rows.Scan(&a.ID, &a.BootID, &a.ModuleID, &path, &a.Outcome, &detail, &a.HostStamp, &attemptedAtRaw); err != nil {
			return nil, fmt.Errorf("scan load attempt: %w", err)
		}
		a.Path = path.String
		a.Detail = detail.String
		a.AttemptedAt, err = time.Parse(timeFormat, attemptedAtRaw)
		if err != nil {
			return nil, fmt.Errorf("parse attempted_at for %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate load attempts: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
