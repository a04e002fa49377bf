package tracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	claim_key          TEXT PRIMARY KEY,
	status             TEXT NOT NULL,
	application_id     TEXT NOT NULL DEFAULT '',
	case_id            TEXT NOT NULL DEFAULT '',
	error_kind         TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	post_process_error TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (model.TrackerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT claim_key, status, application_id, case_id, error_kind, error, post_process_error, updated_at
		 FROM submissions WHERE claim_key = ?`, key)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrackerEntry{}, false, nil
	}
	if err != nil {
		return model.TrackerEntry{}, false, eris.Wrapf(err, "sqlite: get %s", key)
	}
	return entry, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry model.TrackerEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (claim_key, status, application_id, case_id, error_kind, error, post_process_error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(claim_key) DO UPDATE SET
			status = excluded.status,
			application_id = excluded.application_id,
			case_id = excluded.case_id,
			error_kind = excluded.error_kind,
			error = excluded.error,
			post_process_error = excluded.post_process_error,
			updated_at = excluded.updated_at`,
		entry.Key, string(entry.Status), entry.ApplicationID, entry.CaseID,
		string(entry.ErrorKind), entry.Error, entry.PostProcessError,
		entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrapf(err, "sqlite: put %s", entry.Key)
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.TrackerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT claim_key, status, application_id, case_id, error_kind, error, post_process_error, updated_at
		 FROM submissions ORDER BY claim_key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var entries []model.TrackerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate submissions")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (model.TrackerEntry, error) {
	var (
		e                         model.TrackerEntry
		status, errorKind, update string
	)
	if err := row.Scan(&e.Key, &status, &e.ApplicationID, &e.CaseID, &errorKind, &e.Error, &e.PostProcessError, &update); err != nil {
		return model.TrackerEntry{}, err
	}
	e.Status = model.Status(status)
	e.ErrorKind = model.ErrorKind(errorKind)
	t, err := time.Parse(time.RFC3339Nano, update)
	if err != nil {
		return model.TrackerEntry{}, err
	}
	e.UpdatedAt = t
	return e, nil
}
