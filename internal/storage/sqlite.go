package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the durable ledger of first sightings and optional duplicate telemetry.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs pending migrations.
// Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating storage directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// --- Codes ---

// RecordIfAbsent stores the first sighting of payload. An existing row is
// left untouched and reported as AlreadyPresent.
func (s *Store) RecordIfAbsent(payload string, firstSeen time.Time, sessionID string) (RecordResult, error) {
	return s.RecordCode(CodeEvent{Payload: payload, FirstSeen: firstSeen, SessionID: sessionID})
}

// RecordCode is RecordIfAbsent with the archived snapshot name attached.
func (s *Store) RecordCode(ev CodeEvent) (RecordResult, error) {
	if ev.Payload == "" {
		return 0, ErrEmptyPayload
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO codes (payload, first_seen, session_id, archive_file) VALUES (?, ?, ?, ?)`,
		ev.Payload, formatTime(ev.FirstSeen), ev.SessionID, ev.ArchiveFile,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking inserted rows: %w", err)
	}
	if n == 0 {
		return AlreadyPresent, nil
	}
	return Inserted, nil
}

func (s *Store) GetCode(payload string) (CodeEvent, error) {
	var e CodeEvent
	var firstSeen string
	err := s.db.QueryRow(
		`SELECT payload, first_seen, session_id, archive_file FROM codes WHERE payload = ?`, payload,
	).Scan(&e.Payload, &firstSeen, &e.SessionID, &e.ArchiveFile)
	if err == sql.ErrNoRows {
		return CodeEvent{}, ErrNotFound
	}
	if err != nil {
		return CodeEvent{}, err
	}
	if e.FirstSeen, err = parseTime(firstSeen); err != nil {
		return CodeEvent{}, fmt.Errorf("parsing first_seen: %w", err)
	}
	return e, nil
}

// ListCodes returns code events ordered by first sighting, oldest first.
func (s *Store) ListCodes(limit, offset int) ([]CodeEvent, error) {
	rows, err := s.db.Query(`
		SELECT payload, first_seen, session_id, archive_file
		FROM codes ORDER BY first_seen ASC, payload ASC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CodeEvent
	for rows.Next() {
		var e CodeEvent
		var firstSeen string
		if err := rows.Scan(&e.Payload, &firstSeen, &e.SessionID, &e.ArchiveFile); err != nil {
			return nil, err
		}
		if e.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, fmt.Errorf("parsing first_seen: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListRecentCodes returns the most recently first-seen events, newest first.
func (s *Store) ListRecentCodes(limit int) ([]CodeEvent, error) {
	rows, err := s.db.Query(`
		SELECT payload, first_seen, session_id, archive_file
		FROM codes ORDER BY first_seen DESC, payload ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CodeEvent
	for rows.Next() {
		var e CodeEvent
		var firstSeen string
		if err := rows.Scan(&e.Payload, &firstSeen, &e.SessionID, &e.ArchiveFile); err != nil {
			return nil, err
		}
		if e.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, fmt.Errorf("parsing first_seen: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListPayloads returns every recorded payload. Used to seed a session.
func (s *Store) ListPayloads() ([]string, error) {
	rows, err := s.db.Query(`SELECT payload FROM codes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payloads []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, rows.Err()
}

func (s *Store) CountCodes() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM codes`).Scan(&n)
	return n, err
}

// --- Duplicates ---

// RecordDuplicate appends a repeat sighting. There is no uniqueness constraint.
func (s *Store) RecordDuplicate(payload string, seenAt time.Time, sessionID string) error {
	if payload == "" {
		return ErrEmptyPayload
	}
	_, err := s.db.Exec(
		`INSERT INTO duplicates (payload, seen_at, session_id) VALUES (?, ?, ?)`,
		payload, formatTime(seenAt), sessionID,
	)
	if err != nil {
		return fmt.Errorf("inserting duplicate: %w", err)
	}
	return nil
}

// ListDuplicates returns duplicate observations, newest first. An empty
// payload lists all of them.
func (s *Store) ListDuplicates(payload string, limit int) ([]DuplicateObservation, error) {
	query := `SELECT id, payload, seen_at, session_id FROM duplicates`
	var args []any
	if payload != "" {
		query += ` WHERE payload = ?`
		args = append(args, payload)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DuplicateObservation
	for rows.Next() {
		var d DuplicateObservation
		var seenAt string
		if err := rows.Scan(&d.ID, &d.Payload, &seenAt, &d.SessionID); err != nil {
			return nil, err
		}
		if d.SeenAt, err = parseTime(seenAt); err != nil {
			return nil, fmt.Errorf("parsing seen_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
