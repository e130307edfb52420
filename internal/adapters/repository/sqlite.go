package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/internal/domain/session"
	"github.com/okian/posecap/pkg/metrics"
)

// SQLiteStore is a SessionStore backed by a SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	now         func() time.Time
	busyTimeout time.Duration
	version     uint

	mu     sync.RWMutex
	closed bool
}

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{now: time.Now, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps pragmas and :memory: state consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds()),
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if s.version, err = migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

// Save inserts or replaces snap.
func (s *SQLiteStore) Save(ctx context.Context, snap session.Snapshot) (err error) {
	defer func() { recordOp("save", err) }()
	if err := s.checkOpen(); err != nil {
		return err
	}

	results := make(map[angle.Index]session.Result, len(snap.Results))
	for _, r := range snap.Results {
		results[r.Angle] = r
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	complete := len(results) == angle.Count
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, current_angle, complete)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			current_angle = excluded.current_angle,
			complete = excluded.complete`,
		snap.ID, formatTime(snap.CreatedAt), formatTime(s.now()), int(snap.CurrentAngle), boolInt(complete),
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", snap.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM angle_records WHERE session_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("clear records %s: %w", snap.ID, err)
	}

	stats := make(map[angle.Index]session.Stats, len(snap.Stats))
	for _, st := range snap.Stats {
		stats[st.Angle] = st.Stats
	}
	for i := 0; i < angle.Count; i++ {
		a := angle.Index(i)
		st, hasStats := stats[a]
		r, hasResult := results[a]
		if !hasStats && !hasResult {
			continue
		}
		var imageID, imageURI, meta sql.NullString
		if hasResult {
			imageID = sql.NullString{String: r.Image.ID, Valid: true}
			imageURI = sql.NullString{String: r.Image.URI, Valid: r.Image.URI != ""}
			raw, mErr := json.Marshal(r.Metadata)
			if mErr != nil {
				err = fmt.Errorf("encode metadata %s/%s: %w", snap.ID, a, mErr)
				return err
			}
			meta = sql.NullString{String: string(raw), Valid: true}
		}
		var started sql.NullString
		if !st.StartedAt.IsZero() {
			started = sql.NullString{String: formatTime(st.StartedAt), Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO angle_records
				(session_id, angle, attempts, time_spent_ns, started_at, image_id, image_uri, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, st.Attempts, int64(st.TimeSpent), started, imageID, imageURI, meta,
		); err != nil {
			return fmt.Errorf("insert record %s/%s: %w", snap.ID, a, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the snapshot for id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (snap session.Snapshot, err error) {
	defer func() { recordOp("load", err) }()
	if err := s.checkOpen(); err != nil {
		return session.Snapshot{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, current_angle FROM sessions WHERE id = ?`, id)
	return s.load(ctx, row)
}

// Latest returns the most recently saved snapshot.
func (s *SQLiteStore) Latest(ctx context.Context) (snap session.Snapshot, err error) {
	defer func() { recordOp("latest", err) }()
	if err := s.checkOpen(); err != nil {
		return session.Snapshot{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, current_angle FROM sessions
		ORDER BY updated_at DESC, rowid DESC LIMIT 1`)
	return s.load(ctx, row)
}

// Delete removes the snapshot for id and its angle records.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { recordOp("delete", err) }()
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return nil
}

// SchemaVersion returns the migration version applied on open.
func (s *SQLiteStore) SchemaVersion() uint { return s.version }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *SQLiteStore) load(ctx context.Context, row *sql.Row) (session.Snapshot, error) {
	var (
		snap    session.Snapshot
		created string
		current int
	)
	if err := row.Scan(&snap.ID, &created, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Snapshot{}, ErrNotFound
		}
		return session.Snapshot{}, fmt.Errorf("scan session: %w", err)
	}
	var err error
	if snap.CreatedAt, err = parseTime(created); err != nil {
		return session.Snapshot{}, fmt.Errorf("session %s created_at: %w", snap.ID, err)
	}
	snap.CurrentAngle = angle.Index(current)

	rows, err := s.db.QueryContext(ctx, `
		SELECT angle, attempts, time_spent_ns, started_at, image_id, image_uri, metadata
		FROM angle_records WHERE session_id = ? ORDER BY angle`, snap.ID)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("query records %s: %w", snap.ID, err)
	}
	defer rows.Close()

	snap.Results = []session.Result{}
	snap.Stats = []session.AngleStats{}
	for rows.Next() {
		var (
			idx   int
			st    session.Stats
			spent int64

			started, imageID, uri, meta sql.NullString
		)
		if err := rows.Scan(&idx, &st.Attempts, &spent, &started, &imageID, &uri, &meta); err != nil {
			return session.Snapshot{}, fmt.Errorf("scan record %s: %w", snap.ID, err)
		}
		a := angle.Index(idx)
		st.TimeSpent = time.Duration(spent)
		if started.Valid {
			if st.StartedAt, err = parseTime(started.String); err != nil {
				return session.Snapshot{}, fmt.Errorf("record %s/%s started_at: %w", snap.ID, a, err)
			}
		}
		snap.Stats = append(snap.Stats, session.AngleStats{Angle: a, Stats: st})

		if imageID.Valid {
			r := session.Result{Angle: a, Image: model.ImageHandle{ID: imageID.String, URI: uri.String}}
			if meta.Valid {
				if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
					return session.Snapshot{}, fmt.Errorf("decode metadata %s/%s: %w", snap.ID, a, err)
				}
			}
			snap.Results = append(snap.Results, r)
		}
	}
	if err := rows.Err(); err != nil {
		return session.Snapshot{}, fmt.Errorf("iterate records %s: %w", snap.ID, err)
	}
	return snap, nil
}

func recordOp(op string, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordStoreOperation(op, outcome)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
