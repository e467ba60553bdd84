// Package journal keeps an audit log of rollbacks in SQLite, with the state
// document before and after each rollback stored zstd-compressed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("journal entry not found")

// Which selects one of the stored snapshots
type Which string

const (
	Before Which = "before"
	After  Which = "after"
)

// Record is a rollback to be journaled
type Record struct {
	ProjectRoot  string
	CheckpointID string
	Success      bool
	Message      string
	Before       []byte
	After        []byte
}

// Entry is a journaled rollback without its snapshots
type Entry struct {
	ID           string    `json:"id"`
	ProjectRoot  string    `json:"projectRoot"`
	CheckpointID string    `json:"checkpointId"`
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	HasBefore    bool      `json:"hasBefore"`
	HasAfter     bool      `json:"hasAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Journal wraps the SQLite connection
type Journal struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// Open creates or opens the journal database at path
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	j := &Journal{db: db, encoder: encoder, decoder: decoder, now: time.Now}
	if err := j.init(); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rollbacks (
		id TEXT PRIMARY KEY,
		project_root TEXT NOT NULL,
		checkpoint_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL,
		before_snapshot BLOB,
		after_snapshot BLOB,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rollbacks_project ON rollbacks(project_root, created_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection
func (j *Journal) Close() error {
	j.decoder.Close()
	return j.db.Close()
}

// Record stores a rollback outcome
func (j *Journal) Record(ctx context.Context, r Record) (Entry, error) {
	e := Entry{
		ID:           uuid.New().String(),
		ProjectRoot:  r.ProjectRoot,
		CheckpointID: r.CheckpointID,
		Success:      r.Success,
		Message:      r.Message,
		HasBefore:    r.Before != nil,
		HasAfter:     r.After != nil,
		CreatedAt:    j.now().UTC().Truncate(time.Millisecond),
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO rollbacks
		(id, project_root, checkpoint_id, success, message, before_snapshot, after_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectRoot, e.CheckpointID, e.Success, e.Message,
		j.compress(r.Before), j.compress(r.After), e.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("insert rollback: %w", err)
	}
	return e, nil
}

// List returns the newest entries for a project first. A non-positive limit returns all.
func (j *Journal) List(ctx context.Context, projectRoot string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, project_root, checkpoint_id, success, message,
			before_snapshot IS NOT NULL, after_snapshot IS NOT NULL, created_at
		FROM rollbacks
		WHERE project_root = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, projectRoot, limit)
	if err != nil {
		return nil, fmt.Errorf("query rollbacks: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ProjectRoot, &e.CheckpointID, &e.Success, &e.Message,
			&e.HasBefore, &e.HasAfter, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Snapshot returns one decompressed snapshot of an entry
func (j *Journal) Snapshot(ctx context.Context, id string, which Which) ([]byte, error) {
	column := "before_snapshot"
	switch which {
	case Before:
	case After:
		column = "after_snapshot"
	default:
		return nil, fmt.Errorf("unknown snapshot %q", which)
	}

	var blob []byte
	err := j.db.QueryRowContext(ctx, "SELECT "+column+" FROM rollbacks WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: %s has no %s snapshot", ErrNotFound, id, which)
	}
	return j.decoder.DecodeAll(blob, nil)
}

func (j *Journal) compress(data []byte) any {
	if data == nil {
		return nil
	}
	return j.encoder.EncodeAll(data, nil)
}
