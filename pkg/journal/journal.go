// Package journal persists tethering events to a local sqlite database so a
// shoot can be audited after the fact: every detected file, completed
// download, and error, per device port.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tethercam/tethercam"

	_ "modernc.org/sqlite"
)

// EnvDatabasePath enables the journal when set; it points at the sqlite file.
const EnvDatabasePath = "TETHERCAM_JOURNAL_DB"

const schema = `CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	port TEXT NOT NULL,
	remote_path TEXT,
	local_path TEXT,
	message TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_port ON events(port);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);`

// Entry is one persisted event row.
type Entry struct {
	ID         int64
	EventID    string
	Type       string
	Port       string
	RemotePath string
	LocalPath  string
	Message    string
	CreatedAt  time.Time
}

// Journal wraps the sqlite event log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open sqlite db failed")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "journal: create schema failed")
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record persists one event. Busy/Ready transitions are skipped: they bracket
// every single download and would dominate the log without adding audit value.
func (j *Journal) Record(ctx context.Context, ev tethercam.Event) error {
	switch ev.Type {
	case tethercam.EventDeviceBusy, tethercam.EventDeviceReady:
		return nil
	}
	remote := ev.Payload["remote_path"]
	if remote == "" {
		remote = ev.Payload["path"]
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, port, remote_path, local_path, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Port, remote, ev.Payload["local_path"], ev.Payload["message"], ev.Timestamp.UTC(),
	)
	return errors.Wrap(err, "journal: insert event failed")
}

// Recent returns up to limit rows for port (all ports when empty), newest
// first.
func (j *Journal) Recent(ctx context.Context, port string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, event_id, event_type, port, remote_path, local_path, message, created_at
		FROM events`
	args := []any{}
	if port != "" {
		query += ` WHERE port = ?`
		args = append(args, port)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "journal: query events failed")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var remote, local, message sql.NullString
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &e.Port, &remote, &local, &message, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "journal: scan event row failed")
		}
		e.RemotePath = remote.String
		e.LocalPath = local.String
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Pump drains events into the journal until the channel closes or ctx fires.
// Insert failures are logged and skipped; the journal must never stall the
// event stream.
func (j *Journal) Pump(ctx context.Context, events <-chan tethercam.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := j.Record(ctx, ev); err != nil {
				log.Error().Err(err).Str("port", ev.Port).Str("type", string(ev.Type)).Msg("journal record failed")
			}
		}
	}
}
