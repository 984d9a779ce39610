package deliverylog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sent_at    TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	success    INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_deliveries_recipient ON deliveries(recipient);
`

type deliveryRow struct {
	ID        int64  `db:"id"`
	SentAt    string `db:"sent_at"`
	Recipient string `db:"recipient"`
	Success   bool   `db:"success"`
	Reason    string `db:"reason"`
	MessageID string `db:"message_id"`
}

// SQLiteSink keeps entries in a SQLite table.
type SQLiteSink struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewSQLiteSink opens (or creates) the database at dbPath and ensures the
// schema exists. ":memory:" is accepted.
func NewSQLiteSink(dbPath string, loc *time.Location) (*SQLiteSink, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating deliveries table: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	return &SQLiteSink{db: db, loc: loc}, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Append inserts one row.
func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO deliveries (sent_at, recipient, success, reason, message_id)
		VALUES (:sent_at, :recipient, :success, :reason, :message_id)`,
		deliveryRow{
			SentAt:    e.Timestamp.UTC().Format(time.RFC3339Nano),
			Recipient: e.Recipient,
			Success:   e.Success,
			Reason:    e.Reason,
			MessageID: e.MessageID,
		})
	if err != nil {
		return fmt.Errorf("inserting delivery for %s: %w", e.Recipient, err)
	}
	return nil
}

// Entries returns every stored entry, oldest first.
func (s *SQLiteSink) Entries(ctx context.Context) ([]Entry, error) {
	var rows []deliveryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM deliveries ORDER BY id`); err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339Nano, r.SentAt)
		if err != nil {
			return nil, fmt.Errorf("parsing sent_at of delivery %d: %w", r.ID, err)
		}
		entries = append(entries, Entry{
			Timestamp: ts,
			Recipient: r.Recipient,
			Success:   r.Success,
			Reason:    r.Reason,
			MessageID: r.MessageID,
		})
	}
	return entries, nil
}

// Lines renders every entry.
func (s *SQLiteSink) Lines(ctx context.Context) ([]string, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Format(s.loc))
	}
	return lines, nil
}
