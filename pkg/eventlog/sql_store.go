package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLStore persists entries using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS dao_events (
	seq BIGINT PRIMARY KEY,
	event_type TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	ts_unix_nano BIGINT NOT NULL,
	data TEXT NOT NULL
);
`

// Init creates the events table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	query := `
		INSERT INTO dao_events (seq, event_type, content_hash, prev_hash, ts_unix_nano, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		int64(e.Sequence), e.EventType, e.ContentHash, e.PrevHash, e.Timestamp.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT seq, event_type, content_hash, prev_hash, ts_unix_nano, data FROM dao_events ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Entry, 0)
	for rows.Next() {
		var (
			e    Entry
			seq  int64
			ts   int64
			data string
		)
		if err := rows.Scan(&seq, &e.EventType, &e.ContentHash, &e.PrevHash, &ts, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", seq, err)
		}
		e.Sequence = uint64(seq)
		e.Timestamp = time.Unix(0, ts).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
