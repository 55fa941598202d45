// Package eventlog is the append-only event sink of the DAO engine.
//
// Engines emit governance, mission and reward events here; nothing in the
// engine reads the log back to make a decision. Entries are hash-chained
// over their RFC 8785 canonical JSON form so an exported log can be
// re-verified independently.
package eventlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the PrevHash of the first entry.
const GenesisHash = "genesis"

// ErrChainBroken is returned by Verify when the hash chain does not hold.
var ErrChainBroken = errors.New("eventlog: chain broken")

// Sink accepts events. Emit never fails from the caller's point of view.
type Sink interface {
	Emit(ctx context.Context, eventType string, payload map[string]any)
}

// Nop discards every event.
type Nop struct{}

// Emit implements Sink.
func (Nop) Emit(context.Context, string, map[string]any) {}

// Entry is an immutable, hash-chained event.
type Entry struct {
	Sequence    uint64         `json:"sequence"`
	EventType   string         `json:"event_type"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data"`
}

// Store persists entries behind the in-memory chain.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
}

// Log is an append-only, hash-chained event log.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	head    string
	clock   func() time.Time
	store   Store
	logger  *slog.Logger
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		entries: make([]Entry, 0),
		head:    GenesisHash,
		clock:   time.Now,
		logger:  slog.Default().With("component", "eventlog"),
	}
}

// WithClock overrides clock for testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// WithStore mirrors every appended entry into s.
func (l *Log) WithStore(s Store) *Log {
	l.store = s
	return l
}

// Emit appends the event, logging instead of returning failures.
func (l *Log) Emit(ctx context.Context, eventType string, payload map[string]any) {
	if _, err := l.Append(ctx, eventType, payload); err != nil {
		l.logger.ErrorContext(ctx, "failed to append event", "event_type", eventType, "error", err)
	}
}

// Append adds an entry and returns it. The payload is normalized through
// JSON so the stored data hashes identically after a round trip.
func (l *Log) Append(ctx context.Context, eventType string, payload map[string]any) (Entry, error) {
	data, err := normalizePayload(payload)
	if err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	hash, err := contentHash(seq, eventType, data, l.head)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Sequence:    seq,
		EventType:   eventType,
		ContentHash: hash,
		PrevHash:    l.head,
		Timestamp:   l.clock().UTC(),
		Data:        data,
	}

	if l.store != nil {
		if err := l.store.Append(ctx, entry); err != nil {
			return Entry{}, fmt.Errorf("eventlog: persist entry %d: %w", seq, err)
		}
	}

	l.entries = append(l.entries, entry)
	l.head = hash
	return entry.clone(), nil
}

// Entries returns a deep copy of every entry in order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Head returns the current head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.head
}

// CountByType tallies entries per event type.
func (l *Log) CountByType() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range l.entries {
		counts[e.EventType]++
	}
	return counts
}

// Verify checks the integrity of the whole chain.
func (l *Log) Verify() error {
	return Verify(l.Entries())
}

// Verify checks a sequence of entries, e.g. one loaded back from a Store.
func Verify(entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrChainBroken, i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d: expected prev %s, got %s", ErrChainBroken, i+1, prev, e.PrevHash)
		}
		computed, err := contentHash(e.Sequence, e.EventType, e.Data, e.PrevHash)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i+1, err)
		}
		if computed != e.ContentHash {
			return fmt.Errorf("%w: hash mismatch at entry %d", ErrChainBroken, i+1)
		}
		prev = e.ContentHash
	}
	return nil
}

func contentHash(seq uint64, eventType string, data map[string]any, prev string) (string, error) {
	hashInput := struct {
		Seq      uint64         `json:"seq"`
		Type     string         `json:"type"`
		Data     map[string]any `json:"data"`
		PrevHash string         `json:"prev"`
	}{seq, eventType, data, prev}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("eventlog: marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("eventlog: canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// clone deep-copies Data. Normalized payloads hold only JSON values, so maps
// and slices are the only containers to walk.
func (e Entry) clone() Entry {
	if e.Data != nil {
		e.Data = cloneValue(e.Data).(map[string]any)
	}
	return e
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, x := range v {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

func normalizePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventlog: payload not serializable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("eventlog: payload round trip: %w", err)
	}
	return out, nil
}
