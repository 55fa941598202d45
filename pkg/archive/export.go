package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/semanticarchitectures/Framework/pkg/eventlog"
)

// Snapshot describes an exported event chain.
type Snapshot struct {
	Digest  string `json:"digest"`
	Entries int    `json:"entries"`
	Head    string `json:"head"`
}

// ExportJSONL verifies entries, encodes them one per line and stores the
// result. An empty chain exports an empty blob with the genesis head.
func ExportJSONL(ctx context.Context, store Store, entries []eventlog.Entry) (Snapshot, error) {
	if err := eventlog.Verify(entries); err != nil {
		return Snapshot{}, fmt.Errorf("refusing to export: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return Snapshot{}, fmt.Errorf("encode entry %d: %w", e.Sequence, err)
		}
	}

	digest, err := store.Put(ctx, buf.Bytes())
	if err != nil {
		return Snapshot{}, err
	}

	head := eventlog.GenesisHash
	if n := len(entries); n > 0 {
		head = entries[n-1].ContentHash
	}
	return Snapshot{Digest: digest, Entries: len(entries), Head: head}, nil
}

// ImportJSONL loads and verifies a snapshot.
func ImportJSONL(ctx context.Context, store Store, digest string) ([]eventlog.Entry, error) {
	data, err := store.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	var entries []eventlog.Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e eventlog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := eventlog.Verify(entries); err != nil {
		return nil, err
	}
	return entries, nil
}
