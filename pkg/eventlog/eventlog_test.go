package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestLog_AppendChains(t *testing.T) {
	l := NewLog().WithClock(fixedClock)
	ctx := context.Background()

	first, err := l.Append(ctx, "proposal_created", map[string]any{"proposal_id": "prop_1"})
	require.NoError(t, err)
	second, err := l.Append(ctx, "vote_cast", map[string]any{"proposal_id": "prop_1", "support": true})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, GenesisHash, first.PrevHash)
	assert.Equal(t, first.ContentHash, second.PrevHash)
	assert.Equal(t, second.ContentHash, l.Head())
	assert.Equal(t, 2, l.Len())
	require.NoError(t, l.Verify())
}

func TestLog_HashIgnoresKeyOrderAndNumberForm(t *testing.T) {
	a := NewLog().WithClock(fixedClock)
	b := NewLog().WithClock(fixedClock)
	ctx := context.Background()

	ea, err := a.Append(ctx, "reward_paid", map[string]any{"agent_id": "agent_1", "amount": 3})
	require.NoError(t, err)
	eb, err := b.Append(ctx, "reward_paid", map[string]any{"amount": 3.0, "agent_id": "agent_1"})
	require.NoError(t, err)

	assert.Equal(t, ea.ContentHash, eb.ContentHash)
}

func TestLog_VerifyDetectsTampering(t *testing.T) {
	l := NewLog()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.Emit(ctx, "mission_created", map[string]any{"n": i})
	}

	entries := l.Entries()
	entries[1].Data["n"] = 99.0
	assert.ErrorIs(t, Verify(entries), ErrChainBroken)

	entries = l.Entries()
	entries[2].PrevHash = GenesisHash
	assert.ErrorIs(t, Verify(entries), ErrChainBroken)

	entries = l.Entries()
	entries[0].Sequence = 7
	assert.ErrorIs(t, Verify(entries), ErrChainBroken)
}

func TestLog_EntriesReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Emit(context.Background(), "a", nil)
	entries := l.Entries()
	entries[0].EventType = "b"
	assert.Equal(t, "a", l.Entries()[0].EventType)
}

func TestLog_EntriesDataIsDetached(t *testing.T) {
	l := NewLog()
	ctx := context.Background()
	appended, err := l.Append(ctx, "agents_assigned", map[string]any{
		"mission_id": "mission_1",
		"agents":     []string{"agent_1", "agent_2"},
		"scores":     map[string]any{"agent_1": 0.9},
	})
	require.NoError(t, err)
	appended.Data["mission_id"] = "mission_2"

	entries := l.Entries()
	entries[0].Data["mission_id"] = "mission_3"
	entries[0].Data["agents"].([]any)[0] = "agent_9"
	entries[0].Data["scores"].(map[string]any)["agent_1"] = 0.1

	require.NoError(t, l.Verify())
	fresh := l.Entries()[0].Data
	assert.Equal(t, "mission_1", fresh["mission_id"])
	assert.Equal(t, []any{"agent_1", "agent_2"}, fresh["agents"])
	assert.Equal(t, map[string]any{"agent_1": 0.9}, fresh["scores"])
}

func TestLog_EmitSwallowsUnserializablePayload(t *testing.T) {
	l := NewLog()
	l.Emit(context.Background(), "bad", map[string]any{"ch": make(chan int)})
	assert.Equal(t, 0, l.Len())
}

func TestLog_CountByType(t *testing.T) {
	l := NewLog()
	ctx := context.Background()
	l.Emit(ctx, "vote_cast", nil)
	l.Emit(ctx, "vote_cast", nil)
	l.Emit(ctx, "proposal_created", nil)

	assert.Equal(t, map[string]int{"vote_cast": 2, "proposal_created": 1}, l.CountByType())
}

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, Entry) error   { return f.err }
func (f failingStore) List(context.Context) ([]Entry, error) { return nil, f.err }

func TestLog_StoreFailureDoesNotAdvanceHead(t *testing.T) {
	l := NewLog().WithStore(failingStore{err: assert.AnError})
	_, err := l.Append(context.Background(), "x", nil)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, GenesisHash, l.Head())
	assert.Equal(t, 0, l.Len())
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Emit(context.Background(), "anything", map[string]any{"k": "v"})
}
