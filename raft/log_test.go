package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkermao/accord/raft/proto"
)

func makeEntries(terms ...int) []raftpd.Entry {
	entries := make([]raftpd.Entry, len(terms))
	for i, term := range terms {
		entries[i] = raftpd.Entry{
			Term:    term,
			Index:   i,
			Command: raftpd.Command{Op: raftpd.OpSet, Key: "k", Value: i},
		}
	}
	return entries
}

func TestLogEmpty(t *testing.T) {
	l := makeLog(0)
	assert.Equal(t, -1, l.lastIndex())
	assert.Equal(t, 0, l.lastTerm())
	assert.Equal(t, -1, l.commitIndex)
	assert.Empty(t, l.committed())
}

func TestLogAppend(t *testing.T) {
	l := makeLog(0)
	for i, e := range makeEntries(1, 1, 2) {
		l.append(e)
		assert.Equal(t, i, l.lastIndex())
	}
	assert.Equal(t, 2, l.lastTerm())
}

func TestLogIsUpToDate(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 2, 2)

	tests := []struct {
		idx, term int
		want      bool
	}{
		{2, 2, true},  // identical last entry
		{5, 2, true},  // same term, longer
		{1, 3, true},  // higher last term wins regardless of length
		{1, 2, false}, // same term, shorter
		{9, 1, false}, // lower last term loses regardless of length
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.isUpToDate(tt.idx, tt.term),
			"idx=%d term=%d", tt.idx, tt.term)
	}
}

func TestLogIsUpToDateEmpty(t *testing.T) {
	l := makeLog(0)
	assert.True(t, l.isUpToDate(-1, 0))
	assert.True(t, l.isUpToDate(3, 1))
}

func TestLogTryAppendConsistency(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 1)

	incoming := []raftpd.Entry{{Term: 2, Index: 2}}

	// Wrong previous term.
	require.False(t, l.tryAppend(1, 2, incoming))
	assert.Equal(t, 1, l.lastIndex())

	// Previous index past the end of the log.
	require.False(t, l.tryAppend(5, 1, incoming))
	assert.Equal(t, 1, l.lastIndex())

	// Matching previous entry.
	require.True(t, l.tryAppend(1, 1, incoming))
	assert.Equal(t, 2, l.lastIndex())
	assert.Equal(t, 2, l.lastTerm())
}

func TestLogTryAppendTruncates(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 1, 1)

	incoming := []raftpd.Entry{
		{Term: 2, Index: 1},
		{Term: 2, Index: 2},
	}
	require.True(t, l.tryAppend(0, 1, incoming))
	assert.Equal(t, 2, l.lastIndex())
	assert.Equal(t, 2, l.term(1))
	assert.Equal(t, 2, l.term(2))
}

func TestLogTryAppendStaleDuplicate(t *testing.T) {
	l := makeLog(0)
	batch := makeEntries(1, 1, 1, 1)
	require.True(t, l.tryAppend(-1, 0, batch))
	l.commitTo(3)

	// A delayed duplicate of the first, shorter batch arrives after
	// the full one was acked: it must not erase anything.
	require.True(t, l.tryAppend(-1, 0, batch[:1]))
	assert.Equal(t, 3, l.lastIndex())
	assert.Equal(t, 3, l.commitIndex)

	// Replaying the full batch is equally a no-op.
	require.True(t, l.tryAppend(-1, 0, batch))
	assert.Equal(t, 3, l.lastIndex())
}

func TestLogTryAppendConflictMidBatch(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 1, 1)

	// First incoming entry agrees, second conflicts: truncate from
	// the conflict only.
	incoming := []raftpd.Entry{
		{Term: 1, Index: 1},
		{Term: 3, Index: 2},
		{Term: 3, Index: 3},
	}
	require.True(t, l.tryAppend(0, 1, incoming))
	assert.Equal(t, 3, l.lastIndex())
	assert.Equal(t, 1, l.term(1))
	assert.Equal(t, 3, l.term(2))
	assert.Equal(t, 3, l.term(3))
}

func TestLogTryAppendEmptyHeartbeat(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 1, 1)

	// A heartbeat consistent with a prefix must not drop the tail.
	require.True(t, l.tryAppend(0, 1, nil))
	assert.Equal(t, 2, l.lastIndex())
}

func TestLogCommitTo(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 1, 1)

	l.commitTo(1)
	assert.Equal(t, 1, l.commitIndex)

	// Never decreases.
	l.commitTo(0)
	assert.Equal(t, 1, l.commitIndex)

	// Clamped to the last index.
	l.commitTo(9)
	assert.Equal(t, 2, l.commitIndex)
}

func TestLogCommittedIsCopy(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 1)
	l.commitTo(1)

	dup := l.committed()
	require.Len(t, dup, 2)
	dup[0].Command.Value = 42
	assert.Equal(t, 0, l.entries[0].Command.Value)
}

func TestLogSlice(t *testing.T) {
	l := makeLog(0)
	l.entries = makeEntries(1, 2, 3)

	assert.Len(t, l.slice(0), 3)
	assert.Len(t, l.slice(2), 1)
	assert.Empty(t, l.slice(3))
}
