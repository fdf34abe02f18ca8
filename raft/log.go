package raft

import (
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/raft/proto"
	"github.com/thinkermao/accord/utils"
)

// raftLog holds the in-memory log entries of one node, and given some
// useful information for raft. Entry index equals slice position.
// Here is the memory layout:
//
// [0, commitIndex]  (committed, immutable)
// (commitIndex, lastIndex]  (replicating, may be truncated)
//
// commitIndex is -1 while nothing has been committed.
type raftLog struct {
	// raft inner id, for logging only.
	id int

	commitIndex int
	entries     []raftpd.Entry
}

func makeLog(id int) *raftLog {
	return &raftLog{
		id:          id,
		commitIndex: -1,
		entries:     nil,
	}
}

// lastIndex return the index of the last entry, -1 when empty.
func (l *raftLog) lastIndex() int {
	return len(l.entries) - 1
}

// term return the term of the entry at idx, and 0 when idx is
// outside the log. The zero keeps the up-to-date comparison of
// empty logs identical to the paper's.
func (l *raftLog) term(idx int) int {
	if idx < 0 || idx >= len(l.entries) {
		return 0
	}
	return l.entries[idx].Term
}

// lastTerm return the term of the last entry, 0 when empty.
func (l *raftLog) lastTerm() int {
	return l.term(l.lastIndex())
}

// isUpToDate determines if the given (idx, term) log is at least as
// up-to-date as the receiver, by comparing term then index of the
// last entries. §5.4.1
func (l *raftLog) isUpToDate(idx, term int) bool {
	return term > l.lastTerm() ||
		(term == l.lastTerm() && idx >= l.lastIndex())
}

// append push a single entry at back. Leader Append-Only: a leader
// never overwrites or deletes entries in its log. §5.3
func (l *raftLog) append(entry raftpd.Entry) {
	utils.Assert(entry.Index == len(l.entries),
		"%d append idx: %d, want: %d", l.id, entry.Index, len(l.entries))
	l.entries = append(l.entries, entry)
}

// tryAppend checks the consistency of (prevIdx, prevTerm) against the
// local log. On success, entries the log already holds are skipped and
// the tail is truncated only from the first real conflict onward: a
// stale duplicate of an earlier batch (a retry, or a delayed message)
// must never erase entries acked since, so a batch that is a prefix of
// the existing log is a no-op.
func (l *raftLog) tryAppend(prevIdx, prevTerm int, entries []raftpd.Entry) bool {
	if prevIdx >= 0 &&
		(prevIdx >= len(l.entries) || l.entries[prevIdx].Term != prevTerm) {
		log.Debugf("%d [commit: %d, last: %d] reject entries [previdx: %d, prevterm: %d]",
			l.id, l.commitIndex, l.lastIndex(), prevIdx, prevTerm)
		return false
	}

	for i, entry := range entries {
		idx := prevIdx + 1 + i
		if idx < len(l.entries) && l.entries[idx].Term == entry.Term {
			continue
		}

		utils.Assert(idx > l.commitIndex,
			"%d entry at %d conflicts with committed entry %d",
			l.id, idx, l.commitIndex)

		l.entries = append(l.entries[:idx], entries[i:]...)
		break
	}

	return true
}

// commitTo advances commitIndex to `to`, clamped to the last index.
// Commit never decreases.
func (l *raftLog) commitTo(to int) {
	to = utils.MinInt(to, l.lastIndex())
	if to <= l.commitIndex {
		return
	}

	l.commitIndex = to
	log.Debugf("%d commit entries to index: %d", l.id, to)
}

// committed return a copy of the committed prefix of the log.
func (l *raftLog) committed() []raftpd.Entry {
	dup := make([]raftpd.Entry, l.commitIndex+1)
	copy(dup, l.entries[:l.commitIndex+1])
	return dup
}

// slice return a copy of entries in [lo, lastIndex].
func (l *raftLog) slice(lo int) []raftpd.Entry {
	utils.Assert(lo >= 0 && lo <= len(l.entries),
		"%d slice from %d out of range [last: %d]", l.id, lo, l.lastIndex())
	dup := make([]raftpd.Entry, len(l.entries)-lo)
	copy(dup, l.entries[lo:])
	return dup
}
