package raftpd

import (
	"encoding/gob"
	"fmt"
)

// None marks the absence of a node id (no vote cast, no known leader).
const None int = -1

// Operation is the kind of state machine command carried by a log entry.
type Operation string

const (
	OpSet    Operation = "SET"
	OpDelete Operation = "DELETE"
)

// Command is the opaque client command replicated through the log.
// The consensus layer never interprets it; the fields exist so demo
// state machines and tests have something concrete to agree on.
type Command struct {
	Op    Operation `json:"op"`
	Key   string    `json:"key"`
	Value int       `json:"value"`
}

func (c Command) String() string {
	return fmt.Sprintf("{%s %s=%d}", c.Op, c.Key, c.Value)
}

// Entry is a single log entry. Index is the position of the entry
// inside the owning log; entries are immutable once committed.
type Entry struct {
	Term    int     `json:"term"`
	Index   int     `json:"index"`
	Command Command `json:"command"`
}

func (e Entry) String() string {
	return fmt.Sprintf("raftpd.Entry{idx: %d, term: %d, cmd: %v}",
		e.Index, e.Term, e.Command)
}

// RequestVoteArgs is the candidate side of the RequestVote RPC.
type RequestVoteArgs struct {
	Term         int
	CandidateID  int
	LastLogIndex int
	LastLogTerm  int
}

// RequestVoteReply is the voter side of the RequestVote RPC.
type RequestVoteReply struct {
	Term        int
	VoteGranted bool
}

// AppendEntriesArgs is the leader side of the AppendEntries RPC.
// Empty Entries is a heartbeat.
type AppendEntriesArgs struct {
	Term         int
	LeaderID     int
	PrevLogIndex int
	PrevLogTerm  int
	Entries      []Entry
	LeaderCommit int
}

// AppendEntriesReply is the follower side of the AppendEntries RPC.
// Success false covers both the stale-term and the log-inconsistency
// rejection; the leader tells them apart by comparing Term.
type AppendEntriesReply struct {
	Term    int
	Success bool
}

func init() {
	gob.Register(Entry{})
	gob.Register(Command{})
	gob.Register(RequestVoteArgs{})
	gob.Register(RequestVoteReply{})
	gob.Register(AppendEntriesArgs{})
	gob.Register(AppendEntriesReply{})
}
