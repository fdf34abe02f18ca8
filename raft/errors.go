package raft

import "errors"

// ErrNotLeader is returned when a client proposes an entry to a node
// that does not currently believe itself leader. Clients retry against
// the node named by LeaderID.
var ErrNotLeader = errors.New("raft: not leader")

// ErrQuorumNotReached is returned by an election round that failed to
// gather a majority of votes. The node waits for the next timeout and
// campaigns again with a higher term.
var ErrQuorumNotReached = errors.New("raft: quorum not reached")
