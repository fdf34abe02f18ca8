package paxos

import (
	"encoding/gob"
	"errors"
	"fmt"
)

// ErrQuorumNotReached is returned when a Prepare or Accept phase
// gathers fewer than a majority of grants. The caller may retry with
// a fresh, higher proposal number.
var ErrQuorumNotReached = errors.New("paxos: quorum not reached")

// PrepareArgs is phase one of the Synod protocol.
type PrepareArgs struct {
	ProposalNumber int
}

// PrepareReply reports the promise decision. The accepted pair is
// always reported when present, even on refusal, so a late proposer
// still learns about possibly chosen values.
type PrepareReply struct {
	Promised       bool
	AcceptedNumber int
	AcceptedValue  []byte
}

// AcceptArgs is phase two of the Synod protocol.
type AcceptArgs struct {
	ProposalNumber int
	Value          []byte
}

// AcceptReply reports the acceptance decision.
type AcceptReply struct {
	Accepted bool
}

// Chosen is the outcome of a successful proposal round: the value a
// quorum of acceptors agreed on, under the given proposal number. The
// value may differ from the one the proposer started with.
type Chosen struct {
	Value  []byte
	Number int
}

func (c Chosen) String() string {
	return fmt.Sprintf("paxos.Chosen{n: %d, value: %q}", c.Number, c.Value)
}

// Transport issues Prepare/Accept calls to remote acceptors. Errors
// count as rejections for quorum purposes.
type Transport interface {
	Prepare(to int, args *PrepareArgs, reply *PrepareReply) error
	Accept(to int, args *AcceptArgs, reply *AcceptReply) error
}

func quorum(acceptors int) int {
	return acceptors/2 + 1
}

func init() {
	gob.Register(PrepareArgs{})
	gob.Register(PrepareReply{})
	gob.Register(AcceptArgs{})
	gob.Register(AcceptReply{})
}
