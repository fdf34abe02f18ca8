package cluster

import (
	"time"

	"github.com/thinkermao/accord/paxos"
)

// PaxosPeer is the callable surface an acceptor registers with the
// cluster. *paxos.Acceptor satisfies it.
type PaxosPeer interface {
	Prepare(args *paxos.PrepareArgs, reply *paxos.PrepareReply) error
	Accept(args *paxos.AcceptArgs, reply *paxos.AcceptReply) error
}

// PaxosChannel is the in-memory paxos RPC channel of one endpoint,
// satisfying the paxos.Transport interface.
type PaxosChannel struct {
	channel
}

// NewPaxosChannel build the RPC channel endpoint for proposer from.
// timeout zero picks the default.
func NewPaxosChannel(reg *Registry, from int, timeout time.Duration) *PaxosChannel {
	return &PaxosChannel{channel{reg: reg, from: from, timeout: timeout}}
}

// Prepare delivers a phase-one call to acceptor `to`.
func (c *PaxosChannel) Prepare(to int, args *paxos.PrepareArgs, reply *paxos.PrepareReply) error {
	h, err := c.endpoints(to)
	if err != nil {
		return err
	}
	peer, ok := h.(PaxosPeer)
	if !ok {
		return ErrUnreachable
	}

	wireArgs := &paxos.PrepareArgs{}
	if err := clone(wireArgs, args); err != nil {
		return err
	}

	wireReply := &paxos.PrepareReply{}
	if err := c.invoke(func() error {
		return peer.Prepare(wireArgs, wireReply)
	}); err != nil {
		return err
	}

	return clone(reply, wireReply)
}

// Accept delivers a phase-two call to acceptor `to`.
func (c *PaxosChannel) Accept(to int, args *paxos.AcceptArgs, reply *paxos.AcceptReply) error {
	h, err := c.endpoints(to)
	if err != nil {
		return err
	}
	peer, ok := h.(PaxosPeer)
	if !ok {
		return ErrUnreachable
	}

	wireArgs := &paxos.AcceptArgs{}
	if err := clone(wireArgs, args); err != nil {
		return err
	}

	wireReply := &paxos.AcceptReply{}
	if err := c.invoke(func() error {
		return peer.Accept(wireArgs, wireReply)
	}); err != nil {
		return err
	}

	return clone(reply, wireReply)
}
