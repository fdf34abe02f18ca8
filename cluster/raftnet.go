package cluster

import (
	"time"

	"github.com/thinkermao/accord/raft/proto"
)

// RaftPeer is the callable surface a raft node registers with the
// cluster. *raft.Node satisfies it.
type RaftPeer interface {
	RequestVote(args *raftpd.RequestVoteArgs, reply *raftpd.RequestVoteReply) error
	AppendEntries(args *raftpd.AppendEntriesArgs, reply *raftpd.AppendEntriesReply) error
}

// RaftChannel is the in-memory raft RPC channel of one endpoint. It
// satisfies the raft.Transport interface: reliable, ordered
// point-to-point calls that may fail or time out.
type RaftChannel struct {
	channel
}

// NewRaftChannel build the RPC channel endpoint for node from.
// timeout zero picks the default.
func NewRaftChannel(reg *Registry, from int, timeout time.Duration) *RaftChannel {
	return &RaftChannel{channel{reg: reg, from: from, timeout: timeout}}
}

// RequestVote delivers a RequestVote call to peer `to`.
func (c *RaftChannel) RequestVote(to int, args *raftpd.RequestVoteArgs, reply *raftpd.RequestVoteReply) error {
	h, err := c.endpoints(to)
	if err != nil {
		return err
	}
	peer, ok := h.(RaftPeer)
	if !ok {
		return ErrUnreachable
	}

	wireArgs := &raftpd.RequestVoteArgs{}
	if err := clone(wireArgs, args); err != nil {
		return err
	}

	wireReply := &raftpd.RequestVoteReply{}
	if err := c.invoke(func() error {
		return peer.RequestVote(wireArgs, wireReply)
	}); err != nil {
		return err
	}

	return clone(reply, wireReply)
}

// AppendEntries delivers an AppendEntries call to peer `to`.
func (c *RaftChannel) AppendEntries(to int, args *raftpd.AppendEntriesArgs, reply *raftpd.AppendEntriesReply) error {
	h, err := c.endpoints(to)
	if err != nil {
		return err
	}
	peer, ok := h.(RaftPeer)
	if !ok {
		return ErrUnreachable
	}

	wireArgs := &raftpd.AppendEntriesArgs{}
	if err := clone(wireArgs, args); err != nil {
		return err
	}

	wireReply := &raftpd.AppendEntriesReply{}
	if err := c.invoke(func() error {
		return peer.AppendEntries(wireArgs, wireReply)
	}); err != nil {
		return err
	}

	return clone(reply, wireReply)
}
