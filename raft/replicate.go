package raft

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/raft/proto"
	"github.com/thinkermao/accord/utils"
)

// startHeartbeat launches the leader's replication loop. The first
// round fires immediately so followers learn about the new leader
// before any election timer can expire. Callers hold mu.
func (n *Node) startHeartbeat() {
	var ctx context.Context
	ctx, n.heartbeatCancel = context.WithCancel(context.Background())

	go n.heartbeatLoop(ctx)
}

// heartbeatLoop drives a replication round every heartbeat interval
// until the leader steps down or the node stops.
func (n *Node) heartbeatLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			n.replicateRound()
			timer.Reset(n.heartbeatTick)
		case <-ctx.Done():
			log.Debugf("%d heartbeat loop stopping", n.id)
			return
		case <-n.stopCh:
			return
		}
	}
}

// replicateRound ships log entries (or an empty heartbeat) to every
// peer in parallel and waits for the round to settle.
func (n *Node) replicateRound() {
	n.mu.Lock()
	if n.role != RoleLeader {
		n.mu.Unlock()
		return
	}
	peers := n.peers
	n.mu.Unlock()

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer int) {
			defer wg.Done()
			n.replicateTo(peer)
		}(peer)
	}
	wg.Wait()
}

// replicateTo sends entries from nextIndex[peer] onward. The state
// snapshot is taken under mu, the RPC runs unlocked, and the reply is
// applied back under mu only if the term and role are unchanged.
func (n *Node) replicateTo(peer int) {
	n.mu.Lock()

	if n.role != RoleLeader {
		n.mu.Unlock()
		return
	}

	next := n.nextIndex[peer]
	args := &raftpd.AppendEntriesArgs{
		Term:         n.term,
		LeaderID:     n.id,
		PrevLogIndex: next - 1,
		PrevLogTerm:  n.log.term(next - 1),
		Entries:      n.log.slice(next),
		LeaderCommit: n.log.commitIndex,
	}

	n.mu.Unlock()

	reply := &raftpd.AppendEntriesReply{}
	if err := n.transport.AppendEntries(peer, args, reply); err != nil {
		log.Debugf("%d append entries to %d failed: %v", n.id, peer, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != RoleLeader || n.term != args.Term {
		// stale round from a previous leadership.
		return
	}

	if reply.Term > n.term {
		log.Infof("%d [term: %d] step down, %d has newer term %d",
			n.id, n.term, peer, reply.Term)
		n.stepDown(reply.Term, raftpd.None)
		n.resetElectionTimer()
		return
	}

	if reply.Success {
		match := args.PrevLogIndex + len(args.Entries)
		if match > n.matchIndex[peer] {
			n.matchIndex[peer] = match
			n.nextIndex[peer] = match + 1
			n.poll(match)
		}
	} else {
		// log inconsistency: back nextIndex off and retry on the
		// next round, floor zero.
		n.nextIndex[peer] = utils.MaxInt(0, utils.MinInt(n.nextIndex[peer], next)-1)

		log.Debugf("%d [term: %d] peer %d rejected append, nextIndex backs to %d",
			n.id, n.term, peer, n.nextIndex[peer])
	}
}

// poll commits idx once a quorum of match indexes reached it.
// Only entries of the current term commit by counting; older entries
// commit indirectly through the log matching property. §5.3, §5.4.2
func (n *Node) poll(idx int) {
	if idx <= n.log.commitIndex || n.log.term(idx) != n.term {
		// already committed, or a stale-term entry.
		return
	}

	count := 1 // leader holds every appended entry
	for _, peer := range n.peers {
		if n.matchIndex[peer] >= idx {
			count++
		}
	}

	if count >= n.quorum() {
		n.log.commitTo(idx)
	}
}

// AppendEntries is the follower half of replication. Any message at
// the current or newer term re-asserts the sender's leadership: the
// receiver becomes follower and resets its election timer before the
// log consistency check runs. §5.3
func (n *Node) AppendEntries(args *raftpd.AppendEntriesArgs, reply *raftpd.AppendEntriesReply) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term < n.term {
		log.Debugf("%d [term: %d] reject stale append from %d [term: %d]",
			n.id, n.term, args.LeaderID, args.Term)
		reply.Term = n.term
		reply.Success = false
		return nil
	}

	utils.Assert(n.role != RoleLeader || args.Term > n.term,
		"%d two leaders at term %d", n.id, n.term)

	n.stepDown(args.Term, args.LeaderID)
	n.resetElectionTimer()

	reply.Term = n.term

	if !n.log.tryAppend(args.PrevLogIndex, args.PrevLogTerm, args.Entries) {
		reply.Success = false
		return nil
	}

	// Commit no further than entries this call verified; the local
	// tail past that point has not been checked against the leader.
	lastNew := args.PrevLogIndex + len(args.Entries)
	n.log.commitTo(utils.MinInt(args.LeaderCommit, lastNew))

	reply.Success = true
	return nil
}
