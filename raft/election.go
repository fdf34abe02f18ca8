package raft

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/raft/proto"
	"github.com/thinkermao/accord/utils"
)

// becomeCandidate starts a fresh candidacy: bump the term, vote for
// self, rearm the election timer so a failed election retries, and
// snapshot the vote request. Callers hold mu.
func (n *Node) becomeCandidate() *raftpd.RequestVoteArgs {
	utils.Assert(n.role != RoleLeader,
		"%d invalid transition [Leader => Candidate]", n.id)

	n.term++
	n.role = RoleCandidate
	n.vote = n.id
	n.leaderID = raftpd.None
	n.resetElectionTimer()

	log.Infof("%d become candidate at term %d", n.id, n.term)

	return &raftpd.RequestVoteArgs{
		Term:         n.term,
		CandidateID:  n.id,
		LastLogIndex: n.log.lastIndex(),
		LastLogTerm:  n.log.lastTerm(),
	}
}

// campaign fans RequestVote out to every peer in parallel and steps up
// on a quorum of grants within the same term. Unreachable peers count
// as rejections. A lost election leaves the node follower until the
// next timeout fires a higher-term candidacy.
func (n *Node) campaign(args *raftpd.RequestVoteArgs) error {
	var (
		wg     sync.WaitGroup
		voteMu sync.Mutex
		votes  = 1 // self
	)

	for _, peer := range n.peers {
		wg.Add(1)
		go func(peer int) {
			defer wg.Done()

			reply := &raftpd.RequestVoteReply{}
			if err := n.transport.RequestVote(peer, args, reply); err != nil {
				log.Debugf("%d request vote to %d failed: %v", n.id, peer, err)
				return
			}

			n.mu.Lock()
			if reply.Term > n.term {
				n.stepDown(reply.Term, raftpd.None)
				n.resetElectionTimer()
			}
			n.mu.Unlock()

			if reply.VoteGranted {
				voteMu.Lock()
				votes++
				voteMu.Unlock()
			}
		}(peer)
	}

	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != RoleCandidate || n.term != args.Term {
		// someone with a higher term showed up mid-election.
		return nil
	}

	if votes < n.quorum() {
		log.Infof("%d [term: %d] lost election with %d/%d votes",
			n.id, n.term, votes, n.quorum())
		n.role = RoleFollower
		return ErrQuorumNotReached
	}

	n.becomeLeader()
	return nil
}

// becomeLeader initializes the per-peer replication state, stops the
// election timer and launches the heartbeat loop with an immediate
// empty append to assert authority. Callers hold mu.
func (n *Node) becomeLeader() {
	utils.Assert(n.role == RoleCandidate,
		"%d invalid transition [%v => Leader]", n.id, n.role)
	utils.Assert(n.vote == n.id, "%d leader must vote itself", n.id)

	n.role = RoleLeader
	n.leaderID = n.id
	n.electionTimer.Stop()

	n.nextIndex = make(map[int]int, len(n.peers))
	n.matchIndex = make(map[int]int, len(n.peers))
	for _, peer := range n.peers {
		n.nextIndex[peer] = n.log.lastIndex() + 1
		n.matchIndex[peer] = -1
	}

	log.Infof("%d become leader at term %d [lastIdx: %d, commit: %d]",
		n.id, n.term, n.log.lastIndex(), n.log.commitIndex)

	n.startHeartbeat()
}

// RequestVote is the voter half of the election protocol. It adopts
// any larger term before deciding, grants at most one vote per term,
// and refuses candidates whose log is behind its own. §5.2, §5.4.1
func (n *Node) RequestVote(args *raftpd.RequestVoteArgs, reply *raftpd.RequestVoteReply) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term > n.term {
		n.stepDown(args.Term, raftpd.None)
		// Rearm even when the vote below is refused: an ex-leader's
		// timer was stopped, and it must be able to campaign again.
		n.resetElectionTimer()
	}

	reply.Term = n.term
	reply.VoteGranted = false

	if args.Term < n.term {
		log.Debugf("%d [term: %d] reject stale vote request from %d [term: %d]",
			n.id, n.term, args.CandidateID, args.Term)
		return nil
	}

	if (n.vote == raftpd.None || n.vote == args.CandidateID) &&
		n.log.isUpToDate(args.LastLogIndex, args.LastLogTerm) {
		n.vote = args.CandidateID
		reply.VoteGranted = true
		n.resetElectionTimer()

		log.Infof("%d [term: %d] vote for %d", n.id, n.term, args.CandidateID)
	} else {
		log.Debugf("%d [term: %d, voted: %d] refuse vote for %d [idx: %d, logterm: %d]",
			n.id, n.term, n.vote, args.CandidateID, args.LastLogIndex, args.LastLogTerm)
	}

	return nil
}
