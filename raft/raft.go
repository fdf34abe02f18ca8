package raft

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/raft/proto"
	"github.com/thinkermao/accord/utils"
)

// StateRole is the role of a node inside the cluster.
type StateRole int

const (
	RoleFollower StateRole = iota
	RoleCandidate
	RoleLeader
)

var stateRoleString = []string{
	"Follower",
	"Candidate",
	"Leader",
}

func (role StateRole) String() string {
	return stateRoleString[role]
}

// IsLeader reports whether the role is leader.
func (role StateRole) IsLeader() bool {
	return role == RoleLeader
}

// Transport issues point-to-point RPC calls to remote peers. Calls
// block until the reply arrives or the channel gives up; any returned
// error counts as a rejection for quorum purposes, never as fatal.
type Transport interface {
	RequestVote(to int, args *raftpd.RequestVoteArgs, reply *raftpd.RequestVoteReply) error
	AppendEntries(to int, args *raftpd.AppendEntriesArgs, reply *raftpd.AppendEntriesReply) error
}

// Config given information to build a raft node.
type Config struct {
	// ID is the identity of the local raft. IDs are small
	// non-negative integers handed out by the cluster registry.
	ID int

	// Peers lists every member of the group, the local node included.
	Peers []int

	// ElectionTimeoutMin/Max bound the randomized election timeout.
	// A fresh timeout is drawn uniformly from [min, max) whenever the
	// timer resets, to minimize split votes.
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration

	// HeartbeatInterval is the leader's replication period. It must be
	// shorter than ElectionTimeoutMin so healthy followers never time out.
	HeartbeatInterval time.Duration

	// Rand is the node's private randomness for timeout jitter. Nil
	// falls back to a time-seeded source; tests inject seeded ones.
	Rand *rand.Rand
}

// Verify check whether fields of Config is valid.
func (c *Config) Verify() {
	if c.ID < 0 {
		log.Panicf("ID cannot be negative")
	}

	if c.HeartbeatInterval <= 0 {
		log.Panicf("heartbeat interval must be great than zero")
	}

	if c.ElectionTimeoutMin <= c.HeartbeatInterval {
		log.Panicf("election timeout must be great than heartbeat interval")
	}

	if c.ElectionTimeoutMax <= c.ElectionTimeoutMin {
		log.Panicf("election timeout range must not be empty")
	}
}

// Node is one member of a raft group. All mutable state is guarded by
// mu; handlers, the election timer and replication goroutines contend
// on it, so every state change is serialized (single writer at a time)
// while outbound RPC calls run outside the lock in parallel.
type Node struct {
	mu sync.Mutex

	id    int
	role  StateRole
	term  int
	vote  int // voted-for id, scoped to term; None while unset
	peers []int

	leaderID int // last known leader, None while unknown

	log *raftLog

	// Leader bookkeeping, reinitialized on every election win.
	nextIndex  map[int]int
	matchIndex map[int]int

	// Timers. The election timer is owned by the run loop; role
	// transitions reset or stop it synchronously under mu. The
	// heartbeat loop is cancelled through heartbeatCancel when the
	// leader steps down.
	electionTimer   *time.Timer
	electionMin     time.Duration
	electionMax     time.Duration
	heartbeatTick   time.Duration
	heartbeatCancel context.CancelFunc

	rnd *rand.Rand

	transport Transport
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewNode build a stopped node from config. Call Start to arm the
// election timer.
func NewNode(cfg Config, transport Transport) *Node {
	cfg.Verify()

	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	peers := make([]int, 0, len(cfg.Peers))
	for _, id := range cfg.Peers {
		if id != cfg.ID {
			peers = append(peers, id)
		}
	}

	n := &Node{
		id:            cfg.ID,
		role:          RoleFollower,
		term:          0,
		vote:          raftpd.None,
		leaderID:      raftpd.None,
		peers:         peers,
		log:           makeLog(cfg.ID),
		electionMin:   cfg.ElectionTimeoutMin,
		electionMax:   cfg.ElectionTimeoutMax,
		heartbeatTick: cfg.HeartbeatInterval,
		rnd:           rnd,
		transport:     transport,
		stopCh:        make(chan struct{}),
	}

	log.Debugf("%d build raft node [peers: %v, election: %v-%v, heartbeat: %v]",
		n.id, peers, n.electionMin, n.electionMax, n.heartbeatTick)

	return n
}

// Start arms the election timer and launches the run loop.
func (n *Node) Start() {
	n.mu.Lock()
	n.electionTimer = time.NewTimer(n.electionTimeout())
	n.mu.Unlock()

	go n.run()
}

// Stop halts timers and background loops. In-flight RPC handlers may
// still complete; the node stays a harmless follower afterwards.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}
	n.stepDown(n.term, raftpd.None)
}

// ID return the node identity.
func (n *Node) ID() int {
	return n.id
}

// Role return the current role.
func (n *Node) Role() StateRole {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// Term return the current term.
func (n *Node) Term() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.term
}

// LeaderID return the last known leader, raftpd.None while unknown.
func (n *Node) LeaderID() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// CommitIndex return the index of the last committed entry, -1 while
// nothing has been committed.
func (n *Node) CommitIndex() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.log.commitIndex
}

// CommittedEntries return a copy of the committed prefix of the log.
func (n *Node) CommittedEntries() []raftpd.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.log.committed()
}

// ProposeEntry appends a client command to the leader's log and runs
// one replication round. Followers and candidates reject the call with
// ErrNotLeader; the client retries against the current leader.
func (n *Node) ProposeEntry(cmd raftpd.Command) (raftpd.Entry, error) {
	n.mu.Lock()

	if n.role != RoleLeader {
		n.mu.Unlock()
		return raftpd.Entry{}, ErrNotLeader
	}

	entry := raftpd.Entry{
		Term:    n.term,
		Index:   n.log.lastIndex() + 1,
		Command: cmd,
	}
	n.log.append(entry)

	log.Infof("%d [term: %d] leader accepted entry [idx: %d, cmd: %v]",
		n.id, n.term, entry.Index, cmd)

	n.mu.Unlock()

	n.replicateRound()

	return entry, nil
}

// run owns the election timer. The timer fires only while the node is
// not leader; becomeLeader stops it and stepDown rearms it.
func (n *Node) run() {
	for {
		select {
		case <-n.electionTimer.C:
			n.mu.Lock()
			if n.role == RoleLeader {
				// stepped up between fire and handling; ignore.
				n.mu.Unlock()
				continue
			}
			args := n.becomeCandidate()
			n.mu.Unlock()

			n.campaign(args)
		case <-n.stopCh:
			log.Debugf("%d run loop exiting", n.id)
			return
		}
	}
}

// electionTimeout draws a fresh randomized timeout.
func (n *Node) electionTimeout() time.Duration {
	return n.electionMin +
		time.Duration(n.rnd.Int63n(int64(n.electionMax-n.electionMin)))
}

// resetElectionTimer rearms the election timer with fresh jitter.
// Callers hold mu.
func (n *Node) resetElectionTimer() {
	if n.electionTimer == nil {
		// not started; nothing to arm.
		return
	}
	n.electionTimer.Stop()
	n.electionTimer.Reset(n.electionTimeout())
}

// stepDown moves the node to follower at term, cancelling any leader
// or candidate activity. Vote is cleared only when the term advances,
// keeping votedFor scoped to the current term. Callers hold mu.
func (n *Node) stepDown(term int, leaderID int) {
	utils.Assert(term >= n.term, "%d term must never decrease [%d => %d]",
		n.id, n.term, term)

	if term > n.term {
		n.term = term
		n.vote = raftpd.None
	}
	n.leaderID = leaderID

	if n.heartbeatCancel != nil {
		n.heartbeatCancel()
		n.heartbeatCancel = nil
	}

	if n.role != RoleFollower {
		log.Infof("%d become follower at term %d", n.id, n.term)
	}
	n.role = RoleFollower
}

// quorum return the majority threshold of the whole group.
func (n *Node) quorum() int {
	return (len(n.peers)+1)/2 + 1
}
