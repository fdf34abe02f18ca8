// Package envior is the simulation harness for the protocol property
// tests: a registry-backed cluster of raft nodes with partition
// control and agreement checkers.
package envior

import (
	"math/rand"
	"testing"
	"time"

	"github.com/thinkermao/accord/cluster"
	"github.com/thinkermao/accord/raft"
	"github.com/thinkermao/accord/raft/proto"
)

// ElectionTimeout is the sleep unit of the leadership checkers, long
// enough for one full election to settle.
const ElectionTimeout = 300 * time.Millisecond

const (
	electionMin   = 150 * time.Millisecond
	electionMax   = 300 * time.Millisecond
	heartbeatTick = 50 * time.Millisecond
	callTimeout   = 30 * time.Millisecond
)

// Environment support environment for test.
type Environment struct {
	t          *testing.T
	reg        *cluster.Registry
	totalNodes int
	nodes      []*raft.Node
}

// MakeEnvironment build and start a fully connected cluster of num
// raft nodes. Every node gets its own seeded randomness so a failing
// run replays.
func MakeEnvironment(t *testing.T, num int) *Environment {
	env := &Environment{
		t:          t,
		reg:        cluster.NewRegistry(),
		totalNodes: num,
	}

	peers := make([]int, num)
	for i := 0; i < num; i++ {
		peers[i] = i
	}

	for i := 0; i < num; i++ {
		node := raft.NewNode(raft.Config{
			ID:                 i,
			Peers:              peers,
			ElectionTimeoutMin: electionMin,
			ElectionTimeoutMax: electionMax,
			HeartbeatInterval:  heartbeatTick,
			Rand:               rand.New(rand.NewSource(int64(i) + 1)),
		}, cluster.NewRaftChannel(env.reg, i, callTimeout))

		env.reg.Register(i, node)
		env.nodes = append(env.nodes, node)
	}

	for _, node := range env.nodes {
		node.Start()
	}

	return env
}

// Cleanup stop every node.
func (env *Environment) Cleanup() {
	for _, node := range env.nodes {
		node.Stop()
	}
}

// Connect attach server i to the net.
func (env *Environment) Connect(i int) {
	env.reg.Reconnect(i)
}

// Disconnect detach server i from the net.
func (env *Environment) Disconnect(i int) {
	env.reg.Disconnect(i)
}

// Connected report whether server i is attached.
func (env *Environment) Connected(i int) bool {
	return env.reg.Connected(i)
}

// GetState return (term, isLeader) of server i.
func (env *Environment) GetState(i int) (int, bool) {
	node := env.nodes[i]
	return node.Term(), node.Role().IsLeader()
}

// Propose submit cmd to server i; fails unless i is the leader.
func (env *Environment) Propose(i int, cmd raftpd.Command) (int, error) {
	entry, err := env.nodes[i].ProposeEntry(cmd)
	if err != nil {
		return -1, err
	}
	return entry.Index, nil
}

// CheckOneLeader check that there's exactly one leader.
// try a few times in case re-elections are needed.
func (env *Environment) CheckOneLeader() int {
	for iters := 0; iters < 10; iters++ {
		time.Sleep(ElectionTimeout)

		leaders := make(map[int][]int)
		for i := 0; i < env.totalNodes; i++ {
			if !env.Connected(i) {
				continue
			}
			if term, isLeader := env.GetState(i); isLeader {
				leaders[term] = append(leaders[term], i)
			}
		}

		lastTermWithLeader := -1
		for term, ids := range leaders {
			if len(ids) > 1 {
				env.t.Fatalf("term %d has %d (>1) leaders", term, len(ids))
			}
			if term > lastTermWithLeader {
				lastTermWithLeader = term
			}
		}

		if len(leaders) != 0 {
			return leaders[lastTermWithLeader][0]
		}
	}
	env.t.Fatalf("expected one leader, got none")
	return -1
}

// CheckTerms check that every connected server agrees on the term.
func (env *Environment) CheckTerms() int {
	term := -1
	for i := 0; i < env.totalNodes; i++ {
		if !env.Connected(i) {
			continue
		}
		xterm, _ := env.GetState(i)
		if term == -1 {
			term = xterm
		} else if term != xterm {
			env.t.Fatalf("servers disagree on term")
		}
	}
	return term
}

// CheckNoLeader check that no connected server claims leadership.
func (env *Environment) CheckNoLeader() {
	for i := 0; i < env.totalNodes; i++ {
		if !env.Connected(i) {
			continue
		}
		if _, isLeader := env.GetState(i); isLeader {
			env.t.Fatalf("expected no leader, but %v claims to be leader", i)
		}
	}
}

// CommittedNumber how many servers think the entry at index is
// committed, and what command they committed there.
func (env *Environment) CommittedNumber(index int) (int, raftpd.Command) {
	count := 0
	var cmd raftpd.Command
	for i, node := range env.nodes {
		entries := node.CommittedEntries()
		if index >= len(entries) {
			continue
		}
		if count > 0 && entries[index].Command != cmd {
			env.t.Fatalf("committed values do not match: index %v, %v, %v (server %d)",
				index, cmd, entries[index].Command, i)
		}
		count++
		cmd = entries[index].Command
	}
	return count, cmd
}

// Wait for at least n servers to commit index, but don't wait forever.
// A startTerm above -1 aborts once any server moves past it.
func (env *Environment) Wait(index int, n int, startTerm int) raftpd.Command {
	to := 10 * time.Millisecond
	for iters := 0; iters < 30; iters++ {
		nd, _ := env.CommittedNumber(index)
		if nd >= n {
			break
		}
		time.Sleep(to)
		if to < time.Second {
			to *= 2
		}
		if startTerm > -1 {
			for _, node := range env.nodes {
				if node.Term() > startTerm {
					// someone has moved on; can no longer
					// guarantee that we'll "win".
					return raftpd.Command{}
				}
			}
		}
	}

	nd, cmd := env.CommittedNumber(index)
	if nd < n {
		env.t.Fatalf("only %d decided for index %d; wanted %d",
			nd, index, n)
	}
	return cmd
}

// One do a complete agreement: submit cmd somewhere, possibly picking
// the wrong leader first, and re-submit until expectedServers commit
// it. Gives up after about ten seconds. Returns the index.
func (env *Environment) One(cmd raftpd.Command, expectedServers int) int {
	t0 := time.Now()
	starts := 0
	for time.Since(t0).Seconds() < 10 {
		// try all the servers, maybe one is the leader.
		index := -1
		for si := 0; si < env.totalNodes; si++ {
			starts = (starts + 1) % env.totalNodes
			if !env.Connected(starts) {
				continue
			}
			if idx, err := env.Propose(starts, cmd); err == nil {
				index = idx
				break
			}
		}

		if index == -1 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		// somebody claimed to be the leader and to have appended
		// our command; wait a while for agreement.
		t1 := time.Now()
		for time.Since(t1).Seconds() < 2 {
			nd, cmd1 := env.CommittedNumber(index)
			if nd > 0 && nd >= expectedServers && cmd1 == cmd {
				return index
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	env.t.Fatalf("One(%v) failed to reach agreement", cmd)
	return -1
}
