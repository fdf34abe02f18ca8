// Command accord-demo walks both protocols through their happy paths
// on an in-memory five node cluster: a raft election with one
// replicated command, then a paxos round with two contending
// proposers.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/api"
	"github.com/thinkermao/accord/cluster"
	"github.com/thinkermao/accord/paxos"
	"github.com/thinkermao/accord/raft"
	"github.com/thinkermao/accord/raft/proto"
	"github.com/thinkermao/accord/utils"
)

const clusterSize = 5

var (
	leaderColor    = color.New(color.FgGreen, color.Bold)
	candidateColor = color.New(color.FgYellow)
	followerColor  = color.New(color.FgCyan)
	headerColor    = color.New(color.Bold)
)

func main() {
	verbose := flag.Bool("v", false, "protocol debug logging")
	apiAddr := flag.String("api", "", "serve the HTTP API of node 0 on this address")
	flag.Parse()

	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	runRaft(*apiAddr)
	fmt.Println()
	runPaxos()
}

func runRaft(apiAddr string) {
	headerColor.Println("== raft: leader election and log replication ==")

	reg := cluster.NewRegistry()
	peers := make([]int, clusterSize)
	for i := range peers {
		peers[i] = i
	}

	nodes := make([]*raft.Node, clusterSize)
	for i := range nodes {
		nodes[i] = raft.NewNode(raft.Config{
			ID:                 i,
			Peers:              peers,
			ElectionTimeoutMin: 150 * time.Millisecond,
			ElectionTimeoutMax: 300 * time.Millisecond,
			HeartbeatInterval:  50 * time.Millisecond,
		}, cluster.NewRaftChannel(reg, i, 50*time.Millisecond))
		reg.Register(i, nodes[i])
	}
	for _, node := range nodes {
		node.Start()
	}
	defer func() {
		for _, node := range nodes {
			node.Stop()
		}
	}()

	if apiAddr != "" {
		srv := api.NewServer(nodes[0], apiAddr)
		go func() {
			if err := srv.Start(); err != nil {
				log.Errorf("api server: %v", err)
			}
		}()
		defer srv.Shutdown()
	}

	fmt.Print("electing")
	ticks := utils.StartTimer(100*time.Millisecond, func(time.Time) {
		fmt.Print(".")
	})
	leader := waitForLeader(nodes)
	close(ticks)
	fmt.Println()

	printRoles(nodes)

	cmd := raftpd.Command{Op: raftpd.OpSet, Key: "x", Value: 1}
	entry, err := nodes[leader].ProposeEntry(cmd)
	if err != nil {
		log.Fatalf("propose to leader %d: %v", leader, err)
	}
	fmt.Printf("leader %d accepted %v at index %d\n", leader, cmd, entry.Index)

	waitForCommit(nodes, entry.Index)
	for _, node := range nodes {
		fmt.Printf("  node %d committed: %v\n", node.ID(), node.CommittedEntries())
	}
}

// waitForLeader polls until some node claims leadership.
func waitForLeader(nodes []*raft.Node) int {
	for {
		for _, node := range nodes {
			if node.Role().IsLeader() {
				return node.ID()
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitForCommit(nodes []*raft.Node, index int) {
	for {
		done := 0
		for _, node := range nodes {
			if node.CommitIndex() >= index {
				done++
			}
		}
		if done == len(nodes) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func printRoles(nodes []*raft.Node) {
	for _, node := range nodes {
		role := node.Role()
		c := followerColor
		switch role {
		case raft.RoleLeader:
			c = leaderColor
		case raft.RoleCandidate:
			c = candidateColor
		}
		fmt.Printf("  node %d  term %-3d %s\n",
			node.ID(), node.Term(), c.Sprint(role))
	}
}

func runPaxos() {
	headerColor.Println("== paxos: single-decree agreement ==")

	reg := cluster.NewRegistry()
	acceptors := make([]int, clusterSize)
	for i := range acceptors {
		acceptors[i] = i
		reg.Register(i, paxos.NewAcceptor(i))
	}

	// Two proposers contend for the same instance; whatever a quorum
	// accepts first is what everyone ends up with.
	red := paxos.NewProposer(0, acceptors, cluster.NewPaxosChannel(reg, 100, 0))
	blue := paxos.NewProposer(1, acceptors, cluster.NewPaxosChannel(reg, 101, 0))

	chosen, err := red.Propose([]byte("red"))
	if err != nil {
		log.Fatalf("propose red: %v", err)
	}
	fmt.Printf("  proposer 0 proposed %q, chosen: %v\n", "red", chosen)

	chosen, err = blue.Propose([]byte("blue"))
	if err != nil {
		log.Fatalf("propose blue: %v", err)
	}
	fmt.Printf("  proposer 1 proposed %q, chosen: %v\n", "blue", chosen)

	// A partition below quorum blocks progress instead of splitting
	// the decision.
	reg.Disconnect(2)
	reg.Disconnect(3)
	reg.Disconnect(4)
	if _, err := blue.Propose([]byte("green")); err != nil {
		fmt.Printf("  with 3/5 acceptors down: %v\n", err)
	}
}
