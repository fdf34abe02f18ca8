package verify

import (
	"fmt"
	"testing"
	"time"

	"github.com/thinkermao/accord/simu/env"
)

func sleep(d time.Duration) {
	time.Sleep(d)
}

func TestRaft_InitialElection(t *testing.T) {
	servers := 5
	env := envior.MakeEnvironment(t, servers)
	defer env.Cleanup()

	fmt.Printf("Test: initial election ...\n")

	// is exactly one leader elected?
	leader := env.CheckOneLeader()

	// everyone else settled as follower?
	followers := 0
	for i := 0; i < servers; i++ {
		if _, isLeader := env.GetState(i); !isLeader {
			followers++
		}
	}
	if followers != servers-1 {
		t.Fatalf("expected %d followers, got %d", servers-1, followers)
	}

	// does the leader+term stay the same if there is no network failure?
	term1 := env.CheckTerms()
	sleep(3 * envior.ElectionTimeout)
	term2 := env.CheckTerms()
	if term1 != term2 {
		fmt.Printf("warning: term changed even though there were no failures\n")
	}
	if leader2 := env.CheckOneLeader(); leader2 != leader {
		t.Fatalf("leader changed from %d to %d without failures", leader, leader2)
	}

	fmt.Printf("  ... Passed\n")
}

func TestRaft_ElectionSafety(t *testing.T) {
	servers := 5
	env := envior.MakeEnvironment(t, servers)
	defer env.Cleanup()

	fmt.Printf("Test: at most one leader per term, repeatedly ...\n")

	// CheckOneLeader fails the test the moment any term holds two
	// leaders; probe across several timeout cycles.
	for iters := 0; iters < 5; iters++ {
		env.CheckOneLeader()
	}

	fmt.Printf("  ... Passed\n")
}

func TestRaft_ReElection(t *testing.T) {
	servers := 3
	env := envior.MakeEnvironment(t, servers)
	defer env.Cleanup()

	fmt.Printf("Test: election after network failure ...\n")

	leader1 := env.CheckOneLeader()

	// if the leader disconnects, a new one should be elected.
	env.Disconnect(leader1)
	leader2 := env.CheckOneLeader()
	if leader2 == leader1 {
		t.Fatalf("disconnected node %d still counted as leader", leader1)
	}

	// the old leader rejoins at a stale term and must step down.
	env.Connect(leader1)
	env.CheckOneLeader()
	sleep(3 * envior.ElectionTimeout)
	if _, isLeader := env.GetState(leader1); isLeader {
		t.Fatal("old leader kept leadership across a newer term")
	}

	// if there's no quorum, no leader should be elected.
	leader3 := env.CheckOneLeader()
	env.Disconnect(leader3)
	env.Disconnect((leader3 + 1) % servers)
	sleep(3 * envior.ElectionTimeout)
	env.CheckNoLeader()

	// quorum back, leadership back.
	env.Connect((leader3 + 1) % servers)
	env.CheckOneLeader()

	fmt.Printf("  ... Passed\n")
}
