package paxos

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Proposer drives the two-phase protocol across a fixed set of
// acceptors. Proposal numbers start at the proposer id reduced modulo
// the acceptor count and stride by that count, so proposers whose ids
// fall in distinct residue classes can never mint the same number.
type Proposer struct {
	id        int
	acceptors []int
	transport Transport

	// next proposal number; strictly increasing, unique per proposer.
	counter int
}

// NewProposer build a proposer for one consensus instance over the
// given acceptor ids. Concurrent proposers must carry ids that are
// distinct modulo the acceptor count, or their number sequences
// coincide.
func NewProposer(id int, acceptors []int, transport Transport) *Proposer {
	dup := make([]int, len(acceptors))
	copy(dup, acceptors)

	counter := id
	if len(acceptors) > 0 {
		counter = id % len(acceptors)
	}

	return &Proposer{
		id:        id,
		acceptors: dup,
		transport: transport,
		counter:   counter,
	}
}

// Propose runs Prepare then Accept for value. If any acceptor already
// accepted a value, the highest-numbered one is adopted instead of
// value; whatever a quorum accepts is the chosen value. Either phase
// fails with ErrQuorumNotReached below a majority.
func (p *Proposer) Propose(value []byte) (Chosen, error) {
	n := p.nextNumber()

	chosenValue, err := p.prepare(n, value)
	if err != nil {
		return Chosen{}, err
	}

	return p.accept(n, chosenValue)
}

// nextNumber hands out the next stride-spaced proposal number.
func (p *Proposer) nextNumber() int {
	n := p.counter
	p.counter += len(p.acceptors)
	return n
}

// prepare runs phase one: collect promises from a quorum, then pick
// the value bound to the highest accepted number reported, falling
// back to the proposer's own value.
func (p *Proposer) prepare(n int, value []byte) ([]byte, error) {
	args := &PrepareArgs{ProposalNumber: n}
	replies := make([]PrepareReply, len(p.acceptors))
	granted := make([]bool, len(p.acceptors))

	var wg sync.WaitGroup
	for i, acceptor := range p.acceptors {
		wg.Add(1)
		go func(i, acceptor int) {
			defer wg.Done()

			if err := p.transport.Prepare(acceptor, args, &replies[i]); err != nil {
				log.Debugf("proposer %d prepare n=%d to %d failed: %v",
					p.id, n, acceptor, err)
				return
			}
			granted[i] = replies[i].Promised
		}(i, acceptor)
	}
	wg.Wait()

	promises := 0
	highest := -1
	chosen := value
	for i := range replies {
		if !granted[i] {
			continue
		}
		promises++

		if replies[i].AcceptedValue != nil && replies[i].AcceptedNumber > highest {
			highest = replies[i].AcceptedNumber
			chosen = replies[i].AcceptedValue
		}
	}

	if promises < quorum(len(p.acceptors)) {
		log.Infof("proposer %d prepare n=%d got %d/%d promises",
			p.id, n, promises, quorum(len(p.acceptors)))
		return nil, ErrQuorumNotReached
	}

	if highest >= 0 {
		log.Infof("proposer %d adopts value %q from accepted n=%d",
			p.id, chosen, highest)
	}

	return chosen, nil
}

// accept runs phase two: the value is chosen once a quorum accepts.
func (p *Proposer) accept(n int, value []byte) (Chosen, error) {
	args := &AcceptArgs{ProposalNumber: n, Value: value}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		accepts int
	)

	for _, acceptor := range p.acceptors {
		wg.Add(1)
		go func(acceptor int) {
			defer wg.Done()

			reply := &AcceptReply{}
			if err := p.transport.Accept(acceptor, args, reply); err != nil {
				log.Debugf("proposer %d accept n=%d to %d failed: %v",
					p.id, n, acceptor, err)
				return
			}
			if reply.Accepted {
				mu.Lock()
				accepts++
				mu.Unlock()
			}
		}(acceptor)
	}
	wg.Wait()

	if accepts < quorum(len(p.acceptors)) {
		log.Infof("proposer %d accept n=%d got %d/%d accepts",
			p.id, n, accepts, quorum(len(p.acceptors)))
		return Chosen{}, ErrQuorumNotReached
	}

	log.Infof("proposer %d chose value %q at n=%d", p.id, value, n)

	return Chosen{Value: value, Number: n}, nil
}
