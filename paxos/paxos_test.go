package paxos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localTransport delivers calls straight to in-process acceptors.
// Absent ids simulate unreachable peers.
type localTransport struct {
	acceptors map[int]*Acceptor
}

func makeLocalTransport(ids ...int) *localTransport {
	tr := &localTransport{acceptors: make(map[int]*Acceptor, len(ids))}
	for _, id := range ids {
		tr.acceptors[id] = NewAcceptor(id)
	}
	return tr
}

func (t *localTransport) Prepare(to int, args *PrepareArgs, reply *PrepareReply) error {
	a, ok := t.acceptors[to]
	if !ok {
		return ErrQuorumNotReached // stands in for any transport error
	}
	return a.Prepare(args, reply)
}

func (t *localTransport) Accept(to int, args *AcceptArgs, reply *AcceptReply) error {
	a, ok := t.acceptors[to]
	if !ok {
		return ErrQuorumNotReached
	}
	return a.Accept(args, reply)
}

func (t *localTransport) drop(id int) {
	delete(t.acceptors, id)
}

func TestAcceptorPromise(t *testing.T) {
	a := NewAcceptor(0)

	reply := &PrepareReply{}
	require.NoError(t, a.Prepare(&PrepareArgs{ProposalNumber: 5}, reply))
	assert.True(t, reply.Promised)
	assert.Equal(t, -1, reply.AcceptedNumber)
	assert.Nil(t, reply.AcceptedValue)

	// Equal or lower numbers are refused once 5 is promised.
	reply = &PrepareReply{}
	require.NoError(t, a.Prepare(&PrepareArgs{ProposalNumber: 5}, reply))
	assert.False(t, reply.Promised)

	reply = &PrepareReply{}
	require.NoError(t, a.Prepare(&PrepareArgs{ProposalNumber: 3}, reply))
	assert.False(t, reply.Promised)

	promised, accepted, value := a.State()
	assert.Equal(t, 5, promised)
	assert.Equal(t, -1, accepted)
	assert.Nil(t, value)
}

func TestAcceptorAccept(t *testing.T) {
	a := NewAcceptor(0)

	reply := &PrepareReply{}
	require.NoError(t, a.Prepare(&PrepareArgs{ProposalNumber: 5}, reply))
	require.True(t, reply.Promised)

	// The promised number itself is acceptable.
	acc := &AcceptReply{}
	require.NoError(t, a.Accept(&AcceptArgs{ProposalNumber: 5, Value: []byte("red")}, acc))
	assert.True(t, acc.Accepted)

	// Anything below the promise is not.
	acc = &AcceptReply{}
	require.NoError(t, a.Accept(&AcceptArgs{ProposalNumber: 4, Value: []byte("blue")}, acc))
	assert.False(t, acc.Accepted)

	promised, accepted, value := a.State()
	assert.Equal(t, 5, promised)
	assert.Equal(t, 5, accepted)
	assert.Equal(t, []byte("red"), value)
}

func TestAcceptorReportsAcceptedOnRefusal(t *testing.T) {
	a := NewAcceptor(0)

	require.NoError(t, a.Prepare(&PrepareArgs{ProposalNumber: 8}, &PrepareReply{}))
	require.NoError(t, a.Accept(&AcceptArgs{ProposalNumber: 8, Value: []byte("red")}, &AcceptReply{}))

	// A refused Prepare still reports the accepted pair, so a slow
	// proposer learns what may already be chosen.
	reply := &PrepareReply{}
	require.NoError(t, a.Prepare(&PrepareArgs{ProposalNumber: 2}, reply))
	assert.False(t, reply.Promised)
	assert.Equal(t, 8, reply.AcceptedNumber)
	assert.Equal(t, []byte("red"), reply.AcceptedValue)
}

func TestProposalNumbersStride(t *testing.T) {
	acceptors := []int{0, 1, 2, 3, 4}

	a := NewProposer(1, acceptors, nil)
	b := NewProposer(3, acceptors, nil)

	assert.Equal(t, 1, a.nextNumber())
	assert.Equal(t, 6, a.nextNumber())
	assert.Equal(t, 11, a.nextNumber())

	assert.Equal(t, 3, b.nextNumber())
	assert.Equal(t, 8, b.nextNumber())

	// Ids beyond the acceptor count fold into their residue class, so
	// the sequence stays stride-aligned.
	c := NewProposer(7, acceptors, nil)
	assert.Equal(t, 2, c.nextNumber())
	assert.Equal(t, 7, c.nextNumber())
}

func TestProposeSimple(t *testing.T) {
	tr := makeLocalTransport(0, 1, 2)
	p := NewProposer(0, []int{0, 1, 2}, tr)

	chosen, err := p.Propose([]byte("red"))
	require.NoError(t, err)
	assert.Equal(t, []byte("red"), chosen.Value)
	assert.Equal(t, 0, chosen.Number)

	for _, a := range tr.acceptors {
		_, accepted, value := a.State()
		assert.Equal(t, 0, accepted)
		assert.Equal(t, []byte("red"), value)
	}
}

func TestProposeWithMinorityDown(t *testing.T) {
	tr := makeLocalTransport(0, 1, 2, 3, 4)
	tr.drop(3)
	tr.drop(4)

	p := NewProposer(2, []int{0, 1, 2, 3, 4}, tr)
	chosen, err := p.Propose([]byte("red"))
	require.NoError(t, err)
	assert.Equal(t, []byte("red"), chosen.Value)
}

func TestProposeQuorumNotReached(t *testing.T) {
	tr := makeLocalTransport(0, 1, 2, 3, 4)
	tr.drop(1)
	tr.drop(2)
	tr.drop(3)

	p := NewProposer(0, []int{0, 1, 2, 3, 4}, tr)
	_, err := p.Propose([]byte("red"))
	assert.Equal(t, ErrQuorumNotReached, err)
}

func TestProposeAdoptsAcceptedValue(t *testing.T) {
	tr := makeLocalTransport(0, 1, 2)
	acceptors := []int{0, 1, 2}

	first := NewProposer(0, acceptors, tr)
	_, err := first.Propose([]byte("red"))
	require.NoError(t, err)

	// A later proposer with a higher number must carry the already
	// chosen value, not its own.
	second := NewProposer(1, acceptors, tr)
	chosen, err := second.Propose([]byte("blue"))
	require.NoError(t, err)
	assert.Equal(t, []byte("red"), chosen.Value)
	assert.Equal(t, 1, chosen.Number)
}

func TestDuelingProposers(t *testing.T) {
	tr := makeLocalTransport(0, 1, 2, 3, 4)
	acceptors := []int{0, 1, 2, 3, 4}

	a := NewProposer(0, acceptors, tr)
	b := NewProposer(1, acceptors, tr)

	// A finishes its prepare phase, then B prepares with a higher
	// number before A's accept round lands.
	na := a.nextNumber()
	value, err := a.prepare(na, []byte("red"))
	require.NoError(t, err)

	nb := b.nextNumber()
	_, err = b.prepare(nb, []byte("blue"))
	require.NoError(t, err)

	// A's accepts now arrive below every promise and are refused.
	_, err = a.accept(na, value)
	assert.Equal(t, ErrQuorumNotReached, err)

	// B completes; its value is the single chosen one.
	chosen, err := b.accept(nb, []byte("blue"))
	require.NoError(t, err)
	assert.Equal(t, []byte("blue"), chosen.Value)

	// A retry by A adopts the chosen value instead of reproposing red.
	chosen, err = a.Propose([]byte("red"))
	require.NoError(t, err)
	assert.Equal(t, []byte("blue"), chosen.Value)
}
