package paxos

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/accord/utils"
)

// Acceptor is the passive, safety-bearing role of the protocol. Its
// two numbers never decrease: once it promises n it refuses anything
// below n, and once it accepts (n, v) it reports that pair to every
// later Prepare so the value survives proposer churn.
//
// An acceptor lives for one consensus instance; proposal numbers are
// never reused across instances.
type Acceptor struct {
	mu sync.Mutex

	id             int
	promisedNumber int
	acceptedNumber int
	acceptedValue  []byte
}

// NewAcceptor build an acceptor with nothing promised or accepted.
func NewAcceptor(id int) *Acceptor {
	return &Acceptor{
		id:             id,
		promisedNumber: -1,
		acceptedNumber: -1,
		acceptedValue:  nil,
	}
}

// ID return the acceptor identity.
func (a *Acceptor) ID() int {
	return a.id
}

// Prepare grants a promise iff the proposal number is strictly above
// every number promised so far. The currently accepted pair rides on
// the reply regardless of the outcome.
func (a *Acceptor) Prepare(args *PrepareArgs, reply *PrepareReply) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	reply.AcceptedNumber = a.acceptedNumber
	reply.AcceptedValue = a.acceptedValue

	if args.ProposalNumber > a.promisedNumber {
		a.promisedNumber = args.ProposalNumber
		reply.Promised = true

		log.Debugf("acceptor %d promise n=%d [accepted: %d]",
			a.id, args.ProposalNumber, a.acceptedNumber)
	} else {
		reply.Promised = false

		log.Debugf("acceptor %d refuse prepare n=%d [promised: %d]",
			a.id, args.ProposalNumber, a.promisedNumber)
	}

	return nil
}

// Accept grants iff no higher promise has been made; equality is the
// whole point of the earlier promise. On grant both numbers move to n.
func (a *Acceptor) Accept(args *AcceptArgs, reply *AcceptReply) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if args.ProposalNumber >= a.promisedNumber {
		utils.Assert(args.ProposalNumber >= a.acceptedNumber,
			"acceptor %d accepted number must never decrease [%d => %d]",
			a.id, a.acceptedNumber, args.ProposalNumber)

		a.promisedNumber = args.ProposalNumber
		a.acceptedNumber = args.ProposalNumber
		a.acceptedValue = args.Value
		reply.Accepted = true

		log.Debugf("acceptor %d accept n=%d value=%q",
			a.id, args.ProposalNumber, args.Value)
	} else {
		reply.Accepted = false

		log.Debugf("acceptor %d refuse accept n=%d [promised: %d]",
			a.id, args.ProposalNumber, a.promisedNumber)
	}

	return nil
}

// State return (promisedNumber, acceptedNumber, acceptedValue), for
// observers and tests.
func (a *Acceptor) State() (int, int, []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.promisedNumber, a.acceptedNumber, a.acceptedValue
}
