package mesh

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid negotiation transition")

type State int

const (
	StateNew State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateAnswerReceived
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateAnswerReceived:
		return "answer-received"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Trigger int

const (
	SendOffer Trigger = iota
	ReceiveOffer
	SendAnswer
	ReceiveAnswer
	TransportUp
	Close
)

func (t Trigger) String() string {
	switch t {
	case SendOffer:
		return "send-offer"
	case ReceiveOffer:
		return "receive-offer"
	case SendAnswer:
		return "send-answer"
	case ReceiveAnswer:
		return "receive-answer"
	case TransportUp:
		return "transport-up"
	case Close:
		return "close"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// transitions lists every legal move. Close is handled separately since it
// is accepted from any state.
var transitions = map[State]map[Trigger]State{
	StateNew: {
		SendOffer:    StateOfferSent,
		ReceiveOffer: StateOfferReceived,
	},
	StateOfferSent: {
		ReceiveAnswer: StateAnswerReceived,
	},
	StateOfferReceived: {
		SendAnswer: StateAnswerSent,
	},
	StateAnswerSent: {
		TransportUp: StateConnected,
	},
	StateAnswerReceived: {
		TransportUp: StateConnected,
	},
	StateConnected: {
		TransportUp: StateConnected,
	},
}

// Negotiation tracks the offer/answer handshake of one peer connection.
type Negotiation struct {
	state State
}

func NewNegotiation() *Negotiation { return &Negotiation{state: StateNew} }

func (n *Negotiation) State() State { return n.state }

// Fire applies t. On an illegal move the state is left untouched.
func (n *Negotiation) Fire(t Trigger) error {
	if t == Close {
		n.state = StateClosed
		return nil
	}
	next, ok := transitions[n.state][t]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, t, n.state)
	}
	n.state = next
	return nil
}

// RemoteDescribed reports whether the remote session description has been
// applied, after which candidates can be added directly.
func (n *Negotiation) RemoteDescribed() bool {
	switch n.state {
	case StateOfferReceived, StateAnswerSent, StateAnswerReceived, StateConnected:
		return true
	}
	return false
}
