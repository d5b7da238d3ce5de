package mesh

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Event is anything the manager loop processes.
type Event interface{ meshEvent() }

// RoomEntered is raised once the coordinator admits us. Participants is the
// room's membership at admission and may include ourselves.
type RoomEntered struct {
	Room         domain.RoomName
	Participants []domain.UserID
	VideoSenders []domain.UserID
}

type NewParticipant struct {
	User       domain.UserID
	SendsVideo bool
}

type OfferReceived struct {
	From domain.UserID
	SDP  string
}

type AnswerReceived struct {
	From domain.UserID
	SDP  string
}

type CandidateReceived struct {
	From      domain.UserID
	Candidate webrtc.ICECandidateInit
}

type ParticipantLeft struct {
	User domain.UserID
}

type VideoToggled struct {
	User domain.UserID
	On   bool
}

// MembershipSync reconciles the mesh with an authoritative member list.
type MembershipSync struct {
	Participants []domain.UserID
}

// Transport events carry the link generation; callbacks from a link that
// has since been replaced are ignored.
type LinkStateChanged struct {
	Peer  domain.UserID
	State LinkState

	gen uint64
}

type ChannelOpened struct {
	Peer    domain.UserID
	Channel Channel

	gen uint64
}

type ChannelMessage struct {
	Peer     domain.UserID
	Label    string
	Data     []byte
	IsString bool

	gen uint64
}

type TrackArrived struct {
	Peer domain.UserID
	Kind string

	gen uint64
}

type LocalCandidate struct {
	Peer      domain.UserID
	Candidate webrtc.ICECandidateInit

	gen uint64
}

// Leave tears the whole mesh down.
type Leave struct{}

// Tick runs fn on the manager goroutine.
type Tick struct {
	Fn func()
}

func (RoomEntered) meshEvent() {}
func (NewParticipant) meshEvent() {}
func (OfferReceived) meshEvent() {}
func (AnswerReceived) meshEvent() {}
func (CandidateReceived) meshEvent() {}
func (ParticipantLeft) meshEvent() {}
func (VideoToggled) meshEvent() {}
func (MembershipSync) meshEvent() {}
func (LinkStateChanged) meshEvent() {}
func (ChannelOpened) meshEvent() {}
func (ChannelMessage) meshEvent() {}
func (TrackArrived) meshEvent() {}
func (LocalCandidate) meshEvent() {}
func (Leave) meshEvent() {}
func (Tick) meshEvent() {}
