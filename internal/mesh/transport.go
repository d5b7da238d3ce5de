package mesh

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	ChatLabel = "chat"
	FileLabel = "file"
)

type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Channel is one open data channel to a peer.
type Channel interface {
	Label() string
	Send(data []byte) error
	SendText(text string) error
	Close() error
}

// Link is the peer connection to one remote participant.
type Link interface {
	CreateOffer() (string, error)
	AcceptOffer(sdp string) (string, error)
	AcceptAnswer(sdp string) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	OpenChannel(label string) (Channel, error)
	Close() error
}

// LinkHandler receives transport callbacks. Implementations must not block;
// they are invoked on transport goroutines.
type LinkHandler interface {
	OnICECandidate(remote domain.UserID, c webrtc.ICECandidateInit)
	OnStateChange(remote domain.UserID, s LinkState)
	OnChannelOpen(remote domain.UserID, ch Channel)
	OnChannelMessage(remote domain.UserID, label string, data []byte, isString bool)
	OnTrack(remote domain.UserID, kind string)
}

type LinkFactory interface {
	NewLink(remote domain.UserID, h LinkHandler) (Link, error)
}

// Signaler sends negotiation messages through the coordinator.
type Signaler interface {
	SendOffer(to domain.UserID, sdp string) error
	SendAnswer(to domain.UserID, sdp string) error
	SendCandidate(to domain.UserID, c webrtc.ICECandidateInit) error
}

// Observer receives what the mesh wants presented. Calls happen on the
// manager goroutine.
type Observer interface {
	OnChannelMessage(from domain.UserID, label string, data []byte, isString bool)
	OnPeerConnected(peer domain.UserID)
	OnPeerRemoved(peer domain.UserID)
	OnRemoteMedia(peer domain.UserID, kind string)
	OnHighlight(peer domain.UserID)
	OnError(peer domain.UserID, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OnChannelMessage(domain.UserID, string, []byte, bool) {}
func (NopObserver) OnPeerConnected(domain.UserID) {}
func (NopObserver) OnPeerRemoved(domain.UserID) {}
func (NopObserver) OnRemoteMedia(domain.UserID, string) {}
func (NopObserver) OnHighlight(domain.UserID) {}
func (NopObserver) OnError(domain.UserID, error) {}
