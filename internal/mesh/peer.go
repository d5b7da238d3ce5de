package mesh

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// maxPendingCandidates bounds buffered candidates per peer.
const maxPendingCandidates = 64

// Peer is the local view of one remote participant.
type Peer struct {
	Remote domain.UserID

	neg      *Negotiation
	link     Link
	gen      uint64
	pending  []webrtc.ICECandidateInit
	hasMedia bool
}

func (p *Peer) State() State { return p.neg.State() }

func (p *Peer) buffer(c webrtc.ICECandidateInit) bool {
	if len(p.pending) >= maxPendingCandidates {
		return false
	}
	p.pending = append(p.pending, c)
	return true
}

// handler routes transport callbacks of one link generation back into the
// manager loop.
type handler struct {
	m   *Manager
	gen uint64
}

func (h handler) OnICECandidate(remote domain.UserID, c webrtc.ICECandidateInit) {
	h.m.Post(LocalCandidate{Peer: remote, Candidate: c, gen: h.gen})
}

func (h handler) OnStateChange(remote domain.UserID, s LinkState) {
	h.m.Post(LinkStateChanged{Peer: remote, State: s, gen: h.gen})
}

func (h handler) OnChannelOpen(remote domain.UserID, ch Channel) {
	h.m.Post(ChannelOpened{Peer: remote, Channel: ch, gen: h.gen})
}

func (h handler) OnChannelMessage(remote domain.UserID, label string, data []byte, isString bool) {
	h.m.Post(ChannelMessage{Peer: remote, Label: label, Data: data, IsString: isString, gen: h.gen})
}

func (h handler) OnTrack(remote domain.UserID, kind string) {
	h.m.Post(TrackArrived{Peer: remote, Kind: kind, gen: h.gen})
}
