package rtc

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Link is a pion peer connection to one remote participant. Candidates
// trickle through the handler; nothing waits for gathering to finish.
type Link struct {
	pc      *webrtc.PeerConnection
	remote  domain.UserID
	handler mesh.LinkHandler
}

func newLink(pc *webrtc.PeerConnection, remote domain.UserID, h mesh.LinkHandler) *Link {
	l := &Link{pc: pc, remote: remote, handler: h}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			h.OnICECandidate(remote, cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			h.OnStateChange(remote, mesh.LinkConnected)
		case webrtc.PeerConnectionStateDisconnected:
			h.OnStateChange(remote, mesh.LinkDisconnected)
		case webrtc.PeerConnectionStateFailed:
			h.OnStateChange(remote, mesh.LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			h.OnStateChange(remote, mesh.LinkClosed)
		default:
			h.OnStateChange(remote, mesh.LinkConnecting)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		h.OnTrack(remote, track.Kind().String())
		go drain(track)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		l.wire(dc)
	})

	return l
}

// drain consumes inbound media so the transport keeps flowing; rendering
// happens elsewhere.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func (l *Link) wire(dc *webrtc.DataChannel) *dataChannel {
	ch := newDataChannel(dc)
	dc.OnOpen(func() {
		log.Debug().Str("module", "webrtc").Str("peer", string(l.remote)).Str("label", dc.Label()).Msg("data channel open")
		l.handler.OnChannelOpen(l.remote, ch)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.handler.OnChannelMessage(l.remote, dc.Label(), msg.Data, msg.IsString)
	})
	return ch
}

func (l *Link) addTrack(track webrtc.TrackLocal) error {
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (l *Link) CreateOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (l *Link) AcceptOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (l *Link) AcceptAnswer(sdp string) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (l *Link) AddICECandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

// OpenChannel creates an ordered data channel. It is reported to the
// handler once open.
func (l *Link) OpenChannel(label string) (mesh.Channel, error) {
	ordered := true
	dc, err := l.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return l.wire(dc), nil
}

func (l *Link) Close() error {
	err := l.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", string(l.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("peer", string(l.remote)).Msg("closed")
	return nil
}
