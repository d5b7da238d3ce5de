package app

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleDescription relays offers and answers to their receiver with the
// sender stamped by the coordinator.
func (h *Hub) handleDescription(from domain.UserID, env protocol.Envelope) {
	var p protocol.SessionDescription
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	if p.Receiver == "" {
		log.Warn().Str("module", "app.hub").Str("sid", string(from)).Str("type", env.Type).Msg("description without receiver")
		return
	}
	to := p.Receiver
	h.Relay.Forward(from, to, env.Type, protocol.SessionDescription{SDP: p.SDP, Sender: from})
}

func (h *Hub) handleCandidate(from domain.UserID, env protocol.Envelope) {
	var p protocol.Candidate
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	out := protocol.Candidate{Candidate: p.Candidate, Sender: from}
	if p.Receiver != "" {
		h.Relay.Forward(from, p.Receiver, protocol.TypeICECandidate, out)
		return
	}
	room, ok := h.Users.RoomOf(from)
	if !ok || (p.Room != "" && p.Room != room) {
		log.Debug().Str("module", "app.hub").Str("sid", string(from)).Str("room", string(p.Room)).Msg("candidate for foreign room dropped")
		return
	}
	out.Room = room
	h.Relay.BroadcastRoom(room, from, protocol.TypeICECandidate, out)
}

func (h *Hub) handleVideoToggle(from domain.UserID, env protocol.Envelope) {
	var p protocol.VideoToggle
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	room := p.Room
	if room == "" {
		room, _ = h.Users.RoomOf(from)
	}
	if !h.Rooms.SetVideoSending(from, room, p.On) {
		log.Debug().Str("module", "app.hub").Str("sid", string(from)).Str("room", string(room)).Msg("video toggle ignored")
		return
	}
	h.Relay.BroadcastRoom(room, from, protocol.TypeTurnVideoRecording, protocol.VideoToggle{On: p.On, Room: room, Sender: from})
}
