package app

import (
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards messages to connected users. Every send is fire-and-forget:
// absent receivers and full queues drop the message.
type Relay struct {
	sessions *Sessions
	users    *core.Directory
	rooms    *core.Registry
	policy   Policy
}

func NewRelay(sessions *Sessions, users *core.Directory, rooms *core.Registry, policy Policy) *Relay {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Relay{sessions: sessions, users: users, rooms: rooms, policy: policy}
}

// Send delivers an already encoded frame. It reports whether the frame was
// queued.
func (r *Relay) Send(to domain.UserID, frame core.Frame) bool {
	conn, ok := r.sessions.Conn(to)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("to", string(to)).Msg("receiver not connected, dropped")
		return false
	}
	err := conn.TrySend(frame)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrBackpressure) {
		switch r.policy.OnBackPressure(to) {
		case KickMember:
			log.Warn().Str("module", "app.relay").Str("to", string(to)).Msg("slow consumer, kicking")
			r.sessions.Cancel(to)
		case DropFrame, NoAction:
			log.Debug().Str("module", "app.relay").Str("to", string(to)).Msg("backpressure, dropped")
		}
		return false
	}
	log.Debug().Err(err).Str("module", "app.relay").Str("to", string(to)).Msg("send failed")
	return false
}

func (r *Relay) encode(typ string, payload any) (core.Frame, bool) {
	b, err := protocol.Encode(typ, 0, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("type", typ).Msg("encode")
		return nil, false
	}
	return b, true
}

// Forward delivers a message of the given type to one receiver verbatim.
func (r *Relay) Forward(from, to domain.UserID, typ string, payload any) bool {
	frame, ok := r.encode(typ, payload)
	if !ok {
		return false
	}
	delivered := r.Send(to, frame)
	log.Debug().Str("module", "app.relay").Str("type", typ).Str("from", string(from)).Str("to", string(to)).Bool("delivered", delivered).Msg("forward")
	return delivered
}

// BroadcastRoom sends to every participant of room except one user. It
// returns the number of queued deliveries.
func (r *Relay) BroadcastRoom(room domain.RoomName, except domain.UserID, typ string, payload any) int {
	snap, ok := r.rooms.Get(room)
	if !ok {
		return 0
	}
	frame, ok := r.encode(typ, payload)
	if !ok {
		return 0
	}
	sent := 0
	for _, id := range snap.Participants {
		if id == except {
			continue
		}
		if r.Send(id, frame) {
			sent++
		}
	}
	return sent
}

// BroadcastAll sends to every connected user.
func (r *Relay) BroadcastAll(typ string, payload any) int {
	frame, ok := r.encode(typ, payload)
	if !ok {
		return 0
	}
	sent := 0
	for _, id := range r.sessions.IDs() {
		if r.Send(id, frame) {
			sent++
		}
	}
	return sent
}

// Users resolves ids to display records for presentation.
func (r *Relay) Users(ids []domain.UserID) map[domain.UserID]*domain.User {
	return r.users.Lookup(ids)
}
