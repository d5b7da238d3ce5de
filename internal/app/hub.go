package app

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrHubStopped = errors.New("hub stopped")

type registration struct {
	id     domain.UserID
	conn   core.SignalConnection
	cancel context.CancelFunc
}

type inbound struct {
	from domain.UserID
	env  protocol.Envelope
}

// Hub is the coordinator. A single goroutine (Run) owns the directory, the
// room registry and the session table; every event is handled to completion
// before the next one is taken.
type Hub struct {
	Users    *core.Directory
	Rooms    *core.Registry
	Sessions *Sessions
	Relay    *Relay

	register   chan registration
	unregister chan domain.UserID
	inbound    chan inbound
	queries    chan func()
	done       chan struct{}
}

func NewHub(capacity int, policy Policy) *Hub {
	users := core.NewDirectory()
	rooms := core.NewRegistry(users, capacity)
	sessions := NewSessions()
	return &Hub{
		Users:      users,
		Rooms:      rooms,
		Sessions:   sessions,
		Relay:      NewRelay(sessions, users, rooms, policy),
		register:   make(chan registration),
		unregister: make(chan domain.UserID),
		inbound:    make(chan inbound, 256),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log.Info().Str("module", "app.hub").Msg("hub loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.hub").Msg("hub loop stopped")
			return
		case reg := <-h.register:
			h.Connect(reg.id, reg.conn, reg.cancel)
		case id := <-h.unregister:
			h.Disconnect(id)
		case in := <-h.inbound:
			h.Dispatch(in.from, in.env)
		case fn := <-h.queries:
			fn()
		}
	}
}

// Register hands a freshly upgraded connection to the loop.
func (h *Hub) Register(id domain.UserID, conn core.SignalConnection, cancel context.CancelFunc) error {
	select {
	case h.register <- registration{id: id, conn: conn, cancel: cancel}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(id domain.UserID) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Submit queues one decoded client message.
func (h *Hub) Submit(from domain.UserID, env protocol.Envelope) {
	select {
	case h.inbound <- inbound{from: from, env: env}:
	case <-h.done:
	}
}

// Query runs fn on the hub loop and waits for it. fn must not block.
func (h *Hub) Query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case h.queries <- wrapped:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Connect registers the user and greets it with its identity.
func (h *Hub) Connect(id domain.UserID, conn core.SignalConnection, cancel context.CancelFunc) {
	user := h.Users.Register(id)
	h.Sessions.Bind(id, conn, cancel)
	h.push(id, protocol.TypeHello, protocol.UserPayload{User: *user})
}

// Disconnect removes every trace of the user and tells everyone it left.
func (h *Hub) Disconnect(id domain.UserID) {
	user, ok := h.Users.Get(id)
	if !ok {
		return
	}
	h.leaveCurrent(id)
	h.Sessions.Unbind(id)
	h.Users.Remove(id)
	user.Room = ""
	h.Relay.BroadcastAll(protocol.TypeUserLeft, protocol.UserPayload{User: user})
	log.Info().Str("module", "app.hub").Str("sid", string(id)).Msg("disconnected")
}

// Dispatch handles one client message.
func (h *Hub) Dispatch(from domain.UserID, env protocol.Envelope) {
	if _, ok := h.Users.Get(from); !ok {
		log.Warn().Str("module", "app.hub").Str("sid", string(from)).Str("type", env.Type).Msg("message from unknown session")
		return
	}
	switch env.Type {
	case protocol.TypeChangeNickname:
		h.handleRename(from, env)
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(from, env)
	case protocol.TypeJoinRoom:
		h.handleJoinRoom(from, env)
	case protocol.TypeLeaveRoom:
		h.handleLeaveRoom(from, env)
	case protocol.TypeGetRoomList:
		h.ack(from, env.Seq, protocol.RoomListResult{Rooms: h.Rooms.List()})
	case protocol.TypeGetRoom:
		h.handleGetRoom(from, env)
	case protocol.TypeGetUsers:
		h.handleGetUsers(from, env)
	case protocol.TypeWhoAmI:
		user, _ := h.Users.Get(from)
		h.ack(from, env.Seq, protocol.UserPayload{User: user})
	case protocol.TypePing:
		h.push(from, protocol.TypePong, nil)
	case protocol.TypeOffer, protocol.TypeAnswer:
		h.handleDescription(from, env)
	case protocol.TypeICECandidate:
		h.handleCandidate(from, env)
	case protocol.TypeTurnVideoRecording:
		h.handleVideoToggle(from, env)
	default:
		log.Warn().Str("module", "app.hub").Str("type", env.Type).Msg("unknown signal")
		h.push(from, protocol.TypeError, protocol.ErrorPayload{Reason: "unknown_type"})
	}
}

func (h *Hub) push(to domain.UserID, typ string, payload any) {
	frame, err := protocol.Encode(typ, 0, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("type", typ).Msg("encode")
		return
	}
	h.Relay.Send(to, frame)
}

// ack answers a request. Messages sent without a sequence number get no ack.
func (h *Hub) ack(to domain.UserID, seq uint64, payload any) {
	if seq == 0 {
		return
	}
	frame, err := protocol.Encode(protocol.TypeAck, seq, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("encode ack")
		return
	}
	h.Relay.Send(to, frame)
}

func (h *Hub) badPayload(to domain.UserID, env protocol.Envelope, err error) {
	log.Error().Err(err).Str("module", "app.hub").Str("sid", string(to)).Str("type", env.Type).Msg("bad payload")
	h.push(to, protocol.TypeError, protocol.ErrorPayload{Reason: protocol.ReasonBadPayload})
}
