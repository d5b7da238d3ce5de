package app

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Sessions maps connected users to their signaling transport. Owned by the
// hub loop.
type Sessions struct {
	entries map[domain.UserID]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{entries: make(map[domain.UserID]*sessionEntry)}
}

func (s *Sessions) Bind(id domain.UserID, conn core.SignalConnection, cancel context.CancelFunc) {
	s.entries[id] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.sessions").Str("sid", string(id)).Msg("bound signal")
}

func (s *Sessions) Conn(id domain.UserID) (core.SignalConnection, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

func (s *Sessions) Unbind(id domain.UserID) {
	delete(s.entries, id)
	log.Info().Str("module", "app.sessions").Str("sid", string(id)).Msg("unbind session")
}

// Cancel tears down the transport of a session; its read loop then
// unregisters it from the hub.
func (s *Sessions) Cancel(id domain.UserID) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(id)).Msg("canceled session")
	return true
}

func (s *Sessions) IDs() []domain.UserID {
	out := make([]domain.UserID, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}

func (s *Sessions) Len() int { return len(s.entries) }
