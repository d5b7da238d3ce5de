package client

import (
	"github.com/dkeye/Huddle/internal/chat"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/dkeye/Huddle/internal/transfer"
	"github.com/rs/zerolog/log"
)

// meshObserver turns mesh callbacks into chat, file and front end events.
// Inbound data is keyed by the transport peer, not by the sender field of
// the message.
type meshObserver struct {
	s *Session
}

func (o meshObserver) OnChannelMessage(from domain.UserID, label string, data []byte, _ bool) {
	switch label {
	case mesh.ChatLabel:
		o.onChat(from, data)
	case mesh.FileLabel:
		file, err := o.s.receiver.Deliver(from, data)
		if err != nil {
			o.s.events.OnError(from, err)
			return
		}
		if file != nil {
			o.store(*file)
		}
	}
}

func (o meshObserver) onChat(from domain.UserID, data []byte) {
	msg, err := chat.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Str("peer", string(from)).Msg("chat message")
		return
	}
	switch msg.Type {
	case chat.KindChat:
		o.s.events.OnChat(from, msg)
	case chat.KindFile:
		o.s.events.OnFileAnnounced(from, msg.Filename, msg.FileSize)
		file, err := o.s.receiver.Announce(from, msg.Filename, msg.FileSize)
		if err != nil {
			o.s.events.OnError(from, err)
			return
		}
		if file != nil {
			o.store(*file)
		}
	}
}

func (o meshObserver) store(f transfer.File) {
	path, err := o.s.sink.Save(f)
	if err != nil {
		o.s.events.OnError(f.Sender, err)
		return
	}
	o.s.events.OnFileReceived(f.Sender, path)
}

func (o meshObserver) OnPeerConnected(peer domain.UserID) { o.s.events.OnPeerConnected(peer) }

func (o meshObserver) OnPeerRemoved(peer domain.UserID) {
	o.s.receiver.Abandon(peer)
	o.s.events.OnPeerRemoved(peer)
}

func (o meshObserver) OnRemoteMedia(peer domain.UserID, kind string) {
	log.Info().Str("module", "client").Str("peer", string(peer)).Str("kind", kind).Msg("remote media")
}

func (o meshObserver) OnHighlight(peer domain.UserID) { o.s.events.OnHighlight(peer) }

func (o meshObserver) OnError(peer domain.UserID, err error) { o.s.events.OnError(peer, err) }
