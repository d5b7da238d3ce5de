package client

import (
	"github.com/dkeye/Huddle/internal/chat"
	"github.com/dkeye/Huddle/internal/domain"
)

// Events is what a front end gets told about. Calls arrive on the mesh
// goroutine and should return quickly.
type Events interface {
	OnChat(from domain.UserID, msg chat.Envelope)
	OnFileAnnounced(from domain.UserID, name string, size int64)
	OnFileReceived(from domain.UserID, path string)
	OnPeerConnected(peer domain.UserID)
	OnPeerRemoved(peer domain.UserID)
	OnHighlight(peer domain.UserID)
	OnRoomsChanged()
	OnError(peer domain.UserID, err error)
}

type NopEvents struct{}

func (NopEvents) OnChat(domain.UserID, chat.Envelope) {}
func (NopEvents) OnFileAnnounced(domain.UserID, string, int64) {}
func (NopEvents) OnFileReceived(domain.UserID, string) {}
func (NopEvents) OnPeerConnected(domain.UserID) {}
func (NopEvents) OnPeerRemoved(domain.UserID) {}
func (NopEvents) OnHighlight(domain.UserID) {}
func (NopEvents) OnRoomsChanged() {}
func (NopEvents) OnError(domain.UserID, error) {}
