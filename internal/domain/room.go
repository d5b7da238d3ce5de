package domain

import (
	"errors"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	MaxRoomNameLen      = 36
	DefaultRoomCapacity = 4
)

var ErrRoomNameInvalid = errors.New("invalid room name")

type RoomName string

// NormalizeRoomName trims surrounding whitespace and validates the length.
func NormalizeRoomName(raw string) (RoomName, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLen {
		return "", ErrRoomNameInvalid
	}
	return RoomName(name), nil
}

// Room is the registry-owned record. Participants keep join order and
// VideoSenders is always a subset of Participants.
type Room struct {
	Name         RoomName
	Creator      UserID
	Participants []UserID
	VideoSenders []UserID
}

// RoomSnapshot is a detached copy handed out to callers and put on the wire.
type RoomSnapshot struct {
	Name         RoomName `json:"roomName"`
	Creator      UserID   `json:"creator"`
	Participants []UserID `json:"participants"`
	VideoSenders []UserID `json:"videoSenders"`
}

func (r *Room) Snapshot() RoomSnapshot {
	return RoomSnapshot{
		Name:         r.Name,
		Creator:      r.Creator,
		Participants: append([]UserID{}, r.Participants...),
		VideoSenders: append([]UserID{}, r.VideoSenders...),
	}
}

func (r *Room) HasParticipant(id UserID) bool { return slices.Contains(r.Participants, id) }
func (r *Room) SendsVideo(id UserID) bool     { return slices.Contains(r.VideoSenders, id) }

func (s RoomSnapshot) HasParticipant(id UserID) bool { return slices.Contains(s.Participants, id) }
func (s RoomSnapshot) SendsVideo(id UserID) bool     { return slices.Contains(s.VideoSenders, id) }
