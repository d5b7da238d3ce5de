package app

import (
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func admissionReason(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomExists):
		return protocol.ReasonRoomExists
	case errors.Is(err, core.ErrRoomNotFound):
		return protocol.ReasonRoomNotFound
	case errors.Is(err, core.ErrRoomFull):
		return protocol.ReasonRoomFull
	case errors.Is(err, domain.ErrRoomNameInvalid):
		return protocol.ReasonInvalidName
	default:
		return err.Error()
	}
}

func (h *Hub) handleRename(from domain.UserID, env protocol.Envelope) {
	var p protocol.NicknamePayload
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	user, renamed := h.Users.Rename(from, p.Name)
	if !renamed {
		log.Info().Str("module", "app.hub").Str("sid", string(from)).Msg("rename ignored")
	}
	h.ack(from, env.Seq, protocol.NicknamePayload{Name: user.Nickname})
}

func (h *Hub) handleCreateRoom(from domain.UserID, env protocol.Envelope) {
	var p protocol.RoomRequest
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	name, err := domain.NormalizeRoomName(string(p.Room))
	if err != nil {
		h.ack(from, env.Seq, protocol.AdmissionResult{Reason: admissionReason(err)})
		return
	}
	if _, exists := h.Rooms.Get(name); exists {
		h.ack(from, env.Seq, protocol.AdmissionResult{Reason: protocol.ReasonRoomExists})
		return
	}
	h.leaveCurrent(from)

	snap, err := h.Rooms.CreateRoom(name, from, p.SendsVideo)
	if err != nil {
		h.ack(from, env.Seq, protocol.AdmissionResult{Reason: admissionReason(err)})
		return
	}
	h.ack(from, env.Seq, protocol.AdmissionResult{OK: true, Room: &snap})
	h.Relay.BroadcastAll(protocol.TypeRoomListChanged, nil)
}

func (h *Hub) handleJoinRoom(from domain.UserID, env protocol.Envelope) {
	var p protocol.RoomRequest
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	name, err := domain.NormalizeRoomName(string(p.Room))
	if err != nil {
		h.ack(from, env.Seq, protocol.AdmissionResult{Reason: admissionReason(err)})
		return
	}
	if current, ok := h.Users.RoomOf(from); ok && current == name {
		snap, _ := h.Rooms.Get(name)
		h.ack(from, env.Seq, protocol.AdmissionResult{OK: true, Room: &snap})
		return
	}
	// Admission is checked before leaving the current room so a refused
	// join keeps the user where it was.
	target, ok := h.Rooms.Get(name)
	if !ok {
		h.ack(from, env.Seq, protocol.AdmissionResult{Reason: protocol.ReasonRoomNotFound})
		return
	}
	if len(target.Participants) >= h.Rooms.Capacity() {
		h.ack(from, env.Seq, protocol.AdmissionResult{Room: &target, Reason: protocol.ReasonRoomFull})
		return
	}
	h.leaveCurrent(from)

	snap, err := h.Rooms.JoinRoom(name, from, p.SendsVideo)
	if err != nil {
		h.ack(from, env.Seq, protocol.AdmissionResult{Reason: admissionReason(err)})
		return
	}
	h.ack(from, env.Seq, protocol.AdmissionResult{OK: true, Room: &snap})

	user, _ := h.Users.Get(from)
	h.Relay.BroadcastRoom(name, from, protocol.TypeNewParticipant, protocol.NewParticipantPayload{
		User:       user,
		SendsVideo: p.SendsVideo,
	})
	h.Relay.BroadcastAll(protocol.TypeRoomListChanged, nil)
}

func (h *Hub) handleLeaveRoom(from domain.UserID, env protocol.Envelope) {
	name, left := h.leaveCurrent(from)
	h.ack(from, env.Seq, protocol.LeaveResult{OK: left, Room: name})
}

// leaveCurrent removes the user from its room and notifies whoever remains.
func (h *Hub) leaveCurrent(id domain.UserID) (domain.RoomName, bool) {
	user, _ := h.Users.Get(id)
	name, left, deleted := h.Rooms.LeaveRoom(id)
	if !left {
		return "", false
	}
	user.Room = ""
	if !deleted {
		h.Relay.BroadcastRoom(name, id, protocol.TypeParticipantLeft, protocol.UserPayload{User: user})
	}
	h.Relay.BroadcastAll(protocol.TypeRoomListChanged, nil)
	log.Info().Str("module", "app.hub").Str("sid", string(id)).Str("room", string(name)).Bool("room_deleted", deleted).Msg("left room")
	return name, true
}

func (h *Hub) handleGetRoom(from domain.UserID, env protocol.Envelope) {
	var p protocol.RoomRequest
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	res := protocol.RoomResult{}
	if snap, ok := h.Rooms.Get(p.Room); ok {
		res.Room = &snap
	}
	h.ack(from, env.Seq, res)
}

func (h *Hub) handleGetUsers(from domain.UserID, env protocol.Envelope) {
	var p protocol.UsersRequest
	if err := env.Decode(&p); err != nil {
		h.badPayload(from, env, err)
		return
	}
	h.ack(from, env.Seq, protocol.UsersResult{Users: h.Relay.Users(p.IDs)})
}
