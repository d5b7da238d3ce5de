package core

import (
	"errors"
	"slices"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
)

// Registry owns room lifecycle. Rooms are created by their first member and
// deleted when the last one leaves. Cross references to users are ids
// resolved through the Directory.
type Registry struct {
	rooms    map[domain.RoomName]*domain.Room
	users    *Directory
	capacity int
}

// NewRegistry caps rooms at capacity. Zero means the default; anything
// above DefaultRoomCapacity is clamped to it.
func NewRegistry(users *Directory, capacity int) *Registry {
	if capacity <= 0 || capacity > domain.DefaultRoomCapacity {
		capacity = domain.DefaultRoomCapacity
	}
	return &Registry{
		rooms:    make(map[domain.RoomName]*domain.Room),
		users:    users,
		capacity: capacity,
	}
}

func (r *Registry) Capacity() int { return r.capacity }

func (r *Registry) CreateRoom(name domain.RoomName, creator domain.UserID, sendsVideo bool) (domain.RoomSnapshot, error) {
	if _, ok := r.rooms[name]; ok {
		return domain.RoomSnapshot{}, ErrRoomExists
	}
	room := &domain.Room{
		Name:         name,
		Creator:      creator,
		Participants: []domain.UserID{creator},
		VideoSenders: []domain.UserID{},
	}
	if sendsVideo {
		room.VideoSenders = append(room.VideoSenders, creator)
	}
	r.rooms[name] = room
	r.users.SetRoom(creator, name)
	log.Info().Str("module", "core.registry").Str("room", string(name)).Str("sid", string(creator)).Bool("video", sendsVideo).Msg("room created")
	return room.Snapshot(), nil
}

func (r *Registry) JoinRoom(name domain.RoomName, joiner domain.UserID, sendsVideo bool) (domain.RoomSnapshot, error) {
	room, ok := r.rooms[name]
	if !ok {
		return domain.RoomSnapshot{}, ErrRoomNotFound
	}
	if room.HasParticipant(joiner) {
		return room.Snapshot(), nil
	}
	if len(room.Participants) >= r.capacity {
		return room.Snapshot(), ErrRoomFull
	}
	room.Participants = append(room.Participants, joiner)
	if sendsVideo {
		room.VideoSenders = append(room.VideoSenders, joiner)
	}
	r.users.SetRoom(joiner, name)
	log.Info().Str("module", "core.registry").Str("room", string(name)).Str("sid", string(joiner)).Int("count", len(room.Participants)).Msg("member joined")
	return room.Snapshot(), nil
}

// LeaveRoom removes the user from whatever room it is in. The returned flag
// is false when the user had no room. deleted reports whether the room was
// dropped because it became empty.
func (r *Registry) LeaveRoom(user domain.UserID) (name domain.RoomName, left, deleted bool) {
	name, ok := r.users.RoomOf(user)
	if !ok {
		return "", false, false
	}
	r.users.SetRoom(user, "")
	room, ok := r.rooms[name]
	if !ok {
		return name, false, false
	}
	room.Participants = slices.DeleteFunc(room.Participants, func(id domain.UserID) bool { return id == user })
	room.VideoSenders = slices.DeleteFunc(room.VideoSenders, func(id domain.UserID) bool { return id == user })
	if len(room.Participants) == 0 {
		delete(r.rooms, name)
		log.Info().Str("module", "core.registry").Str("room", string(name)).Msg("room deleted")
		return name, true, true
	}
	log.Info().Str("module", "core.registry").Str("room", string(name)).Str("sid", string(user)).Int("count", len(room.Participants)).Msg("member left")
	return name, true, false
}

// SetVideoSending is a no-op for absent rooms and for users that are not
// participants of the room.
func (r *Registry) SetVideoSending(user domain.UserID, name domain.RoomName, on bool) bool {
	room, ok := r.rooms[name]
	if !ok || !room.HasParticipant(user) {
		return false
	}
	sending := room.SendsVideo(user)
	switch {
	case on && !sending:
		room.VideoSenders = append(room.VideoSenders, user)
	case !on && sending:
		room.VideoSenders = slices.DeleteFunc(room.VideoSenders, func(id domain.UserID) bool { return id == user })
	}
	return true
}

func (r *Registry) Get(name domain.RoomName) (domain.RoomSnapshot, bool) {
	room, ok := r.rooms[name]
	if !ok {
		return domain.RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}

func (r *Registry) List() map[domain.RoomName]domain.RoomSnapshot {
	out := make(map[domain.RoomName]domain.RoomSnapshot, len(r.rooms))
	for name, room := range r.rooms {
		out[name] = room.Snapshot()
	}
	return out
}

func (r *Registry) Len() int { return len(r.rooms) }
