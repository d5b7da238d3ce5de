package core

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Directory owns every connected user. Entries live exactly as long as the
// coordinator connection that created them. Not safe for concurrent use;
// the hub loop is the only caller.
type Directory struct {
	users map[domain.UserID]*domain.User
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[domain.UserID]*domain.User)}
}

func (d *Directory) Register(id domain.UserID) *domain.User {
	if u, ok := d.users[id]; ok {
		return u
	}
	u := domain.NewUser(id)
	d.users[id] = u
	log.Info().Str("module", "core.directory").Str("sid", string(id)).Msg("user registered")
	return u
}

// Rename reports false and leaves the nickname as is when the new name is
// blank after trimming.
func (d *Directory) Rename(id domain.UserID, name string) (domain.User, bool) {
	u, ok := d.users[id]
	if !ok {
		return domain.User{}, false
	}
	if err := u.SetNickname(name); err != nil {
		return *u, false
	}
	log.Info().Str("module", "core.directory").Str("sid", string(id)).Str("nickname", u.Nickname).Msg("renamed")
	return *u, true
}

func (d *Directory) Get(id domain.UserID) (domain.User, bool) {
	u, ok := d.users[id]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// Lookup maps every requested id to a copy of its record, or nil when the
// id is not connected.
func (d *Directory) Lookup(ids []domain.UserID) map[domain.UserID]*domain.User {
	out := make(map[domain.UserID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			cp := *u
			out[id] = &cp
			continue
		}
		out[id] = nil
	}
	return out
}

func (d *Directory) SetRoom(id domain.UserID, room domain.RoomName) {
	if u, ok := d.users[id]; ok {
		u.Room = room
	}
}

func (d *Directory) RoomOf(id domain.UserID) (domain.RoomName, bool) {
	u, ok := d.users[id]
	if !ok || u.Room == "" {
		return "", false
	}
	return u.Room, true
}

func (d *Directory) Remove(id domain.UserID) {
	delete(d.users, id)
	log.Info().Str("module", "core.directory").Str("sid", string(id)).Msg("user removed")
}

func (d *Directory) Len() int { return len(d.users) }

// IDs returns every connected user id.
func (d *Directory) IDs() []domain.UserID {
	out := make([]domain.UserID, 0, len(d.users))
	for id := range d.users {
		out = append(out, id)
	}
	return out
}
