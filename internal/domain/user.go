// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen    = 36
	MaxUsernameLen  = 36
	DefaultNickname = "Anonymous"
)

var ErrUsernameEmpty = errors.New("username empty")

// UserID identifies one coordinator connection for its whole lifetime.
type UserID string

type User struct {
	ID       UserID   `json:"id"`
	Nickname string   `json:"nickname"`
	Room     RoomName `json:"room,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID) *User {
	return &User{ID: id, Nickname: DefaultNickname}
}

// SetNickname trims the name and truncates it to MaxUsernameLen runes.
// An empty result leaves the user untouched.
func (u *User) SetNickname(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrUsernameEmpty
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		name = string([]rune(name)[:MaxUsernameLen])
	}
	u.Nickname = name
	return nil
}
