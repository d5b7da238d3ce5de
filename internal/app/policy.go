package app

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(id domain.UserID) BackpressureAction
}

// SimplePolicy drops the message; signaling delivery is best effort.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.UserID) BackpressureAction {
	return DropFrame
}

// StrictPolicy disconnects slow consumers.
type StrictPolicy struct{}

func (StrictPolicy) OnBackPressure(domain.UserID) BackpressureAction {
	return KickMember
}

// PolicyByName maps the backpressure_policy setting to a Policy. An empty
// name means drop.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return SimplePolicy{}, nil
	case "kick":
		return StrictPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
