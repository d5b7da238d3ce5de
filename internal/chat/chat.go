// Package chat encodes the presence and chat messages exchanged between
// peers on the "chat" data channel.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

const (
	KindChat = "chat"
	KindFile = "file"
)

var ErrUnknownKind = errors.New("unknown chat message kind")

// Envelope is the JSON object sent on the chat channel.
type Envelope struct {
	Sender     domain.UserID `json:"sender"`
	Type       string        `json:"type"`
	Message    string        `json:"message,omitempty"`
	Filename   string        `json:"filename,omitempty"`
	TimeString string        `json:"timeString,omitempty"`
	FileSize   int64         `json:"fileSize,omitempty"`
	IsPrivate  bool          `json:"isPrivate"`
}

// TimeString formats t as zero padded hour:minute.
func TimeString(t time.Time) string {
	return t.Format("15:04")
}

func NewChat(sender domain.UserID, text string, at time.Time) Envelope {
	return Envelope{
		Sender:     sender,
		Type:       KindChat,
		Message:    text,
		TimeString: TimeString(at),
	}
}

// NewFileAnnounce travels on the chat channel ahead of the file chunks.
func NewFileAnnounce(sender domain.UserID, name string, size int64) Envelope {
	return Envelope{
		Sender:   sender,
		Type:     KindFile,
		Filename: name,
		FileSize: size,
	}
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode chat message: %w", err)
	}
	switch env.Type {
	case KindChat, KindFile:
		return env, nil
	}
	return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
}

// TextSender is the part of a data channel chat needs.
type TextSender interface {
	SendText(text string) error
}

// Broadcast sends env to every channel individually. Nothing is
// acknowledged; it returns how many sends succeeded and every failure.
func Broadcast[C TextSender](channels []C, env Envelope) (int, error) {
	b, err := Encode(env)
	if err != nil {
		return 0, err
	}
	var (
		sent int
		errs []error
	)
	for _, ch := range channels {
		if err := ch.SendText(string(b)); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
