// Package protocol defines the JSON messages exchanged between participants
// and the coordinator over the signaling WebSocket.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Envelope wraps every message. Requests that expect a response carry a
// non-zero Seq and receive exactly one TypeAck with the same Seq.
type Envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server.
const (
	TypeChangeNickname     = "change_nickname"
	TypeCreateRoom         = "create_room"
	TypeJoinRoom           = "join_room"
	TypeLeaveRoom          = "leave_room"
	TypeGetRoomList        = "get_room_list"
	TypeGetRoom            = "get_room"
	TypeGetUsers           = "get_users"
	TypeWhoAmI             = "whoami"
	TypePing               = "ping"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeICECandidate       = "ice_candidate"
	TypeTurnVideoRecording = "turn_video_recording"
)

// Server to client.
const (
	TypeAck             = "ack"
	TypeHello           = "hello"
	TypePong            = "pong"
	TypeError           = "error"
	TypeRoomListChanged = "room_list_changed"
	TypeNewParticipant  = "new_participant"
	TypeParticipantLeft = "participant_left"
	TypeUserLeft        = "user_left"
)

// Admission and request failure reasons reported in acks.
const (
	ReasonRoomExists   = "room_exists"
	ReasonRoomNotFound = "room_not_found"
	ReasonRoomFull     = "room_full"
	ReasonInvalidName  = "invalid_room_name"
	ReasonRateLimited  = "rate_limited"
	ReasonNotInRoom    = "not_in_room"
	ReasonBadPayload   = "bad_payload"
)

type NicknamePayload struct {
	Name string `json:"name"`
}

type RoomRequest struct {
	Room       domain.RoomName `json:"room"`
	SendsVideo bool            `json:"sends_video"`
}

// AdmissionResult answers create_room and join_room.
type AdmissionResult struct {
	OK     bool                 `json:"ok"`
	Room   *domain.RoomSnapshot `json:"room,omitempty"`
	Reason string               `json:"reason,omitempty"`
}

type LeaveResult struct {
	OK   bool            `json:"ok"`
	Room domain.RoomName `json:"room,omitempty"`
}

type RoomListResult struct {
	Rooms map[domain.RoomName]domain.RoomSnapshot `json:"rooms"`
}

type RoomResult struct {
	Room *domain.RoomSnapshot `json:"room"`
}

type UsersRequest struct {
	IDs []domain.UserID `json:"ids"`
}

type UsersResult struct {
	Users map[domain.UserID]*domain.User `json:"users"`
}

type UserPayload struct {
	User domain.User `json:"user"`
}

type NewParticipantPayload struct {
	User       domain.User `json:"user"`
	SendsVideo bool        `json:"sends_video"`
}

// SessionDescription carries an offer or an answer. Receiver is set by the
// sender, Sender is stamped by the coordinator before relaying.
type SessionDescription struct {
	SDP      string        `json:"sdp"`
	Sender   domain.UserID `json:"sender,omitempty"`
	Receiver domain.UserID `json:"receiver,omitempty"`
}

// Candidate carries one trickled ICE candidate. Without a Receiver the
// coordinator relays it to every other member of Room.
type Candidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	Room      domain.RoomName         `json:"room,omitempty"`
	Sender    domain.UserID           `json:"sender,omitempty"`
	Receiver  domain.UserID           `json:"receiver,omitempty"`
}

type VideoToggle struct {
	On     bool            `json:"on"`
	Room   domain.RoomName `json:"room,omitempty"`
	Sender domain.UserID   `json:"sender,omitempty"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

// New builds an envelope with a JSON encoded payload. A nil payload is
// omitted.
func New(typ string, seq uint64, payload any) (Envelope, error) {
	env := Envelope{Type: typ, Seq: seq}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = b
	return env, nil
}

// Encode marshals a complete envelope in one step.
func Encode(typ string, seq uint64, payload any) ([]byte, error) {
	env, err := New(typ, seq, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
