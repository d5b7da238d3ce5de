// Package client runs one participant: the coordinator connection, the
// peer mesh, chat and file transfer.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/chat"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/dkeye/Huddle/internal/signalclient"
	"github.com/dkeye/Huddle/internal/transfer"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// minSweepInterval bounds how often stale transfers are checked.
const minSweepInterval = 100 * time.Millisecond

var (
	ErrNoHello   = errors.New("coordinator did not greet")
	ErrNotInRoom = errors.New("not in a room")
)

// AdmissionError is a refused create or join.
type AdmissionError struct {
	Room   domain.RoomName
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("room %q: %s", e.Room, e.Reason)
}

type Options struct {
	ServerURL       string
	Nickname        string
	SendsVideo      bool
	Factory         mesh.LinkFactory
	Events          Events
	DownloadDir     string
	MaxUploadBytes  int64
	TransferTimeout time.Duration
	HelloTimeout    time.Duration
}

type Session struct {
	sig      *signalclient.Client
	mesh     *mesh.Manager
	events   Events
	self     domain.User
	uploader *transfer.Uploader
	receiver *transfer.Receiver
	sink     *transfer.Sink
	sweep    time.Duration

	mu    sync.Mutex
	room  domain.RoomName
	video bool
}

// Connect dials the coordinator, waits for the greeting that carries our
// id and applies the nickname.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	if opts.HelloTimeout <= 0 {
		opts.HelloTimeout = 10 * time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = transfer.DefaultTimeout
	}

	sig, err := signalclient.Dial(ctx, opts.ServerURL)
	if err != nil {
		return nil, err
	}

	var hello protocol.UserPayload
	select {
	case env, ok := <-sig.Incoming():
		if !ok || env.Type != protocol.TypeHello {
			sig.Close()
			return nil, ErrNoHello
		}
		if err := env.Decode(&hello); err != nil {
			sig.Close()
			return nil, fmt.Errorf("decode hello: %w", err)
		}
	case <-time.After(opts.HelloTimeout):
		sig.Close()
		return nil, ErrNoHello
	case <-ctx.Done():
		sig.Close()
		return nil, ctx.Err()
	}

	s := &Session{
		sig:      sig,
		events:   opts.Events,
		self:     hello.User,
		uploader: transfer.NewUploader(opts.MaxUploadBytes),
		receiver: transfer.NewReceiver(opts.TransferTimeout),
		sink:     transfer.NewSink(opts.DownloadDir),
		sweep:    max(opts.TransferTimeout/4, minSweepInterval),
		video:    opts.SendsVideo,
	}
	s.mesh = mesh.NewManager(mesh.Config{
		Self:     hello.User.ID,
		Signaler: s,
		Factory:  opts.Factory,
		Observer: meshObserver{s: s},
	})

	if opts.Nickname != "" {
		if _, err := s.Rename(ctx, opts.Nickname); err != nil {
			sig.Close()
			return nil, err
		}
	}
	log.Info().Str("module", "client").Str("sid", string(s.self.ID)).Str("nickname", s.self.Nickname).Msg("session ready")
	return s, nil
}

func (s *Session) Self() domain.User { return s.self }

func (s *Session) Mesh() *mesh.Manager { return s.mesh }

func (s *Session) Room() domain.RoomName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(name domain.RoomName) {
	s.mu.Lock()
	s.room = name
	s.mu.Unlock()
}

// Run drives the mesh and translates coordinator pushes until ctx ends or
// the coordinator goes away. Leaving the loop tears the mesh down.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	meshDone := make(chan struct{})
	go func() {
		defer close(meshDone)
		s.mesh.Run(ctx)
	}()
	defer func() {
		cancel()
		<-meshDone
	}()

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sig.Close()
			return ctx.Err()
		case env, ok := <-s.sig.Incoming():
			if !ok {
				return signalclient.ErrClosed
			}
			s.handlePush(env)
		case now := <-ticker.C:
			_ = s.mesh.Post(mesh.Tick{Fn: func() {
				for _, sender := range s.receiver.Sweep(now) {
					s.events.OnError(sender, transfer.NewError("receive", transfer.ErrTimeout))
				}
			}})
		}
	}
}

func (s *Session) handlePush(env protocol.Envelope) {
	var ev mesh.Event
	switch env.Type {
	case protocol.TypeNewParticipant:
		var p protocol.NewParticipantPayload
		if s.decode(env, &p) {
			ev = mesh.NewParticipant{User: p.User.ID, SendsVideo: p.SendsVideo}
		}
	case protocol.TypeParticipantLeft, protocol.TypeUserLeft:
		var p protocol.UserPayload
		if s.decode(env, &p) {
			ev = mesh.ParticipantLeft{User: p.User.ID}
		}
	case protocol.TypeOffer:
		var p protocol.SessionDescription
		if s.decode(env, &p) {
			ev = mesh.OfferReceived{From: p.Sender, SDP: p.SDP}
		}
	case protocol.TypeAnswer:
		var p protocol.SessionDescription
		if s.decode(env, &p) {
			ev = mesh.AnswerReceived{From: p.Sender, SDP: p.SDP}
		}
	case protocol.TypeICECandidate:
		var p protocol.Candidate
		if s.decode(env, &p) {
			ev = mesh.CandidateReceived{From: p.Sender, Candidate: p.Candidate}
		}
	case protocol.TypeTurnVideoRecording:
		var p protocol.VideoToggle
		if s.decode(env, &p) {
			ev = mesh.VideoToggled{User: p.Sender, On: p.On}
		}
	case protocol.TypeRoomListChanged:
		s.events.OnRoomsChanged()
	case protocol.TypeError:
		var p protocol.ErrorPayload
		if s.decode(env, &p) {
			log.Warn().Str("module", "client").Str("reason", p.Reason).Msg("coordinator error")
		}
	case protocol.TypePong, protocol.TypeHello:
	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("unhandled push")
	}
	if ev != nil {
		_ = s.mesh.Post(ev)
	}
}

func (s *Session) decode(env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", env.Type).Msg("bad push")
		return false
	}
	return true
}

func (s *Session) SendOffer(to domain.UserID, sdp string) error {
	return s.sig.Send(protocol.TypeOffer, protocol.SessionDescription{SDP: sdp, Sender: s.self.ID, Receiver: to})
}

func (s *Session) SendAnswer(to domain.UserID, sdp string) error {
	return s.sig.Send(protocol.TypeAnswer, protocol.SessionDescription{SDP: sdp, Receiver: to})
}

func (s *Session) SendCandidate(to domain.UserID, c webrtc.ICECandidateInit) error {
	return s.sig.Send(protocol.TypeICECandidate, protocol.Candidate{
		Candidate: c,
		Room:      s.Room(),
		Sender:    s.self.ID,
		Receiver:  to,
	})
}

func (s *Session) Rename(ctx context.Context, name string) (string, error) {
	var res protocol.NicknamePayload
	if err := s.sig.Request(ctx, protocol.TypeChangeNickname, protocol.NicknamePayload{Name: name}, &res); err != nil {
		return "", err
	}
	s.self.Nickname = res.Name
	return res.Name, nil
}

func (s *Session) Rooms(ctx context.Context) (map[domain.RoomName]domain.RoomSnapshot, error) {
	var res protocol.RoomListResult
	if err := s.sig.Request(ctx, protocol.TypeGetRoomList, nil, &res); err != nil {
		return nil, err
	}
	return res.Rooms, nil
}

func (s *Session) Users(ctx context.Context, ids []domain.UserID) (map[domain.UserID]*domain.User, error) {
	var res protocol.UsersResult
	if err := s.sig.Request(ctx, protocol.TypeGetUsers, protocol.UsersRequest{IDs: ids}, &res); err != nil {
		return nil, err
	}
	return res.Users, nil
}

func (s *Session) CreateRoom(ctx context.Context, name domain.RoomName) (domain.RoomSnapshot, error) {
	return s.admit(ctx, protocol.TypeCreateRoom, name)
}

// JoinRoom asks to join name. The mesh is left alone until the coordinator
// admits us; the members present send offers once the join is announced.
// Joining the room we are in only reconciles the mesh with its membership.
func (s *Session) JoinRoom(ctx context.Context, name domain.RoomName) (domain.RoomSnapshot, error) {
	if normalized, err := domain.NormalizeRoomName(string(name)); err == nil && normalized == s.Room() {
		var current protocol.RoomResult
		err := s.sig.RequestThen(ctx, protocol.TypeGetRoom, protocol.RoomRequest{Room: normalized}, &current, func(env protocol.Envelope) {
			var ack protocol.RoomResult
			if env.Decode(&ack) == nil && ack.Room != nil {
				_ = s.mesh.Post(mesh.MembershipSync{Participants: ack.Room.Participants})
			}
		})
		if err != nil {
			return domain.RoomSnapshot{}, err
		}
		if current.Room == nil {
			return domain.RoomSnapshot{}, &AdmissionError{Room: name, Reason: protocol.ReasonRoomNotFound}
		}
		return *current.Room, nil
	}
	return s.admit(ctx, protocol.TypeJoinRoom, name)
}

// admit sends a create or join. An accepted ack moves the mesh to the new
// room before any later push reaches it, so offers from the members find
// the room already set up. A refused one changes nothing.
func (s *Session) admit(ctx context.Context, typ string, name domain.RoomName) (domain.RoomSnapshot, error) {
	s.mu.Lock()
	req := protocol.RoomRequest{Room: name, SendsVideo: s.video}
	s.mu.Unlock()

	var res protocol.AdmissionResult
	err := s.sig.RequestThen(ctx, typ, req, &res, func(env protocol.Envelope) {
		var ack protocol.AdmissionResult
		if env.Decode(&ack) != nil || !ack.OK || ack.Room == nil {
			return
		}
		s.setRoom(ack.Room.Name)
		_ = s.mesh.Post(mesh.RoomEntered{
			Room:         ack.Room.Name,
			Participants: ack.Room.Participants,
			VideoSenders: ack.Room.VideoSenders,
		})
	})
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	if !res.OK || res.Room == nil {
		return domain.RoomSnapshot{}, &AdmissionError{Room: name, Reason: res.Reason}
	}
	return *res.Room, nil
}

func (s *Session) Leave(ctx context.Context) error {
	var res protocol.LeaveResult
	if err := s.sig.Request(ctx, protocol.TypeLeaveRoom, nil, &res); err != nil {
		return err
	}
	s.setRoom("")
	_ = s.mesh.Post(mesh.Leave{})
	if !res.OK {
		return ErrNotInRoom
	}
	return nil
}

// ToggleVideo tells the room whether we send video.
func (s *Session) ToggleVideo(on bool) error {
	room := s.Room()
	if room == "" {
		return ErrNotInRoom
	}
	s.mu.Lock()
	s.video = on
	s.mu.Unlock()
	return s.sig.Send(protocol.TypeTurnVideoRecording, protocol.VideoToggle{On: on, Room: room})
}

// Chat broadcasts text to every connected peer and returns how many got it.
func (s *Session) Chat(text string) (int, error) {
	return chat.Broadcast(s.mesh.ChatChannels(), chat.NewChat(s.self.ID, text, time.Now()))
}

// SendFiles uploads paths to every peer with an open file channel. It
// blocks until the selection is sent.
func (s *Session) SendFiles(ctx context.Context, paths []string) error {
	files, err := transfer.ValidateFiles(paths)
	if err != nil {
		return err
	}
	if len(s.mesh.FileChannels()) == 0 {
		return transfer.NewError("send", transfer.ErrNoPeers)
	}
	up, err := s.uploader.Begin(files)
	if err != nil {
		return err
	}

	announce := func(f transfer.FileInfo) error {
		_, err := chat.Broadcast(s.mesh.ChatChannels(), chat.NewFileAnnounce(s.self.ID, f.Name, f.Size))
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Str("file", f.Name).Msg("announce")
		}
		return nil
	}
	return up.Run(ctx, announce, s.dispatch)
}

// dispatch hands one chunk to every file channel. Peers that fail are
// skipped; the chunk fails only when nobody took it.
func (s *Session) dispatch(chunk []byte) error {
	channels := s.mesh.FileChannels()
	if len(channels) == 0 {
		return transfer.ErrNoPeers
	}
	var errs []error
	for peer, ch := range channels {
		if err := ch.Send(chunk); err != nil {
			log.Debug().Err(err).Str("module", "client").Str("peer", string(peer)).Msg("chunk send")
			errs = append(errs, err)
		}
	}
	if len(errs) == len(channels) {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Session) Close() {
	s.sig.Close()
}
