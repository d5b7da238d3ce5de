package mesh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrLinkFailed = errors.New("peer link failed")
	ErrStopped    = errors.New("mesh manager stopped")
)

type Config struct {
	Self     domain.UserID
	Signaler Signaler
	Factory  LinkFactory
	Observer Observer
	// Queue is the event buffer size, 256 when zero.
	Queue int
}

// Manager keeps exactly one link per other participant of the current
// room. All mesh state is owned by the goroutine that calls Dispatch,
// normally Run; transport callbacks enter through Post.
type Manager struct {
	self     domain.UserID
	signaler Signaler
	factory  LinkFactory
	observer Observer

	room         domain.RoomName
	participants []domain.UserID
	videoSenders map[domain.UserID]bool
	highlighted  domain.UserID
	peers        map[domain.UserID]*Peer
	early        map[domain.UserID][]webrtc.ICECandidateInit
	nextGen      uint64

	events chan Event
	done   chan struct{}
	once   sync.Once

	chMu  sync.RWMutex
	chats map[domain.UserID]Channel
	files map[domain.UserID]Channel
}

func NewManager(cfg Config) *Manager {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	return &Manager{
		self:         cfg.Self,
		signaler:     cfg.Signaler,
		factory:      cfg.Factory,
		observer:     cfg.Observer,
		videoSenders: make(map[domain.UserID]bool),
		peers:        make(map[domain.UserID]*Peer),
		early:        make(map[domain.UserID][]webrtc.ICECandidateInit),
		events:       make(chan Event, cfg.Queue),
		done:         make(chan struct{}),
		chats:        make(map[domain.UserID]Channel),
		files:        make(map[domain.UserID]Channel),
	}
}

func (m *Manager) Self() domain.UserID { return m.self }

// Run drains posted events until ctx ends, then closes every link.
func (m *Manager) Run(ctx context.Context) {
	defer m.once.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			m.Dispatch(Leave{})
			return
		case ev := <-m.events:
			m.Dispatch(ev)
		}
	}
}

// Post enqueues ev for the loop. It blocks while the queue is full and
// returns ErrStopped once the loop has exited.
func (m *Manager) Post(ev Event) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrStopped
	}
}

// Dispatch processes one event to completion.
func (m *Manager) Dispatch(ev Event) {
	switch e := ev.(type) {
	case RoomEntered:
		m.onRoomEntered(e)
	case NewParticipant:
		m.onNewParticipant(e)
	case OfferReceived:
		m.onOffer(e)
	case AnswerReceived:
		m.onAnswer(e)
	case CandidateReceived:
		m.onCandidate(e)
	case ParticipantLeft:
		m.removeParticipant(e.User)
	case VideoToggled:
		m.onVideoToggled(e)
	case MembershipSync:
		m.onMembershipSync(e)
	case LinkStateChanged:
		m.onLinkState(e)
	case ChannelOpened:
		m.onChannelOpened(e)
	case ChannelMessage:
		if _, ok := m.current(e.Peer, e.gen); ok {
			m.observer.OnChannelMessage(e.Peer, e.Label, e.Data, e.IsString)
		}
	case TrackArrived:
		if p, ok := m.current(e.Peer, e.gen); ok {
			p.hasMedia = true
			m.observer.OnRemoteMedia(e.Peer, e.Kind)
		}
	case LocalCandidate:
		if _, ok := m.current(e.Peer, e.gen); ok {
			if err := m.signaler.SendCandidate(e.Peer, e.Candidate); err != nil {
				log.Debug().Err(err).Str("module", "mesh").Str("peer", string(e.Peer)).Msg("send candidate")
			}
		}
	case Leave:
		m.leave()
	case Tick:
		if e.Fn != nil {
			e.Fn()
		}
	default:
		log.Warn().Str("module", "mesh").Str("event", fmt.Sprintf("%T", ev)).Msg("unknown event")
	}
}

// current returns the peer if gen matches its live link. gen zero matches
// any link.
func (m *Manager) current(id domain.UserID, gen uint64) (*Peer, bool) {
	p, ok := m.peers[id]
	if !ok {
		return nil, false
	}
	if gen != 0 && p.gen != gen {
		log.Debug().Str("module", "mesh").Str("peer", string(id)).Msg("stale link event")
		return nil, false
	}
	return p, true
}

// onRoomEntered adopts the membership of the room we were admitted to.
// Links to its members survive, including ones an early offer already set
// up; everyone else is dropped.
func (m *Manager) onRoomEntered(e RoomEntered) {
	members := make(map[domain.UserID]bool, len(e.Participants))
	for _, id := range e.Participants {
		if id != m.self {
			members[id] = true
		}
	}
	for _, id := range slices.Clone(m.participants) {
		if !members[id] {
			m.removeParticipant(id)
		}
	}
	for id := range m.peers {
		if !members[id] {
			m.removePeer(id)
		}
	}
	for id := range m.early {
		if !members[id] {
			delete(m.early, id)
		}
	}

	m.room = e.Room
	m.videoSenders = make(map[domain.UserID]bool, len(e.VideoSenders))
	for _, id := range e.VideoSenders {
		m.videoSenders[id] = true
	}
	for _, id := range e.Participants {
		if !members[id] {
			continue
		}
		if !slices.Contains(m.participants, id) {
			m.participants = append(m.participants, id)
		}
		// Offers come from members already present; wait for them.
		if _, ok := m.peers[id]; !ok {
			if _, err := m.createPeer(id); err != nil {
				m.observer.OnError(id, err)
				continue
			}
		}
		m.considerHighlight(id)
	}
	log.Info().Str("module", "mesh").Str("room", string(e.Room)).Int("peers", len(m.peers)).Msg("entered room")
}

func (m *Manager) onNewParticipant(e NewParticipant) {
	if e.User == m.self {
		return
	}
	if !slices.Contains(m.participants, e.User) {
		m.participants = append(m.participants, e.User)
	}
	if e.SendsVideo {
		m.videoSenders[e.User] = true
	}
	if _, ok := m.peers[e.User]; ok {
		log.Warn().Str("module", "mesh").Str("peer", string(e.User)).Msg("replacing existing link")
		m.removePeer(e.User)
	}

	p, err := m.createPeer(e.User)
	if err != nil {
		m.observer.OnError(e.User, err)
		return
	}
	m.considerHighlight(e.User)

	for _, label := range []string{ChatLabel, FileLabel} {
		if _, err := p.link.OpenChannel(label); err != nil {
			m.fail(p, fmt.Errorf("open %s channel: %w", label, err))
			return
		}
	}
	sdp, err := p.link.CreateOffer()
	if err != nil {
		m.fail(p, fmt.Errorf("create offer: %w", err))
		return
	}
	if err := p.neg.Fire(SendOffer); err != nil {
		m.fail(p, err)
		return
	}
	if err := m.signaler.SendOffer(e.User, sdp); err != nil {
		log.Debug().Err(err).Str("module", "mesh").Str("peer", string(e.User)).Msg("send offer")
	}
	log.Info().Str("module", "mesh").Str("peer", string(e.User)).Msg("offer sent")
}

func (m *Manager) onOffer(e OfferReceived) {
	p, ok := m.peers[e.From]
	if ok && p.State() != StateNew {
		log.Warn().Str("module", "mesh").Str("peer", string(e.From)).Str("state", p.State().String()).Msg("offer on used link, replacing")
		m.removePeer(e.From)
		ok = false
	}
	if !ok {
		if !slices.Contains(m.participants, e.From) {
			m.participants = append(m.participants, e.From)
		}
		var err error
		if p, err = m.createPeer(e.From); err != nil {
			m.observer.OnError(e.From, err)
			return
		}
	}
	if err := p.neg.Fire(ReceiveOffer); err != nil {
		m.fail(p, err)
		return
	}
	answer, err := p.link.AcceptOffer(e.SDP)
	if err != nil {
		m.fail(p, fmt.Errorf("accept offer: %w", err))
		return
	}
	m.flush(p)
	if err := p.neg.Fire(SendAnswer); err != nil {
		m.fail(p, err)
		return
	}
	if err := m.signaler.SendAnswer(e.From, answer); err != nil {
		log.Debug().Err(err).Str("module", "mesh").Str("peer", string(e.From)).Msg("send answer")
	}
	log.Info().Str("module", "mesh").Str("peer", string(e.From)).Msg("answer sent")
}

func (m *Manager) onAnswer(e AnswerReceived) {
	p, ok := m.peers[e.From]
	if !ok {
		log.Debug().Str("module", "mesh").Str("peer", string(e.From)).Msg("answer for unknown peer")
		return
	}
	if err := p.neg.Fire(ReceiveAnswer); err != nil {
		m.observer.OnError(e.From, err)
		return
	}
	if err := p.link.AcceptAnswer(e.SDP); err != nil {
		m.fail(p, fmt.Errorf("accept answer: %w", err))
		return
	}
	m.flush(p)
}

func (m *Manager) onCandidate(e CandidateReceived) {
	p, ok := m.peers[e.From]
	if !ok {
		if len(m.early[e.From]) < maxPendingCandidates {
			m.early[e.From] = append(m.early[e.From], e.Candidate)
		}
		return
	}
	if !p.neg.RemoteDescribed() {
		if !p.buffer(e.Candidate) {
			log.Warn().Str("module", "mesh").Str("peer", string(e.From)).Msg("candidate buffer full")
		}
		return
	}
	if err := p.link.AddICECandidate(e.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(e.From)).Msg("add candidate")
	}
}

// flush applies candidates that arrived before the remote description.
func (m *Manager) flush(p *Peer) {
	for _, c := range p.pending {
		if err := p.link.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(p.Remote)).Msg("add buffered candidate")
		}
	}
	p.pending = nil
}

// onVideoToggled only tracks who sends video. The highlight is picked when
// a participant is discovered and cleared when it leaves.
func (m *Manager) onVideoToggled(e VideoToggled) {
	if e.On {
		m.videoSenders[e.User] = true
		return
	}
	delete(m.videoSenders, e.User)
}

func (m *Manager) onMembershipSync(e MembershipSync) {
	keep := make(map[domain.UserID]bool, len(e.Participants))
	for _, id := range e.Participants {
		keep[id] = true
	}
	for _, id := range slices.Clone(m.participants) {
		if !keep[id] {
			m.removeParticipant(id)
		}
	}
}

func (m *Manager) onLinkState(e LinkStateChanged) {
	p, ok := m.current(e.Peer, e.gen)
	if !ok {
		return
	}
	log.Info().Str("module", "mesh").Str("peer", string(e.Peer)).Str("link", e.State.String()).Msg("link state")
	switch e.State {
	case LinkConnected:
		if err := p.neg.Fire(TransportUp); err != nil {
			log.Debug().Err(err).Str("module", "mesh").Str("peer", string(e.Peer)).Msg("transport up")
			return
		}
		m.observer.OnPeerConnected(e.Peer)
	case LinkFailed:
		m.observer.OnError(e.Peer, ErrLinkFailed)
	}
}

func (m *Manager) onChannelOpened(e ChannelOpened) {
	if _, ok := m.current(e.Peer, e.gen); !ok {
		_ = e.Channel.Close()
		return
	}
	m.chMu.Lock()
	switch e.Channel.Label() {
	case ChatLabel:
		m.chats[e.Peer] = e.Channel
	case FileLabel:
		m.files[e.Peer] = e.Channel
	default:
		log.Warn().Str("module", "mesh").Str("label", e.Channel.Label()).Msg("unexpected channel")
	}
	m.chMu.Unlock()
}

func (m *Manager) createPeer(id domain.UserID) (*Peer, error) {
	m.nextGen++
	gen := m.nextGen
	link, err := m.factory.NewLink(id, handler{m: m, gen: gen})
	if err != nil {
		return nil, fmt.Errorf("new link: %w", err)
	}
	p := &Peer{Remote: id, neg: NewNegotiation(), link: link, gen: gen}
	for _, c := range m.early[id] {
		p.buffer(c)
	}
	delete(m.early, id)
	m.peers[id] = p
	return p, nil
}

// fail reports err and drops the broken link. The participant stays known
// so a later membership change can rebuild it.
func (m *Manager) fail(p *Peer, err error) {
	log.Error().Err(err).Str("module", "mesh").Str("peer", string(p.Remote)).Msg("negotiation failed")
	m.observer.OnError(p.Remote, err)
	m.removePeer(p.Remote)
}

func (m *Manager) removePeer(id domain.UserID) {
	p, ok := m.peers[id]
	if !ok {
		return
	}
	delete(m.peers, id)
	_ = p.neg.Fire(Close)

	m.chMu.Lock()
	delete(m.chats, id)
	delete(m.files, id)
	m.chMu.Unlock()

	if err := p.link.Close(); err != nil {
		log.Debug().Err(err).Str("module", "mesh").Str("peer", string(id)).Msg("close link")
	}
	m.observer.OnPeerRemoved(id)
	log.Info().Str("module", "mesh").Str("peer", string(id)).Msg("peer removed")
}

func (m *Manager) removeParticipant(id domain.UserID) {
	m.participants = slices.DeleteFunc(m.participants, func(p domain.UserID) bool { return p == id })
	delete(m.videoSenders, id)
	delete(m.early, id)
	m.removePeer(id)
	if m.highlighted == id {
		m.setHighlight("")
	}
}

func (m *Manager) leave() {
	for id := range m.peers {
		m.removePeer(id)
	}
	m.room = ""
	m.participants = nil
	m.videoSenders = make(map[domain.UserID]bool)
	m.early = make(map[domain.UserID][]webrtc.ICECandidateInit)
	if m.highlighted != "" {
		m.setHighlight("")
	}
}

func (m *Manager) considerHighlight(id domain.UserID) {
	if m.highlighted != "" || id == m.self || !m.videoSenders[id] {
		return
	}
	if _, ok := m.peers[id]; !ok {
		return
	}
	m.setHighlight(id)
}

func (m *Manager) setHighlight(id domain.UserID) {
	m.highlighted = id
	m.observer.OnHighlight(id)
}

// ChatChannels returns the open chat channels. Safe from any goroutine.
func (m *Manager) ChatChannels() []Channel {
	m.chMu.RLock()
	defer m.chMu.RUnlock()
	out := make([]Channel, 0, len(m.chats))
	for _, ch := range m.chats {
		out = append(out, ch)
	}
	return out
}

// FileChannels returns the open file channels keyed by peer.
func (m *Manager) FileChannels() map[domain.UserID]Channel {
	m.chMu.RLock()
	defer m.chMu.RUnlock()
	out := make(map[domain.UserID]Channel, len(m.files))
	for id, ch := range m.files {
		out[id] = ch
	}
	return out
}

// The accessors below read loop state and must only be called from the
// loop goroutine, for example inside a Tick.

func (m *Manager) Room() domain.RoomName { return m.room }

func (m *Manager) Highlighted() domain.UserID { return m.highlighted }

func (m *Manager) Participants() []domain.UserID { return slices.Clone(m.participants) }

func (m *Manager) PeerState(id domain.UserID) (State, bool) {
	p, ok := m.peers[id]
	if !ok {
		return StateClosed, false
	}
	return p.State(), true
}

func (m *Manager) PeerCount() int { return len(m.peers) }
