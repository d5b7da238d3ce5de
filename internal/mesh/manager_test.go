package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	label string
	mu    sync.Mutex
	sent  [][]byte
	texts []string
	err   error
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

type fakeLink struct {
	remote     domain.UserID
	handler    LinkHandler
	opened     []string
	remoteSDP  string
	candidates []webrtc.ICECandidateInit
	closed     bool
	offerErr   error
}

func (l *fakeLink) CreateOffer() (string, error) {
	if l.offerErr != nil {
		return "", l.offerErr
	}
	return "offer-to-" + string(l.remote), nil
}

func (l *fakeLink) AcceptOffer(sdp string) (string, error) {
	l.remoteSDP = sdp
	return "answer-to-" + string(l.remote), nil
}

func (l *fakeLink) AcceptAnswer(sdp string) error {
	l.remoteSDP = sdp
	return nil
}

func (l *fakeLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	if l.remoteSDP == "" {
		return errors.New("no remote description")
	}
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) OpenChannel(label string) (Channel, error) {
	l.opened = append(l.opened, label)
	return &fakeChannel{label: label}, nil
}

func (l *fakeLink) Close() error {
	l.closed = true
	return nil
}

type fakeFactory struct {
	links    map[domain.UserID][]*fakeLink
	offerErr error
}

func (f *fakeFactory) NewLink(remote domain.UserID, h LinkHandler) (Link, error) {
	l := &fakeLink{remote: remote, handler: h, offerErr: f.offerErr}
	f.links[remote] = append(f.links[remote], l)
	return l, nil
}

func (f *fakeFactory) last(id domain.UserID) *fakeLink {
	ls := f.links[id]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

type sent struct {
	kind string
	to   domain.UserID
	sdp  string
}

type fakeSignaler struct {
	mu         sync.Mutex
	msgs       []sent
	candidates []domain.UserID
}

func (s *fakeSignaler) SendOffer(to domain.UserID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sent{"offer", to, sdp})
	return nil
}

func (s *fakeSignaler) SendAnswer(to domain.UserID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sent{"answer", to, sdp})
	return nil
}

func (s *fakeSignaler) SendCandidate(to domain.UserID, _ webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, to)
	return nil
}

type recorder struct {
	NopObserver
	removed    []domain.UserID
	highlights []domain.UserID
	connected  []domain.UserID
	errs       []error
	messages   []string
}

func (r *recorder) OnPeerRemoved(p domain.UserID) { r.removed = append(r.removed, p) }
func (r *recorder) OnHighlight(p domain.UserID) { r.highlights = append(r.highlights, p) }
func (r *recorder) OnPeerConnected(p domain.UserID) { r.connected = append(r.connected, p) }
func (r *recorder) OnError(_ domain.UserID, e error) { r.errs = append(r.errs, e) }
func (r *recorder) OnChannelMessage(from domain.UserID, label string, data []byte, _ bool) {
	r.messages = append(r.messages, fmt.Sprintf("%s/%s/%s", from, label, data))
}

type fixture struct {
	m   *Manager
	f   *fakeFactory
	sig *fakeSignaler
	obs *recorder
}

func newFixture(self domain.UserID) *fixture {
	fx := &fixture{
		f:   &fakeFactory{links: map[domain.UserID][]*fakeLink{}},
		sig: &fakeSignaler{},
		obs: &recorder{},
	}
	fx.m = NewManager(Config{Self: self, Signaler: fx.sig, Factory: fx.f, Observer: fx.obs})
	return fx
}

func cand(n int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 10.0.0.%d 5000 typ host", n, n)}
}

func TestExistingMemberOffersToNewcomer(t *testing.T) {
	fx := newFixture("a")
	fx.m.Dispatch(RoomEntered{Room: "r"})
	fx.m.Dispatch(NewParticipant{User: "b"})

	link := fx.f.last("b")
	require.NotNil(t, link)
	assert.Equal(t, []string{ChatLabel, FileLabel}, link.opened)
	require.Len(t, fx.sig.msgs, 1)
	assert.Equal(t, sent{"offer", "b", "offer-to-b"}, fx.sig.msgs[0])

	st, ok := fx.m.PeerState("b")
	require.True(t, ok)
	assert.Equal(t, StateOfferSent, st)

	fx.m.Dispatch(AnswerReceived{From: "b", SDP: "answer"})
	st, _ = fx.m.PeerState("b")
	assert.Equal(t, StateAnswerReceived, st)
	assert.Equal(t, "answer", link.remoteSDP)

	fx.m.Dispatch(LinkStateChanged{Peer: "b", State: LinkConnected})
	st, _ = fx.m.PeerState("b")
	assert.Equal(t, StateConnected, st)
	assert.Equal(t, []domain.UserID{"b"}, fx.obs.connected)
}

func TestNewcomerAnswersOffers(t *testing.T) {
	fx := newFixture("c")
	fx.m.Dispatch(RoomEntered{Room: "r", Participants: []domain.UserID{"a", "b"}})

	assert.Equal(t, 2, fx.m.PeerCount(), "one link per existing participant")
	assert.Empty(t, fx.sig.msgs, "the newcomer never offers")
	for _, id := range []domain.UserID{"a", "b"} {
		st, ok := fx.m.PeerState(id)
		require.True(t, ok)
		assert.Equal(t, StateNew, st)
	}

	fx.m.Dispatch(OfferReceived{From: "a", SDP: "offer-a"})
	st, _ := fx.m.PeerState("a")
	assert.Equal(t, StateAnswerSent, st)
	assert.Equal(t, "offer-a", fx.f.last("a").remoteSDP)
	assert.Len(t, fx.f.links["a"], 1, "the prepared link is reused")
	require.Len(t, fx.sig.msgs, 1)
	assert.Equal(t, sent{"answer", "a", "answer-to-a"}, fx.sig.msgs[0])
	assert.Empty(t, fx.f.last("a").opened, "answerer waits for the offerer's channels")
}

func TestCandidatesBeforeRemoteDescriptionAreBuffered(t *testing.T) {
	fx := newFixture("c")

	// Arrives before the peer is even known.
	fx.m.Dispatch(CandidateReceived{From: "a", Candidate: cand(1)})
	fx.m.Dispatch(RoomEntered{Room: "r", Participants: []domain.UserID{"a"}})
	fx.m.Dispatch(CandidateReceived{From: "a", Candidate: cand(2)})

	link := fx.f.last("a")
	assert.Empty(t, link.candidates)

	fx.m.Dispatch(OfferReceived{From: "a", SDP: "offer"})
	require.Len(t, link.candidates, 2)
	assert.Equal(t, cand(1), link.candidates[0])
	assert.Equal(t, cand(2), link.candidates[1])

	fx.m.Dispatch(CandidateReceived{From: "a", Candidate: cand(3)})
	assert.Len(t, link.candidates, 3, "later candidates apply directly")
}

func TestOffererBuffersCandidatesUntilAnswer(t *testing.T) {
	fx := newFixture("a")
	fx.m.Dispatch(RoomEntered{Room: "r"})
	fx.m.Dispatch(NewParticipant{User: "b"})
	fx.m.Dispatch(CandidateReceived{From: "b", Candidate: cand(1)})

	link := fx.f.last("b")
	assert.Empty(t, link.candidates)
	fx.m.Dispatch(AnswerReceived{From: "b", SDP: "answer"})
	assert.Equal(t, []webrtc.ICECandidateInit{cand(1)}, link.candidates)
}

func TestParticipantLeftTearsDownPeer(t *testing.T) {
	fx := newFixture("a")
	fx.m.Dispatch(RoomEntered{Room: "r"})
	fx.m.Dispatch(NewParticipant{User: "b", SendsVideo: true})
	fx.m.Dispatch(ChannelOpened{Peer: "b", Channel: &fakeChannel{label: ChatLabel}})
	fx.m.Dispatch(ChannelOpened{Peer: "b", Channel: &fakeChannel{label: FileLabel}})
	require.Len(t, fx.m.ChatChannels(), 1)
	require.Len(t, fx.m.FileChannels(), 1)
	assert.Equal(t, domain.UserID("b"), fx.m.Highlighted())

	fx.m.Dispatch(ParticipantLeft{User: "b"})

	assert.True(t, fx.f.last("b").closed)
	_, ok := fx.m.PeerState("b")
	assert.False(t, ok)
	assert.Empty(t, fx.m.ChatChannels())
	assert.Empty(t, fx.m.FileChannels())
	assert.Equal(t, []domain.UserID{"b"}, fx.obs.removed)
	assert.Equal(t, domain.UserID(""), fx.m.Highlighted())
	assert.Equal(t, []domain.UserID{"b", ""}, fx.obs.highlights)
}

func TestHighlightPicksFirstVideoSenderAndIsNotReassigned(t *testing.T) {
	fx := newFixture("d")
	fx.m.Dispatch(RoomEntered{
		Room:         "r",
		Participants: []domain.UserID{"a", "b", "c"},
		VideoSenders: []domain.UserID{"b", "c"},
	})
	assert.Equal(t, domain.UserID("b"), fx.m.Highlighted())

	fx.m.Dispatch(VideoToggled{User: "a", On: true})
	assert.Equal(t, domain.UserID("b"), fx.m.Highlighted(), "highlight is sticky")

	fx.m.Dispatch(VideoToggled{User: "b", On: false})
	assert.Equal(t, domain.UserID("b"), fx.m.Highlighted(), "stopping video keeps the highlight")

	fx.m.Dispatch(ParticipantLeft{User: "b"})
	assert.Equal(t, domain.UserID(""), fx.m.Highlighted(), "cleared, not reassigned")

	fx.m.Dispatch(VideoToggled{User: "c", On: true})
	assert.Equal(t, domain.UserID(""), fx.m.Highlighted(), "toggling video does not pick a highlight")

	fx.m.Dispatch(NewParticipant{User: "e", SendsVideo: true})
	assert.Equal(t, domain.UserID("e"), fx.m.Highlighted())
	assert.Equal(t, []domain.UserID{"b", "", "e"}, fx.obs.highlights)
}

func TestRoomEnteredKeepsLinkFromEarlyOffer(t *testing.T) {
	fx := newFixture("c")
	fx.m.Dispatch(OfferReceived{From: "a", SDP: "offer-a"})
	fx.m.Dispatch(RoomEntered{Room: "r", Participants: []domain.UserID{"a", "b", "c"}})

	assert.Equal(t, domain.RoomName("r"), fx.m.Room())
	assert.Equal(t, 2, fx.m.PeerCount())
	require.Len(t, fx.f.links["a"], 1)
	assert.False(t, fx.f.links["a"][0].closed)
	st, _ := fx.m.PeerState("a")
	assert.Equal(t, StateAnswerSent, st)
	st, _ = fx.m.PeerState("b")
	assert.Equal(t, StateNew, st)
	assert.Empty(t, fx.obs.removed)
}

func TestRoomEnteredAgainKeepsLinks(t *testing.T) {
	fx := newFixture("c")
	fx.m.Dispatch(RoomEntered{Room: "home", Participants: []domain.UserID{"a", "c"}})
	fx.m.Dispatch(OfferReceived{From: "a", SDP: "offer-a"})
	fx.m.Dispatch(RoomEntered{Room: "home", Participants: []domain.UserID{"a", "c"}})

	require.Len(t, fx.f.links["a"], 1)
	st, _ := fx.m.PeerState("a")
	assert.Equal(t, StateAnswerSent, st)
	assert.Empty(t, fx.obs.removed)
}

func TestRoomSwitchDropsFormerMembersOnly(t *testing.T) {
	fx := newFixture("c")
	fx.m.Dispatch(RoomEntered{Room: "home", Participants: []domain.UserID{"a", "c"}, VideoSenders: []domain.UserID{"a"}})
	require.Equal(t, domain.UserID("a"), fx.m.Highlighted())
	fx.m.Dispatch(CandidateReceived{From: "x", Candidate: cand(1)})

	fx.m.Dispatch(RoomEntered{Room: "away", Participants: []domain.UserID{"b", "c"}})

	assert.Equal(t, domain.RoomName("away"), fx.m.Room())
	assert.True(t, fx.f.last("a").closed)
	assert.Equal(t, []domain.UserID{"a"}, fx.obs.removed)
	assert.Equal(t, []domain.UserID{"b"}, fx.m.Participants())
	assert.Equal(t, domain.UserID(""), fx.m.Highlighted())
	assert.Empty(t, fx.m.early)
	st, ok := fx.m.PeerState("b")
	require.True(t, ok)
	assert.Equal(t, StateNew, st)
}

func TestOneLinkPerParticipantOnRepeatedJoin(t *testing.T) {
	fx := newFixture("a")
	fx.m.Dispatch(RoomEntered{Room: "r"})
	fx.m.Dispatch(NewParticipant{User: "b"})
	fx.m.Dispatch(NewParticipant{User: "b"})

	assert.Equal(t, 1, fx.m.PeerCount())
	require.Len(t, fx.f.links["b"], 2)
	assert.True(t, fx.f.links["b"][0].closed)
	assert.False(t, fx.f.links["b"][1].closed)
	assert.Equal(t, []domain.UserID{"b"}, fx.m.Participants())
}

func TestStaleLinkEventsAreIgnored(t *testing.T) {
	fx := newFixture("a")
	fx.m.Dispatch(RoomEntered{Room: "r"})
	fx.m.Dispatch(NewParticipant{User: "b"})
	oldGen := fx.m.peers["b"].gen
	fx.m.Dispatch(NewParticipant{User: "b"})

	fx.m.Dispatch(ChannelOpened{Peer: "b", Channel: &fakeChannel{label: ChatLabel}, gen: oldGen})
	assert.Empty(t, fx.m.ChatChannels())

	fx.m.Dispatch(ChannelMessage{Peer: "b", Label: ChatLabel, Data: []byte("x"), gen: oldGen})
	assert.Empty(t, fx.obs.messages)

	fx.m.Dispatch(ChannelMessage{Peer: "b", Label: ChatLabel, Data: []byte("hi"), gen: fx.m.peers["b"].gen})
	assert.Equal(t, []string{"b/chat/hi"}, fx.obs.messages)
}

func TestMembershipSyncDropsDepartedPeers(t *testing.T) {
	fx := newFixture("d")
	fx.m.Dispatch(RoomEntered{Room: "r", Participants: []domain.UserID{"a", "b"}})
	fx.m.Dispatch(MembershipSync{Participants: []domain.UserID{"a", "d"}})

	assert.Equal(t, 1, fx.m.PeerCount())
	_, ok := fx.m.PeerState("b")
	assert.False(t, ok)
	assert.Equal(t, []domain.UserID{"a"}, fx.m.Participants())
}

func TestLeaveClosesEverything(t *testing.T) {
	fx := newFixture("c")
	fx.m.Dispatch(RoomEntered{Room: "r", Participants: []domain.UserID{"a", "b"}})
	fx.m.Dispatch(Leave{})

	assert.Equal(t, 0, fx.m.PeerCount())
	assert.Equal(t, domain.RoomName(""), fx.m.Room())
	assert.True(t, fx.f.last("a").closed)
	assert.True(t, fx.f.last("b").closed)
	assert.ElementsMatch(t, []domain.UserID{"a", "b"}, fx.obs.removed)
}

func TestOfferFailureIsReported(t *testing.T) {
	fx := newFixture("a")
	fx.f.offerErr = errors.New("boom")
	fx.m.Dispatch(RoomEntered{Room: "r"})
	fx.m.Dispatch(NewParticipant{User: "b"})

	require.Len(t, fx.obs.errs, 1)
	assert.ErrorContains(t, fx.obs.errs[0], "boom")
	assert.Equal(t, 0, fx.m.PeerCount())
	assert.Empty(t, fx.sig.msgs)
}

func TestAnswerWithoutOfferIsRejected(t *testing.T) {
	fx := newFixture("c")
	fx.m.Dispatch(RoomEntered{Room: "r", Participants: []domain.UserID{"a"}})
	fx.m.Dispatch(AnswerReceived{From: "a", SDP: "x"})

	require.Len(t, fx.obs.errs, 1)
	assert.ErrorIs(t, fx.obs.errs[0], ErrInvalidTransition)
	st, _ := fx.m.PeerState("a")
	assert.Equal(t, StateNew, st)
}

func TestRunProcessesPostedEventsAndStops(t *testing.T) {
	fx := newFixture("a")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.m.Run(ctx)
	}()

	require.NoError(t, fx.m.Post(RoomEntered{Room: "r"}))
	require.NoError(t, fx.m.Post(NewParticipant{User: "b"}))

	// Transport callbacks go through the handler handed to the factory.
	require.Eventually(t, func() bool {
		count := make(chan int, 1)
		if err := fx.m.Post(Tick{Fn: func() { count <- fx.m.PeerCount() }}); err != nil {
			return false
		}
		return <-count == 1
	}, time.Second, 5*time.Millisecond)

	var link *fakeLink
	got := make(chan struct{})
	require.NoError(t, fx.m.Post(Tick{Fn: func() { link = fx.f.last("b"); close(got) }}))
	<-got
	link.handler.OnICECandidate("b", cand(9))

	require.Eventually(t, func() bool {
		fx.sig.mu.Lock()
		defer fx.sig.mu.Unlock()
		return len(fx.sig.candidates) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.True(t, link.closed, "stopping the loop closes links")
	assert.ErrorIs(t, fx.m.Post(Leave{}), ErrStopped)
}
