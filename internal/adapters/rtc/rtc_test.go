package rtc

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopHandler struct{}

func (nopHandler) OnICECandidate(domain.UserID, webrtc.ICECandidateInit) {}
func (nopHandler) OnStateChange(domain.UserID, mesh.LinkState) {}
func (nopHandler) OnChannelOpen(domain.UserID, mesh.Channel) {}
func (nopHandler) OnChannelMessage(domain.UserID, string, []byte, bool) {}
func (nopHandler) OnTrack(domain.UserID, string) {}

func TestZerologFactoryScopesAndCapsLevel(t *testing.T) {
	var buf bytes.Buffer
	f := NewZerologFactory(zerolog.New(&buf), zerolog.WarnLevel)
	l := f.NewLogger("ice")

	l.Debug("hidden")
	l.Infof("hidden %d", 1)
	l.Warnf("candidate %s failed", "host")
	l.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"scope":"ice"`)
	assert.Contains(t, out, `"module":"pion"`)
	assert.Contains(t, out, "candidate host failed")
	assert.Contains(t, out, "boom")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestLocalMediaTracks(t *testing.T) {
	audioOnly, err := NewLocalMedia("s1", false, nil)
	require.NoError(t, err)
	assert.Len(t, audioOnly.Tracks(), 1)
	assert.NoError(t, audioOnly.WriteVideo([]byte{1}, time.Millisecond), "no video track is a no-op")

	var seen [][]byte
	filter := FrameFilterFunc(func(frame []byte) []byte {
		seen = append(seen, frame)
		return append([]byte{0xff}, frame...)
	})
	av, err := NewLocalMedia("s2", true, filter)
	require.NoError(t, err)
	require.Len(t, av.Tracks(), 2)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, av.Tracks()[1].Kind())

	// Unbound tracks accept samples and drop them.
	require.NoError(t, av.WriteVideo([]byte{1, 2}, 33*time.Millisecond))
	require.NoError(t, av.WriteAudio([]byte{3}, 20*time.Millisecond))
	assert.Equal(t, [][]byte{{1, 2}}, seen)
}

func TestDefaultWebRTCConfig(t *testing.T) {
	cfg := DefaultWebRTCConfig(nil)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)

	cfg = DefaultWebRTCConfig([]string{"stun:example.org:3478"})
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers[0].URLs)
}

func TestLinkOfferCarriesChannelsAndMedia(t *testing.T) {
	media, err := NewLocalMedia("me", true, nil)
	require.NoError(t, err)
	f, err := NewFactory(webrtc.Configuration{}, NewZerologFactory(zerolog.Nop(), zerolog.Disabled), media)
	require.NoError(t, err)

	link, err := f.NewLink("peer", nopHandler{})
	require.NoError(t, err)
	defer link.Close()

	ch, err := link.OpenChannel(mesh.ChatLabel)
	require.NoError(t, err)
	assert.Equal(t, mesh.ChatLabel, ch.Label())

	sdp, err := link.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, sdp, "m=audio")
	assert.Contains(t, sdp, "m=video")
	assert.Contains(t, sdp, "m=application")
}

func TestLinksNegotiateLocally(t *testing.T) {
	f, err := NewFactory(webrtc.Configuration{}, nil, nil)
	require.NoError(t, err)

	offerer, err := f.NewLink("b", nopHandler{})
	require.NoError(t, err)
	defer offerer.Close()
	answerer, err := f.NewLink("a", nopHandler{})
	require.NoError(t, err)
	defer answerer.Close()

	_, err = offerer.OpenChannel(mesh.FileLabel)
	require.NoError(t, err)
	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	answer, err := answerer.AcceptOffer(offer)
	require.NoError(t, err)
	assert.Contains(t, answer, "m=application")
	require.NoError(t, offerer.AcceptAnswer(answer))
}
