package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserHasPlaceholderNickname(t *testing.T) {
	u := NewUser("u1")
	assert.Equal(t, DefaultNickname, u.Nickname)
	assert.Empty(t, u.Room)
}

func TestSetNickname(t *testing.T) {
	u := NewUser("u1")

	require.NoError(t, u.SetNickname("  alice  "))
	assert.Equal(t, "alice", u.Nickname)

	assert.ErrorIs(t, u.SetNickname("   \t"), ErrUsernameEmpty)
	assert.Equal(t, "alice", u.Nickname)

	require.NoError(t, u.SetNickname(strings.Repeat("й", MaxUsernameLen+5)))
	assert.Equal(t, MaxUsernameLen, len([]rune(u.Nickname)))
}

func TestNormalizeRoomName(t *testing.T) {
	name, err := NormalizeRoomName("  lobby ")
	require.NoError(t, err)
	assert.Equal(t, RoomName("lobby"), name)

	_, err = NormalizeRoomName("   ")
	assert.ErrorIs(t, err, ErrRoomNameInvalid)

	_, err = NormalizeRoomName(strings.Repeat("x", MaxRoomNameLen+1))
	assert.ErrorIs(t, err, ErrRoomNameInvalid)
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	r := &Room{Name: "r", Creator: "a", Participants: []UserID{"a"}, VideoSenders: []UserID{"a"}}
	snap := r.Snapshot()
	snap.Participants[0] = "z"
	snap.VideoSenders = append(snap.VideoSenders, "b")

	assert.Equal(t, UserID("a"), r.Participants[0])
	assert.Len(t, r.VideoSenders, 1)
	assert.True(t, r.HasParticipant("a"))
	assert.True(t, snap.SendsVideo("b"))
	assert.False(t, r.SendsVideo("b"))
}
