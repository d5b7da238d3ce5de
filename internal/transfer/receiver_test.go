package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiverReassemblesChunks(t *testing.T) {
	r := NewReceiver(time.Minute)
	data := bytes.Repeat([]byte("abcdefgh"), ChunkSize/4)

	f, err := r.Announce("u1", "doc.txt", int64(len(data)))
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 1, r.Len())

	f, err = r.Deliver("u1", data[:ChunkSize])
	require.NoError(t, err)
	assert.Nil(t, f)
	pending, ok := r.Pending("u1")
	require.True(t, ok)
	assert.EqualValues(t, ChunkSize, pending.Received)

	f, err = r.Deliver("u1", data[ChunkSize:])
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "doc.txt", f.Name)
	assert.EqualValues(t, "u1", f.Sender)
	assert.True(t, bytes.Equal(data, f.Data))
	assert.Equal(t, 0, r.Len())
}

func TestReceiverKeepsSendersApart(t *testing.T) {
	r := NewReceiver(0)
	_, err := r.Announce("a", "one", 2)
	require.NoError(t, err)
	_, err = r.Announce("b", "two", 2)
	require.NoError(t, err)

	_, err = r.Deliver("a", []byte("1"))
	require.NoError(t, err)
	f, err := r.Deliver("b", []byte("xy"))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "two", f.Name)

	f, err = r.Deliver("a", []byte("2"))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []byte("12"), f.Data)
}

func TestEmptyFileCompletesOnAnnounce(t *testing.T) {
	r := NewReceiver(0)
	f, err := r.Announce("a", "empty", 0)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Empty(t, f.Data)
	assert.Equal(t, 0, r.Len())
}

func TestChunksAheadOfAnnounceAreHeld(t *testing.T) {
	r := NewReceiver(0)
	f, err := r.Deliver("a", []byte("ab"))
	require.NoError(t, err)
	assert.Nil(t, f)
	f, err = r.Deliver("a", []byte("cd"))
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 0, r.Len())

	_, err = r.Announce("a", "late", 6)
	require.NoError(t, err)
	pending, ok := r.Pending("a")
	require.True(t, ok)
	assert.EqualValues(t, 4, pending.Received)

	f, err = r.Deliver("a", []byte("ef"))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []byte("abcdef"), f.Data)
}

func TestHeldChunksCanCompleteOnAnnounce(t *testing.T) {
	r := NewReceiver(0)
	for _, c := range []string{"12", "3", "next"} {
		_, err := r.Deliver("a", []byte(c))
		require.NoError(t, err)
	}

	f, err := r.Announce("a", "first", 3)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "first", f.Name)
	assert.Equal(t, []byte("123"), f.Data)
	assert.Equal(t, 0, r.Len())

	f, err = r.Announce("a", "second", 4)
	require.NoError(t, err)
	require.NotNil(t, f, "leftover chunk belongs to the next file")
	assert.Equal(t, []byte("next"), f.Data)
	assert.Empty(t, r.early)
}

func TestTooManyChunksWithoutAnnounceAreRejected(t *testing.T) {
	r := NewReceiver(0)
	for range maxEarlyChunks {
		_, err := r.Deliver("a", []byte("x"))
		require.NoError(t, err)
	}
	_, err := r.Deliver("a", []byte("x"))
	assert.ErrorIs(t, err, ErrUnexpectedChunk)
	assert.Empty(t, r.early)
}

func TestHeldChunksOverflowingAnnounceDropTransfer(t *testing.T) {
	r := NewReceiver(0)
	_, err := r.Deliver("a", []byte("abcd"))
	require.NoError(t, err)
	_, err = r.Announce("a", "f", 3)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, 0, r.Len())
}

func TestOverflowingChunkDropsTransfer(t *testing.T) {
	r := NewReceiver(0)
	_, err := r.Announce("a", "f", 3)
	require.NoError(t, err)
	_, err = r.Deliver("a", []byte("abcd"))
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, 0, r.Len())
}

func TestNewAnnounceReplacesPartialTransfer(t *testing.T) {
	r := NewReceiver(0)
	_, err := r.Announce("a", "first", 10)
	require.NoError(t, err)
	_, err = r.Deliver("a", []byte("12345"))
	require.NoError(t, err)

	_, err = r.Announce("a", "second", 2)
	require.NoError(t, err)
	pending, ok := r.Pending("a")
	require.True(t, ok)
	assert.Equal(t, "second", pending.Filename)
	assert.Zero(t, pending.Received)
}

func TestAbandonAndSweep(t *testing.T) {
	r := NewReceiver(time.Minute)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return start }

	_, err := r.Announce("gone", "x", 5)
	require.NoError(t, err)
	_, err = r.Announce("slow", "y", 5)
	require.NoError(t, err)
	_, err = r.Announce("busy", "z", 5)
	require.NoError(t, err)

	assert.True(t, r.Abandon("gone"))
	assert.False(t, r.Abandon("gone"))

	_, err = r.Deliver("stray", []byte("1"))
	require.NoError(t, err)
	_, err = r.Deliver("left", []byte("1"))
	require.NoError(t, err)
	assert.True(t, r.Abandon("left"))

	r.now = func() time.Time { return start.Add(50 * time.Second) }
	_, err = r.Deliver("busy", []byte("1"))
	require.NoError(t, err)

	dropped := r.Sweep(start.Add(90 * time.Second))
	assert.ElementsMatch(t, []string{"slow", "stray"}, toStrings(dropped))
	_, ok := r.Pending("busy")
	assert.True(t, ok)
	assert.Empty(t, r.early)
}

func TestAnnounceRejectsNegativeSize(t *testing.T) {
	_, err := NewReceiver(0).Announce("a", "x", -1)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestSinkNeverOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	s := NewSink(dir)

	first, err := s.Save(File{Name: "notes.txt", Data: []byte("one")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), first)

	second, err := s.Save(File{Name: "notes.txt", Data: []byte("two")})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, ".txt", filepath.Ext(second))

	got, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
	got, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`..\..\windows\x.ini`: "x.ini",
		"bad\x00name":         "badname",
		"..":                  "download",
		"":                    "download",
		"/":                   "download",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitize(in), "sanitize(%q)", in)
	}
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
