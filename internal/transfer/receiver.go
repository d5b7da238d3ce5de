package transfer

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Transfer is one inbound file being reassembled. There is at most one per
// sender.
type Transfer struct {
	ID        string
	Sender    domain.UserID
	Filename  string
	Size      int64
	Received  int64
	StartedAt time.Time
	UpdatedAt time.Time

	chunks [][]byte
}

// File is a completed inbound transfer.
type File struct {
	Sender domain.UserID
	Name   string
	Data   []byte
}

// maxEarlyChunks bounds the chunks kept per sender while its announce is
// still on the way.
const maxEarlyChunks = 64

// early holds chunks that beat their announce. The chat and file channels
// are separate streams, so the first chunks can arrive first.
type early struct {
	chunks    [][]byte
	updatedAt time.Time
}

type Receiver struct {
	mu        sync.Mutex
	transfers map[domain.UserID]*Transfer
	early     map[domain.UserID]*early
	timeout   time.Duration
	now       func() time.Time
}

func NewReceiver(timeout time.Duration) *Receiver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Receiver{
		transfers: make(map[domain.UserID]*Transfer),
		early:     make(map[domain.UserID]*early),
		timeout:   timeout,
		now:       time.Now,
	}
}

// Announce opens a transfer for sender. A partial transfer still open for
// the same sender is discarded. A zero byte file completes at once.
// Chunks that arrived ahead of the announce are applied right away and may
// complete the file.
func (r *Receiver) Announce(sender domain.UserID, name string, size int64) (*File, error) {
	if size < 0 {
		return nil, NewFileError("announce", name, fmt.Errorf("%w: negative size %d", ErrInvalidFile, size))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if stale, ok := r.transfers[sender]; ok {
		log.Warn().Str("module", "transfer").Str("peer", string(sender)).Str("file", stale.Filename).
			Int64("received", stale.Received).Int64("size", stale.Size).Msg("discarding incomplete transfer")
		delete(r.transfers, sender)
	}
	if size == 0 {
		return &File{Sender: sender, Name: name, Data: []byte{}}, nil
	}
	now := r.now()
	t := &Transfer{
		ID:        uuid.NewString(),
		Sender:    sender,
		Filename:  name,
		Size:      size,
		StartedAt: now,
		UpdatedAt: now,
	}
	r.transfers[sender] = t

	e, ok := r.early[sender]
	if !ok {
		return nil, nil
	}
	delete(r.early, sender)
	for i, chunk := range e.chunks {
		f, err := r.apply(t, chunk)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		// The rest belongs to the next file.
		if rest := e.chunks[i+1:]; len(rest) > 0 {
			r.early[sender] = &early{chunks: rest, updatedAt: e.updatedAt}
		}
		return f, nil
	}
	return nil, nil
}

// Deliver appends one chunk. It returns the file once the declared size is
// reached exactly. A chunk with no transfer open is held until the announce
// arrives; ErrUnexpectedChunk is returned only once too many pile up.
func (r *Receiver) Deliver(sender domain.UserID, chunk []byte) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[sender]
	if !ok {
		e := r.early[sender]
		if e == nil {
			e = &early{}
			r.early[sender] = e
		}
		if len(e.chunks) >= maxEarlyChunks {
			delete(r.early, sender)
			return nil, WrapError("deliver", ErrUnexpectedChunk, string(sender))
		}
		e.chunks = append(e.chunks, append([]byte(nil), chunk...))
		e.updatedAt = r.now()
		log.Debug().Str("module", "transfer").Str("peer", string(sender)).Int("held", len(e.chunks)).Msg("chunk ahead of announce")
		return nil, nil
	}
	return r.apply(t, chunk)
}

func (r *Receiver) apply(t *Transfer, chunk []byte) (*File, error) {
	if t.Received+int64(len(chunk)) > t.Size {
		delete(r.transfers, t.Sender)
		return nil, NewFileError("deliver", t.Filename, ErrSizeMismatch)
	}
	t.chunks = append(t.chunks, append([]byte(nil), chunk...))
	t.Received += int64(len(chunk))
	t.UpdatedAt = r.now()
	if t.Received < t.Size {
		return nil, nil
	}

	delete(r.transfers, t.Sender)
	data := make([]byte, 0, t.Size)
	for _, c := range t.chunks {
		data = append(data, c...)
	}
	log.Info().Str("module", "transfer").Str("peer", string(t.Sender)).Str("file", t.Filename).Int64("size", t.Size).Msg("file received")
	return &File{Sender: t.Sender, Name: t.Filename, Data: data}, nil
}

// Abandon drops whatever a sender that went away left behind.
func (r *Receiver) Abandon(sender domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.early[sender]
	delete(r.early, sender)
	t, ok := r.transfers[sender]
	if !ok {
		return held
	}
	delete(r.transfers, sender)
	log.Info().Str("module", "transfer").Str("peer", string(sender)).Str("file", t.Filename).Msg("transfer abandoned")
	return true
}

// Sweep drops transfers and held chunks that made no progress for longer
// than the timeout and returns their senders.
func (r *Receiver) Sweep(now time.Time) []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []domain.UserID
	for sender, t := range r.transfers {
		if now.Sub(t.UpdatedAt) > r.timeout {
			delete(r.transfers, sender)
			dropped = append(dropped, sender)
			log.Warn().Str("module", "transfer").Str("peer", string(sender)).Str("file", t.Filename).Msg("transfer timed out")
		}
	}
	for sender, e := range r.early {
		if now.Sub(e.updatedAt) > r.timeout {
			delete(r.early, sender)
			if !slices.Contains(dropped, sender) {
				dropped = append(dropped, sender)
			}
			log.Warn().Str("module", "transfer").Str("peer", string(sender)).Int("held", len(e.chunks)).Msg("announce never came")
		}
	}
	return dropped
}

// Pending returns a copy of the open transfer for sender without its data.
func (r *Receiver) Pending(sender domain.UserID) (Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[sender]
	if !ok {
		return Transfer{}, false
	}
	cp := *t
	cp.chunks = nil
	return cp, true
}

func (r *Receiver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}
