package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// Uploader admits one selection of files at a time.
type Uploader struct {
	mu   sync.Mutex
	busy bool
	max  int64
}

func NewUploader(maxSelection int64) *Uploader {
	if maxSelection <= 0 {
		maxSelection = DefaultMaxSelection
	}
	return &Uploader{max: maxSelection}
}

func (u *Uploader) Busy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.busy
}

// Begin locks the uploader for files. An oversized selection is refused
// before anything is read and leaves the uploader free.
func (u *Uploader) Begin(files []FileInfo) (*Upload, error) {
	total := TotalSize(files)
	if total > u.max {
		return nil, WrapError("select", ErrSelectionTooLarge, fmt.Sprintf("%d > %d bytes", total, u.max))
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.busy {
		return nil, NewError("select", ErrUploadInProgress)
	}
	u.busy = true
	return &Upload{u: u, files: files, sent: make([]int64, len(files))}, nil
}

func (u *Uploader) release() {
	u.mu.Lock()
	u.busy = false
	u.mu.Unlock()
}

// Upload is one admitted selection.
type Upload struct {
	u     *Uploader
	files []FileInfo

	mu   sync.Mutex
	sent []int64
	once sync.Once
}

// Progress is the state of one file of the selection.
type Progress struct {
	Name string
	Sent int64
	Size int64
}

func (up *Upload) Progress() []Progress {
	up.mu.Lock()
	defer up.mu.Unlock()
	out := make([]Progress, len(up.files))
	for i, f := range up.files {
		out[i] = Progress{Name: f.Name, Sent: up.sent[i], Size: f.Size}
	}
	return out
}

// Run sends the files one after another. For each file it calls announce,
// then reads ChunkSize chunks and hands each to dispatch; the next read
// starts only after dispatch returned. The uploader is released when Run
// returns, whatever the outcome.
func (up *Upload) Run(ctx context.Context, announce func(FileInfo) error, dispatch func([]byte) error) error {
	defer up.Release()
	for i, f := range up.files {
		if err := ctx.Err(); err != nil {
			return NewFileError("send", f.Name, err)
		}
		if err := announce(f); err != nil {
			return NewFileError("announce", f.Name, err)
		}
		if err := up.sendFile(ctx, i, f, dispatch); err != nil {
			return err
		}
		log.Info().Str("module", "transfer").Str("file", f.Name).Int64("size", f.Size).Msg("file sent")
	}
	return nil
}

// Release frees the uploader without sending. Safe to call more than once.
func (up *Upload) Release() {
	up.once.Do(up.u.release)
}

func (up *Upload) sendFile(ctx context.Context, idx int, f FileInfo, dispatch func([]byte) error) error {
	if f.Size == 0 {
		return nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return NewFileError("open", f.Name, err)
	}
	defer fh.Close()

	r := io.LimitReader(fh, f.Size)
	var sent int64
	for sent < f.Size {
		if err := ctx.Err(); err != nil {
			return NewFileError("send", f.Name, err)
		}
		chunk := make([]byte, min(int64(ChunkSize), f.Size-sent))
		n, err := io.ReadFull(r, chunk)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return NewFileError("read", f.Name, ErrShortFile)
			}
			return NewFileError("read", f.Name, err)
		}
		if err := dispatch(chunk[:n]); err != nil {
			return NewFileError("dispatch", f.Name, err)
		}
		sent += int64(n)
		up.mu.Lock()
		up.sent[idx] = sent
		up.mu.Unlock()
	}
	return nil
}
