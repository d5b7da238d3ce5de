package transfer

import "time"

const (
	// ChunkSize is the payload of one file channel message.
	ChunkSize = 16384
	// DefaultMaxSelection caps the combined size of one upload.
	DefaultMaxSelection int64 = 10_000_000
	DefaultTimeout            = 2 * time.Minute
)
