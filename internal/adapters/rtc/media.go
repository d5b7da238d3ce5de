package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// FrameFilter post-processes an encoded video frame before it is sent.
type FrameFilter interface {
	Apply(frame []byte) []byte
}

// FrameFilterFunc adapts a plain function.
type FrameFilterFunc func([]byte) []byte

func (f FrameFilterFunc) Apply(frame []byte) []byte { return f(frame) }

// LocalMedia is the outbound audio and processed video shared by every
// link of the participant.
type LocalMedia struct {
	Audio  *webrtc.TrackLocalStaticSample
	Video  *webrtc.TrackLocalStaticSample
	Filter FrameFilter
}

// NewLocalMedia creates an Opus track and, when video is set, a VP8 track.
func NewLocalMedia(streamID string, video bool, filter FrameFilter) (*LocalMedia, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, err
	}
	m := &LocalMedia{Audio: audio, Filter: filter}
	if video {
		m.Video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *LocalMedia) Tracks() []webrtc.TrackLocal {
	out := []webrtc.TrackLocal{m.Audio}
	if m.Video != nil {
		out = append(out, m.Video)
	}
	return out
}

func (m *LocalMedia) WriteAudio(frame []byte, d time.Duration) error {
	return m.Audio.WriteSample(media.Sample{Data: frame, Duration: d})
}

// WriteVideo runs the frame through the filter first. Without a video
// track it is a no-op.
func (m *LocalMedia) WriteVideo(frame []byte, d time.Duration) error {
	if m.Video == nil {
		return nil
	}
	if m.Filter != nil {
		frame = m.Filter.Apply(frame)
	}
	return m.Video.WriteSample(media.Sample{Data: frame, Duration: d})
}
