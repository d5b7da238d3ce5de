package rtc

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

func DefaultWebRTCConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

// Factory builds peer links sharing one pion API and one set of local
// tracks.
type Factory struct {
	api   *webrtc.API
	cfg   webrtc.Configuration
	media *LocalMedia
}

func NewFactory(cfg webrtc.Configuration, loggers logging.LoggerFactory, media *LocalMedia) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	se := webrtc.SettingEngine{}
	if loggers != nil {
		se.LoggerFactory = loggers
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se))
	return &Factory{api: api, cfg: cfg, media: media}, nil
}

func (f *Factory) NewLink(remote domain.UserID, h mesh.LinkHandler) (mesh.Link, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	l := newLink(pc, remote, h)
	if f.media != nil {
		for _, track := range f.media.Tracks() {
			if err := l.addTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
			}
		}
	}
	return l, nil
}
