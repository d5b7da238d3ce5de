package rtc

import (
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	bufferedHigh = 1 << 20
	bufferedLow  = 256 << 10
	drainTimeout = 30 * time.Second
)

var ErrChannelStalled = errors.New("data channel buffer did not drain")

type dataChannel struct {
	dc  *webrtc.DataChannel
	low chan struct{}
}

func newDataChannel(dc *webrtc.DataChannel) *dataChannel {
	ch := &dataChannel{dc: dc, low: make(chan struct{}, 1)}
	dc.SetBufferedAmountLowThreshold(bufferedLow)
	dc.OnBufferedAmountLow(func() {
		select {
		case ch.low <- struct{}{}:
		default:
		}
	})
	return ch
}

func (c *dataChannel) Label() string { return c.dc.Label() }

// Send blocks while the outbound buffer is above the high watermark.
func (c *dataChannel) Send(data []byte) error {
	if c.dc.BufferedAmount() > bufferedHigh {
		select {
		case <-c.low:
		case <-time.After(drainTimeout):
			return ErrChannelStalled
		}
	}
	return c.dc.Send(data)
}

func (c *dataChannel) SendText(text string) error { return c.dc.SendText(text) }

func (c *dataChannel) Close() error { return c.dc.Close() }
