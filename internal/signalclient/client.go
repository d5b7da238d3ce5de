// Package signalclient is the participant side of the coordinator
// WebSocket.
package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outgoingBuffer = 256
	incomingBuffer = 64
)

var (
	ErrClosed       = errors.New("signaling connection closed")
	ErrBackpressure = errors.New("signaling send queue full")
)

// Client manages the WebSocket connection to the coordinator.
type Client struct {
	conn     *websocket.Conn
	outgoing chan []byte
	incoming chan protocol.Envelope
	done     chan struct{}
	once     sync.Once

	seq     atomic.Uint64
	mu      sync.Mutex
	waiters map[uint64]waiter
}

type waiter struct {
	ch   chan protocol.Envelope
	then func(protocol.Envelope)
}

// Dial connects to serverURL, a ws:// or wss:// address of the signal
// endpoint.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		outgoing: make(chan []byte, outgoingBuffer),
		incoming: make(chan protocol.Envelope, incomingBuffer),
		done:     make(chan struct{}),
		waiters:  make(map[uint64]waiter),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	log.Info().Str("module", "signalclient").Str("url", u.String()).Msg("connected")
	return c, nil
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signalclient").Msg("read")
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "signalclient").Msg("bad message")
			continue
		}
		if env.Type == protocol.TypeAck {
			c.resolve(env)
			continue
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) resolve(env protocol.Envelope) {
	c.mu.Lock()
	w, ok := c.waiters[env.Seq]
	delete(c.waiters, env.Seq)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "signalclient").Uint64("seq", env.Seq).Msg("ack without waiter")
		return
	}
	if w.then != nil {
		w.then(env)
	}
	w.ch <- env
}

func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

// Send is fire-and-forget.
func (c *Client) Send(typ string, payload any) error {
	data, err := protocol.Encode(typ, 0, payload)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Request sends a message with a fresh sequence number and waits for its
// ack. The ack payload is decoded into out when out is not nil.
func (c *Client) Request(ctx context.Context, typ string, payload, out any) error {
	return c.RequestThen(ctx, typ, payload, out, nil)
}

// RequestThen is Request with a hook that runs on the read goroutine when
// the ack arrives, before any push received after it is handed to
// Incoming. The hook still runs if ctx ends first.
func (c *Client) RequestThen(ctx context.Context, typ string, payload, out any, then func(protocol.Envelope)) error {
	seq := c.seq.Add(1)
	data, err := protocol.Encode(typ, seq, payload)
	if err != nil {
		return err
	}

	ch := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	c.waiters[seq] = waiter{ch: ch, then: then}
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.waiters, seq)
		c.mu.Unlock()
	}

	if err := c.enqueue(data); err != nil {
		forget()
		return err
	}

	select {
	case env := <-ch:
		if out == nil {
			return nil
		}
		if err := env.Decode(out); err != nil {
			return fmt.Errorf("decode %s ack: %w", typ, err)
		}
		return nil
	case <-ctx.Done():
		if then == nil {
			forget()
		}
		return ctx.Err()
	case <-c.done:
		forget()
		return ErrClosed
	}
}

// Incoming yields server pushes. It is closed when the connection ends.
func (c *Client) Incoming() <-chan protocol.Envelope {
	return c.incoming
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// Close ends the connection with a normal close frame.
func (c *Client) Close() {
	c.shutdown()
}
