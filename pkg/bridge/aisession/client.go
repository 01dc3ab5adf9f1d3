// Package aisession speaks the realtime voice-AI websocket protocol. It
// owns the socket, decodes server events into a typed stream, and exposes
// the small set of commands the bridge issues.
package aisession

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the subset of the websocket connection the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Config carries the dial parameters for one AI session.
type Config struct {
	URL    string
	APIKey string
	Model  string
}

// Client is one live AI session. Writes are serialized with a mutex; the
// read loop runs in its own goroutine and delivers decoded events on
// Events(). Events is closed when the socket closes.
type Client struct {
	conn   Conn
	log    *slog.Logger
	events chan Event
	done   chan error
	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens a realtime session. The context bounds the websocket handshake.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	url := cfg.URL
	if cfg.Model != "" {
		url = fmt.Sprintf("%s?model=%s", cfg.URL, cfg.Model)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial ai session: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial ai session: %w", err)
	}
	return NewClient(conn, log), nil
}

// NewClient wraps an already-open connection. Tests use this with a fake.
func NewClient(conn Conn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		log:    log,
		events: make(chan Event, 64),
		done:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the read loop.
func (c *Client) Start() {
	go c.readLoop()
}

// Events delivers decoded server events in arrival order.
func (c *Client) Events() <-chan Event { return c.events }

// Done reports the terminal socket error, nil on a clean close. It is
// readable after Events closes.
func (c *Client) Done() <-chan error { return c.done }

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				c.done <- nil
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.done <- nil
				} else {
					c.done <- err
				}
			}
			return
		}
		ev, err := DecodeServerEvent(data)
		if err != nil {
			c.log.Warn("discarding undecodable ai frame", "error", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-c.ctx.Done():
			c.done <- nil
			return
		}
	}
}

func (c *Client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ConfigureSession sends session.update. The server answers with
// session.updated, which is the readiness signal for audio.
func (c *Client) ConfigureSession(cfg SessionConfig) error {
	data, err := encodeSessionUpdate(cfg)
	if err != nil {
		return err
	}
	return c.send(data)
}

// AppendAudio forwards one base64 telephony frame into the input buffer.
func (c *Client) AppendAudio(payloadB64 string) error {
	data, err := encodeAudioAppend(payloadB64)
	if err != nil {
		return err
	}
	return c.send(data)
}

// SendFunctionOutput answers a tool call and asks for a follow-up response
// so the assistant speaks the result.
func (c *Client) SendFunctionOutput(callRef, output string) error {
	data, err := encodeFunctionOutput(callRef, output)
	if err != nil {
		return err
	}
	if err := c.send(data); err != nil {
		return err
	}
	return c.CreateResponse()
}

// CreateResponse asks the model to produce the next turn.
func (c *Client) CreateResponse() error {
	data, err := encodeResponseCreate("")
	if err != nil {
		return err
	}
	return c.send(data)
}

// CreateResponseWith requests a turn with one-off instructions, used for
// the opening greeting.
func (c *Client) CreateResponseWith(instructions string) error {
	data, err := encodeResponseCreate(instructions)
	if err != nil {
		return err
	}
	return c.send(data)
}

// Close shuts the socket down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
