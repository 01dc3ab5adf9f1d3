package telephony

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrQueueFull = errors.New("telephony outbound queue full")

const priorityQueueSize = 8

// Conn is the subset of *websocket.Conn the channel needs; tests substitute a
// fake.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Config struct {
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	OutboundQueueSize int
}

// Channel wraps the accepted telephony media-stream socket. Inbound frames
// are decoded once and surfaced as typed events; outbound frames flow through
// a two-lane write pump so a clear command is never stuck behind queued audio.
// No buffering of call audio and no reconnection: a dropped socket ends the
// call.
type Channel struct {
	ws     Conn
	logger *slog.Logger
	cfg    Config

	events   chan Event
	priority chan []byte
	normal   chan []byte
	done     chan error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewChannel(ws Conn, logger *slog.Logger, cfg Config) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 128
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		ws:       ws,
		logger:   logger,
		cfg:      cfg,
		events:   make(chan Event, 64),
		priority: make(chan []byte, priorityQueueSize),
		normal:   make(chan []byte, cfg.OutboundQueueSize),
		done:     make(chan error, 2),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the read and write pumps. Call once.
func (c *Channel) Start() {
	go c.readLoop()
	go c.writeLoop()
}

// Events yields decoded inbound frames in arrival order. The channel closes
// when the socket closes or errors.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Done reports the first pump failure. A clean remote close delivers nil.
func (c *Channel) Done() <-chan error {
	return c.done
}

// SendMedia queues one outbound audio frame addressed to streamSID. The queue
// is bounded; when full the frame is rejected rather than blocking the
// caller, matching the best-effort relay contract.
func (c *Channel) SendMedia(streamSID, payloadB64 string) error {
	data, err := EncodeMedia(streamSID, payloadB64)
	if err != nil {
		return err
	}
	return c.enqueue(c.normal, data)
}

// SendMark queues a playback mark after the most recent audio.
func (c *Channel) SendMark(streamSID, name string) error {
	data, err := EncodeMark(streamSID, name)
	if err != nil {
		return err
	}
	return c.enqueue(c.normal, data)
}

// SendClear tells the provider to discard queued playback audio. It travels
// on the priority lane and overtakes any audio frames still waiting in the
// normal queue.
func (c *Channel) SendClear(streamSID string) error {
	data, err := EncodeClear(streamSID)
	if err != nil {
		return err
	}
	// Drop any queued-but-unwritten audio: it is about to be cleared anyway.
	c.drainNormal()
	return c.enqueue(c.priority, data)
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

func (c *Channel) enqueue(q chan []byte, data []byte) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	case q <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Channel) drainNormal() {
	for {
		select {
		case <-c.normal:
		default:
			return
		}
	}
}

func (c *Channel) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
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
		ev, decErr := DecodeEvent(data)
		if decErr != nil {
			c.logger.Warn("dropping undecodable telephony frame", "error", decErr)
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

func (c *Channel) writeLoop() {
	var pingCh <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		pingCh = ticker.C
	}

	var pendingNormal []byte

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Hard priority: anything queued on the priority lane is written
		// before normal frames.
		select {
		case data := <-c.priority:
			if err := c.write(data); err != nil {
				c.done <- err
				c.cancel()
				return
			}
			continue
		default:
		}

		// Allow a newly queued priority frame to preempt a held normal frame.
		if pendingNormal != nil {
			select {
			case data := <-c.priority:
				if err := c.write(data); err != nil {
					c.done <- err
					c.cancel()
					return
				}
				continue
			default:
			}
			if err := c.write(pendingNormal); err != nil {
				c.done <- err
				c.cancel()
				return
			}
			pendingNormal = nil
			continue
		}

		select {
		case <-c.ctx.Done():
			return
		case <-pingCh:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				c.done <- err
				c.cancel()
				return
			}
		case data := <-c.priority:
			if err := c.write(data); err != nil {
				c.done <- err
				c.cancel()
				return
			}
		case data := <-c.normal:
			pendingNormal = data
		}
	}
}

func (c *Channel) write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
