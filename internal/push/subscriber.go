// Package push subscribes to the server's WebSocket push channel, which
// announces published builds and flag or settings changes.
package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("hoist.push")

// MessageType names a push message.
type MessageType string

const (
	BuildPublished  MessageType = "build.published"
	FlagsUpdated    MessageType = "flags.updated"
	SettingsUpdated MessageType = "settings.updated"
)

// Message is one JSON frame from the push channel.
type Message struct {
	Type    MessageType     `json:"type"`
	Version string          `json:"version,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Handler receives every decoded message. It runs on the read loop, so a
// slow handler delays later messages.
type Handler func(ctx context.Context, msg Message)

// Config configures a Subscriber.
type Config struct {
	URL      string
	Header   http.Header
	Dialer   *websocket.Dialer // defaults to websocket.DefaultDialer
	Clock    clock.Clock       // defaults to clock.WallClock
	Attempts int               // dial attempts per reconnect round; defaults to 10
	Delay    time.Duration     // first retry delay; defaults to 1s
	MaxDelay time.Duration     // retry delay cap; defaults to 1m
}

// Subscriber keeps a connection to the push channel open until its
// context is cancelled, reconnecting with doubling backoff.
type Subscriber struct {
	url      string
	header   http.Header
	dialer   *websocket.Dialer
	clock    clock.Clock
	attempts int
	delay    time.Duration
	maxDelay time.Duration
}

// NewSubscriber returns a subscriber for cfg.
func NewSubscriber(cfg Config) *Subscriber {
	s := &Subscriber{
		url:      cfg.URL,
		header:   cfg.Header,
		dialer:   cfg.Dialer,
		clock:    cfg.Clock,
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		maxDelay: cfg.MaxDelay,
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.attempts <= 0 {
		s.attempts = 10
	}
	if s.delay <= 0 {
		s.delay = time.Second
	}
	if s.maxDelay <= 0 {
		s.maxDelay = time.Minute
	}
	return s
}

// Run delivers messages to handler until ctx is done. It only returns an
// error for an unusable configuration.
func (s *Subscriber) Run(ctx context.Context, handler Handler) error {
	if s.url == "" {
		return errors.NotValidf("empty push url")
	}

	for {
		conn, err := s.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Errorf("push channel unreachable after %d attempts: %v", s.attempts, err)
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(s.maxDelay):
			}
			continue
		}

		logger.Infof("connected to push channel %s", s.url)
		err = s.consume(ctx, conn, handler)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warningf("push connection lost, reconnecting: %v", err)
	}
}

func (s *Subscriber) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			c, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("push dial attempt %d failed: %v", attempt, err)
		},
		Attempts:    s.attempts,
		Delay:       s.delay,
		MaxDelay:    s.maxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conn, nil
}

func (s *Subscriber) consume(ctx context.Context, conn *websocket.Conn, handler Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Trace(err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warningf("ignoring malformed push message: %v", err)
			continue
		}
		if msg.Type == "" {
			logger.Warningf("ignoring push message without type")
			continue
		}
		handler(ctx, msg)
	}
}
