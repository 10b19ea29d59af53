// Package stream opens the per-job WebSocket and decodes its events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

// Stream is a live event connection for one job.
type Stream interface {
	// Events delivers decoded events until the connection ends. It is closed
	// after Done.
	Events() <-chan Event
	// Done is closed once the connection has ended for any reason.
	Done() <-chan struct{}
	// Err reports why the connection ended; nil for a normal closure or Close.
	Err() error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer opens job streams against a WebSocket base URL.
type Dialer struct {
	baseURL string
	ws      *websocket.Dialer
	logger  logging.Logger
}

// DialerOption customizes a Dialer.
type DialerOption func(*Dialer)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) { dl.ws.HandshakeTimeout = d }
}

// NewDialer returns a Dialer for wsBaseURL, e.g. wss://api.example.com.
func NewDialer(wsBaseURL string, logger logging.Logger, opts ...DialerOption) *Dialer {
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Dialer{
		baseURL: strings.TrimRight(wsBaseURL, "/"),
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With(logging.Field{Key: "component", Value: "stream"}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// URL builds {wsBase}/api/ws/jobs/{jobID}?token={token}.
func (d *Dialer) URL(jobID, token string) string {
	u := d.baseURL + "/api/ws/jobs/" + url.PathEscape(jobID)
	if token != "" {
		u += "?" + url.Values{"token": []string{token}}.Encode()
	}
	return u
}

// Dial opens the event stream for jobID authenticated with token.
func (d *Dialer) Dial(ctx context.Context, jobID, token string) (Stream, error) {
	target := d.URL(jobID, token)
	ws, resp, err := d.ws.DialContext(ctx, target, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		d.logger.Warn("websocket dial failed",
			logging.Field{Key: "job_id", Value: jobID},
			logging.Field{Key: "status", Value: status},
			logging.Err(err))
		return nil, apperr.NewTransport(fmt.Sprintf("could not open live updates for job %s", jobID), err)
	}

	c := newConn(ws, d.logger.With(logging.Field{Key: "job_id", Value: jobID}))
	d.logger.Debug("websocket connected", logging.Field{Key: "job_id", Value: jobID})
	go c.readLoop()
	return c, nil
}

// Conn is a gorilla/websocket backed Stream.
type Conn struct {
	ws     *websocket.Conn
	logger logging.Logger

	events  chan Event
	done    chan struct{}
	closing chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newConn(ws *websocket.Conn, logger logging.Logger) *Conn {
	return &Conn{
		ws:      ws,
		logger:  logger,
		events:  make(chan Event, 32),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

func (c *Conn) Events() <-chan Event  { return c.events }
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a normal closure frame and releases the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		ev, ok := c.decode(data)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.closing:
			return
		}
	}
}

// wireEvent holds the timestamp back so an unparseable one costs only the
// timestamp, not the event.
type wireEvent struct {
	Event
	Timestamp json.RawMessage `json:"timestamp"`
}

func (c *Conn) decode(data []byte) (Event, bool) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		c.logger.Warn("dropping malformed websocket message", logging.Err(err))
		return Event{}, false
	}
	ev := w.Event
	if !ev.Type.Known() {
		c.logger.Debug("ignoring websocket message", logging.Field{Key: "type", Value: string(ev.Type)})
		return Event{}, false
	}
	if len(w.Timestamp) > 0 {
		if err := ev.Timestamp.UnmarshalJSON(w.Timestamp); err != nil {
			c.logger.Warn("ignoring bad event timestamp",
				logging.Field{Key: "type", Value: string(ev.Type)},
				logging.Field{Key: "timestamp", Value: string(w.Timestamp)},
				logging.Err(err))
			ev.Timestamp = model.Timestamp{}
		}
	}
	return ev, true
}

// finish records why the read loop stopped. Normal closures and our own
// Close are not errors.
func (c *Conn) finish(err error) {
	select {
	case <-c.closing:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug("websocket closed by server")
		return
	}
	if errors.Is(err, net.ErrClosed) {
		return
	}
	c.logger.Warn("websocket connection lost", logging.Err(err))
	c.mu.Lock()
	c.err = apperr.NewTransport("live updates connection lost", err)
	c.mu.Unlock()
}
