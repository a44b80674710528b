// Package notify subscribes to server change notifications delivered as
// STOMP frames over a WebSocket and dispatches them to registered
// callbacks by route (STOMP destination).
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pthm/aggui/internal/logger"
	"github.com/pthm/aggui/internal/metrics"
)

// Routes published by the aggregator server.
const (
	RouteCreated = "/topic/newAggregator"
	RouteUpdated = "/topic/updateAggregator"
	RouteDeleted = "/topic/deleteAggregator"
)

// Message is one notification. The payload is opaque to consumers.
type Message struct {
	Route     string
	MessageID string
	Body      []byte
}

// Callback handles one message on a route.
type Callback func(ctx context.Context, msg Message)

// Registration pairs a route with its callback.
type Registration struct {
	Route    string
	Callback Callback
}

type route struct {
	subID     string
	callbacks map[uint64]Callback
}

// Listener keeps one STOMP session open and shares a subscription per
// route among every registration for it. Messages published while the
// connection is down are not replayed.
type Listener struct {
	url     string
	dialer  *websocket.Dialer
	log     *logger.Logger
	metrics *metrics.Metrics

	initialBackoff time.Duration
	maxBackoff     time.Duration
	handshake      time.Duration

	mu     sync.Mutex
	routes map[string]*route
	nextID uint64
	conn   *websocket.Conn
	ready  chan struct{}

	writeMu sync.Mutex
}

// Option configures a Listener.
type Option func(*Listener)

func WithLogger(l *logger.Logger) Option {
	return func(n *Listener) { n.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Listener) { n.metrics = m }
}

// WithBackoff bounds the reconnect delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(n *Listener) {
		n.initialBackoff = initial
		n.maxBackoff = max
	}
}

// NewListener returns a listener for the STOMP WebSocket endpoint at url.
// It does not connect until Run.
func NewListener(url string, opts ...Option) *Listener {
	l := &Listener{
		url:            url,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:            logger.Nop(),
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     30 * time.Second,
		handshake:      10 * time.Second,
		routes:         make(map[string]*route),
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register adds callbacks for routes. The returned func removes exactly
// these registrations and unsubscribes routes nobody listens to anymore.
func (l *Listener) Register(regs ...Registration) (unregister func()) {
	type handle struct {
		route string
		id    uint64
	}
	var handles []handle
	var subscribe []*frame.Frame

	l.mu.Lock()
	for _, reg := range regs {
		r, ok := l.routes[reg.Route]
		if !ok {
			r = &route{subID: uuid.NewString(), callbacks: make(map[uint64]Callback)}
			l.routes[reg.Route] = r
			subscribe = append(subscribe, subscribeFrame(r.subID, reg.Route))
		}
		l.nextID++
		r.callbacks[l.nextID] = reg.Callback
		handles = append(handles, handle{route: reg.Route, id: l.nextID})
	}
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		for _, f := range subscribe {
			if err := l.send(conn, f); err != nil {
				l.log.Warn("subscribe failed", "destination", f.Header.Get(frame.Destination), "error", err)
			}
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			var unsubscribe []*frame.Frame
			l.mu.Lock()
			for _, h := range handles {
				r, ok := l.routes[h.route]
				if !ok {
					continue
				}
				delete(r.callbacks, h.id)
				if len(r.callbacks) == 0 {
					delete(l.routes, h.route)
					unsubscribe = append(unsubscribe, frame.New(frame.UNSUBSCRIBE, frame.Id, r.subID))
				}
			}
			conn := l.conn
			l.mu.Unlock()

			if conn != nil {
				for _, f := range unsubscribe {
					_ = l.send(conn, f)
				}
			}
		})
	}
}

// Routes returns the destinations currently subscribed.
func (l *Listener) Routes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.routes))
	for dest := range l.routes {
		out = append(out, dest)
	}
	return out
}

// Ready is closed once the first STOMP session is established.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run connects and reconnects until ctx is done. Callbacks receive ctx.
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialBackoff
	b.MaxInterval = l.maxBackoff
	b.MaxElapsedTime = 0

	var readyOnce sync.Once
	for {
		err := l.session(ctx, func() {
			b.Reset()
			readyOnce.Do(func() { close(l.ready) })
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		l.log.Warn("notification connection lost", "url", l.url, "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Listener) session(ctx context.Context, established func()) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		l.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()
		conn.Close()
	})
	defer stop()

	if err := l.connect(conn); err != nil {
		return err
	}

	l.mu.Lock()
	l.conn = conn
	subs := make([]*frame.Frame, 0, len(l.routes))
	for dest, r := range l.routes {
		subs = append(subs, subscribeFrame(r.subID, dest))
	}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
	}()

	for _, f := range subs {
		if err := l.send(conn, f); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	l.log.Info("notification listener connected", "url", l.url, "routes", len(subs))
	established()

	return l.readLoop(ctx, conn)
}

func (l *Listener) connect(conn *websocket.Conn) error {
	host := "localhost"
	if u, err := url.Parse(l.url); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	if err := l.send(conn, frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.1,1.2",
		frame.Host, host,
		frame.HeartBeat, "0,0",
	)); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(l.handshake))
	defer conn.SetReadDeadline(time.Time{})
	for {
		frames, err := readFrames(conn)
		if err != nil {
			return fmt.Errorf("await CONNECTED: %w", err)
		}
		for _, f := range frames {
			switch f.Command {
			case frame.CONNECTED:
				return nil
			case frame.ERROR:
				return fmt.Errorf("stomp error: %s", f.Header.Get(frame.Message))
			}
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		frames, err := readFrames(conn)
		if err != nil {
			return err
		}
		for _, f := range frames {
			switch f.Command {
			case frame.MESSAGE:
				l.dispatch(ctx, f)
			case frame.ERROR:
				return fmt.Errorf("stomp error: %s", f.Header.Get(frame.Message))
			}
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, f *frame.Frame) {
	msg := Message{
		Route:     f.Header.Get(frame.Destination),
		MessageID: f.Header.Get(frame.MessageId),
		Body:      f.Body,
	}

	l.mu.Lock()
	r, ok := l.routes[msg.Route]
	var callbacks []Callback
	if ok {
		callbacks = make([]Callback, 0, len(r.callbacks))
		for _, cb := range r.callbacks {
			callbacks = append(callbacks, cb)
		}
	}
	l.mu.Unlock()

	l.metrics.Notification(msg.Route)
	l.log.Debug("notification received", "route", msg.Route, "callbacks", len(callbacks))
	for _, cb := range callbacks {
		go cb(ctx, msg)
	}
}

func (l *Listener) send(conn *websocket.Conn, f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func subscribeFrame(id, dest string) *frame.Frame {
	return frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, dest,
		frame.Ack, "auto",
	)
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readFrames reads one WebSocket message and decodes every STOMP frame in
// it. Heart-beat newlines decode to nothing.
func readFrames(conn *websocket.Conn) ([]*frame.Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return decodeFrames(data)
}

func decodeFrames(data []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
}
