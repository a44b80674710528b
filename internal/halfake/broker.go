package halfake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Broker is a minimal STOMP 1.2 broker over WebSocket supporting
// CONNECT, SUBSCRIBE, UNSUBSCRIBE and DISCONNECT. It delivers every
// published message to each matching subscription.
type Broker struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	changed chan struct{}
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]string // subscription id -> destination
}

func NewBroker() *Broker {
	return &Broker{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		changed:  make(chan struct{}),
		clients:  make(map[*client]struct{}),
	}
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, subs: make(map[string]string)}
	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.notifyLocked()
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r := frame.NewReader(bytes.NewReader(data))
		for {
			f, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = c.write(frame.New(frame.ERROR, frame.Message, "malformed frame"))
				return
			}
			if f == nil {
				continue
			}
			if !b.handle(c, f) {
				return
			}
		}
	}
}

func (b *Broker) handle(c *client, f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		b.mu.Lock()
		b.clients[c] = struct{}{}
		b.notifyLocked()
		b.mu.Unlock()
		return c.write(frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0")) == nil
	case frame.SUBSCRIBE:
		b.mu.Lock()
		c.subs[f.Header.Get(frame.Id)] = f.Header.Get(frame.Destination)
		b.notifyLocked()
		b.mu.Unlock()
	case frame.UNSUBSCRIBE:
		b.mu.Lock()
		delete(c.subs, f.Header.Get(frame.Id))
		b.notifyLocked()
		b.mu.Unlock()
	case frame.DISCONNECT:
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			_ = c.write(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
		}
		return false
	}
	return true
}

// Publish sends body to every subscription on dest.
func (b *Broker) Publish(dest string, body []byte) {
	type delivery struct {
		c     *client
		subID string
	}
	var out []delivery
	b.mu.Lock()
	for c := range b.clients {
		for id, d := range c.subs {
			if d == dest {
				out = append(out, delivery{c: c, subID: id})
			}
		}
	}
	b.mu.Unlock()

	for _, d := range out {
		f := frame.New(frame.MESSAGE,
			frame.Destination, dest,
			frame.Subscription, d.subID,
			frame.MessageId, uuid.NewString(),
			frame.ContentType, "text/plain",
		)
		f.Body = body
		_ = d.c.write(f)
	}
}

// Subscribers returns the number of subscriptions on dest.
func (b *Broker) Subscribers(dest string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribersLocked(dest)
}

// Connections returns the number of connected STOMP sessions.
func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// WaitSubscribers blocks until dest has exactly n subscriptions.
func (b *Broker) WaitSubscribers(ctx context.Context, dest string, n int) error {
	for {
		b.mu.Lock()
		if b.subscribersLocked(dest) == n {
			b.mu.Unlock()
			return nil
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Kick closes every client connection.
func (b *Broker) Kick() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c.conn)
	}
	b.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (b *Broker) subscribersLocked(dest string) int {
	n := 0
	for c := range b.clients {
		for _, d := range c.subs {
			if d == dest {
				n++
			}
		}
	}
	return n
}

func (b *Broker) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (c *client) write(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}
