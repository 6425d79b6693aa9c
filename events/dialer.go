// Package events connects settlement watchers to the ledger's push-event
// websocket.
package events

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/settlement"
)

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
)

type controlFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// Option customizes a Dialer.
type Option func(*Dialer)

// WithWebsocketDialer overrides the gorilla dialer.
func WithWebsocketDialer(d *websocket.Dialer) Option {
	return func(dl *Dialer) {
		if d != nil {
			dl.ws = d
		}
	}
}

// WithHeader adds headers sent with the handshake.
func WithHeader(h http.Header) Option {
	return func(dl *Dialer) {
		dl.header = h.Clone()
	}
}

// WithErrorHandler receives read errors once the connection drops.
func WithErrorHandler(fn func(error)) Option {
	return func(dl *Dialer) {
		dl.onError = fn
	}
}

// Dialer implements settlement.Dialer over a websocket.
type Dialer struct {
	url     string
	ws      *websocket.Dialer
	header  http.Header
	onError func(error)
}

var _ settlement.Dialer = (*Dialer)(nil)

// NewDialer returns a dialer for the events endpoint at rawURL (ws:// or wss://).
func NewDialer(rawURL string, opts ...Option) *Dialer {
	d := &Dialer{
		url: rawURL,
		ws:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dial opens a channel scoped to identity.
func (d *Dialer) Dial(ctx context.Context, identity ledger.Identity) (settlement.Channel, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid events url").
			WithMetadata(map[string]any{"url": d.url})
	}
	q := u.Query()
	q.Set("identity", identity.String())
	u.RawQuery = q.Encode()

	conn, resp, err := d.ws.DialContext(ctx, u.String(), d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		meta := map[string]any{"url": d.url, "identity": identity.String()}
		if resp != nil {
			meta["status"] = resp.StatusCode
		}
		return nil, ledger.NetworkError(err, "failed to dial events endpoint", meta)
	}

	c := &Conn{
		conn:     conn,
		handlers: make(map[string]map[uint64]func(settlement.Event)),
		done:     make(chan struct{}),
		onError:  d.onError,
	}
	go c.readLoop()
	return c, nil
}

// Conn is one websocket connection. Handlers run on the read goroutine.
type Conn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]func(settlement.Event)

	done      chan struct{}
	closeOnce sync.Once
	onError   func(error)
}

var _ settlement.Channel = (*Conn)(nil)

// Subscribe registers handler for topic and tells the server about it.
func (c *Conn) Subscribe(topic string, handler func(settlement.Event)) (func(), error) {
	if handler == nil {
		return nil, goerrors.New("handler is required", goerrors.CategoryBadInput)
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[topic] == nil {
		c.handlers[topic] = make(map[uint64]func(settlement.Event))
	}
	c.handlers[topic][id] = handler
	c.mu.Unlock()

	if err := c.send(controlFrame{Type: frameSubscribe, Topic: topic}); err != nil {
		c.remove(topic, id)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if c.remove(topic, id) {
				_ = c.send(controlFrame{Type: frameUnsubscribe, Topic: topic})
			}
		})
	}, nil
}

// Close shuts the connection down. Calling it again is a no-op.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// remove reports whether the topic lost its last handler.
func (c *Conn) remove(topic string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[topic], id)
	if len(c.handlers[topic]) == 0 {
		delete(c.handlers, topic)
		return true
	}
	return false
}

func (c *Conn) send(frame controlFrame) error {
	select {
	case <-c.done:
		return ledger.NetworkError(nil, "events connection closed", map[string]any{"topic": frame.Topic})
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		return ledger.NetworkError(err, "failed to write events frame", map[string]any{
			"type":  frame.Type,
			"topic": frame.Topic,
		})
	}
	return nil
}

func (c *Conn) readLoop() {
	for {
		var event settlement.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			select {
			case <-c.done:
			default:
				if c.onError != nil {
					c.onError(ledger.NetworkError(err, "events connection dropped", nil))
				}
			}
			return
		}
		c.dispatch(event)
	}
}

// dispatch routes event to its topic. A frame without a topic is delivered
// to every subscription; the connection is already scoped to one identity.
func (c *Conn) dispatch(event settlement.Event) {
	type delivery struct {
		topic   string
		handler func(settlement.Event)
	}

	c.mu.RLock()
	var deliveries []delivery
	for topic, bucket := range c.handlers {
		if event.Topic != "" && topic != event.Topic {
			continue
		}
		for _, h := range bucket {
			deliveries = append(deliveries, delivery{topic: topic, handler: h})
		}
	}
	c.mu.RUnlock()

	for _, d := range deliveries {
		e := event
		e.Topic = d.topic
		d.handler(e)
	}
}
