// Package settlement waits for the ledger to confirm or reject a submitted
// transaction by listening to the identity's push-event channel.
package settlement

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ledger-auth/ledger"
)

// WalletEventsTopic is the topic wallet outcomes are published on.
const WalletEventsTopic = "wallet-events"

// Event is a push message. Text carries the human readable outcome.
type Event struct {
	Topic string `json:"topic,omitempty"`
	Text  string `json:"event"`
}

// Channel is an open push-event connection scoped to one identity.
type Channel interface {
	Subscribe(topic string, handler func(Event)) (unsubscribe func(), err error)
	Close() error
}

// Dialer opens a Channel for an identity.
type Dialer interface {
	Dial(ctx context.Context, identity ledger.Identity) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, identity ledger.Identity) (Channel, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, identity ledger.Identity) (Channel, error) {
	return f(ctx, identity)
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithTopic overrides the subscribed topic.
func WithTopic(topic string) Option {
	return func(w *Watcher) {
		if topic != "" {
			w.topic = topic
		}
	}
}

// Watcher runs single-shot settlement waits.
type Watcher struct {
	dialer Dialer
	topic  string
}

// NewWatcher returns a Watcher opening channels through dialer.
func NewWatcher(dialer Dialer, opts ...Option) *Watcher {
	w := &Watcher{
		dialer: dialer,
		topic:  WalletEventsTopic,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

type outcome struct {
	event Event
	err   error
}

// AwaitOutcome resolves with the first event matching the success predicate
// and rejects on the first event matching the failure predicate, on timeout
// or when ctx is done, whichever comes first. The subscription is removed and
// the channel closed on every path.
func (w *Watcher) AwaitOutcome(ctx context.Context, identity ledger.Identity, matcher Matcher, timeout time.Duration) (Event, error) {
	channel, err := w.dialer.Dial(ctx, identity)
	if err != nil {
		return Event{}, ledger.NetworkError(err, "failed to open event channel", map[string]any{
			"identity": identity.String(),
		})
	}
	defer channel.Close()

	results := make(chan outcome, 1)
	var once sync.Once
	deliver := func(o outcome) {
		once.Do(func() { results <- o })
	}

	unsubscribe, err := channel.Subscribe(w.topic, func(event Event) {
		text := strings.ToLower(event.Text)
		switch {
		case matcher.success(text):
			deliver(outcome{event: event})
		case matcher.failure(text):
			deliver(outcome{event: event, err: failureError(identity, event)})
		}
	})
	if err != nil {
		return Event{}, ledger.NetworkError(err, "failed to subscribe to wallet events", map[string]any{
			"identity": identity.String(),
			"topic":    w.topic,
		})
	}
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		return res.event, res.err
	case <-timer.C:
		return Event{}, timeoutError(identity, timeout, nil)
	case <-ctx.Done():
		return Event{}, timeoutError(identity, timeout, ctx.Err())
	}
}
