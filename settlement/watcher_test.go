package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu           sync.Mutex
	handlers     map[string]func(settlement.Event)
	subscribed   chan struct{}
	subscribeErr error
	unsubscribes int
	closes       int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers:   map[string]func(settlement.Event){},
		subscribed: make(chan struct{}),
	}
}

func (c *fakeChannel) Subscribe(topic string, handler func(settlement.Event)) (func(), error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()
	close(c.subscribed)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.unsubscribes++
		delete(c.handlers, topic)
	}, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeChannel) emit(topic, text string) {
	c.mu.Lock()
	handler := c.handlers[topic]
	c.mu.Unlock()
	if handler != nil {
		handler(settlement.Event{Topic: topic, Text: text})
	}
}

func (c *fakeChannel) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribes, c.closes
}

func dialerFor(ch *fakeChannel, identities *[]ledger.Identity) settlement.Dialer {
	return settlement.DialerFunc(func(_ context.Context, identity ledger.Identity) (settlement.Channel, error) {
		if identities != nil {
			*identities = append(*identities, identity)
		}
		return ch, nil
	})
}

func emitAfterSubscribe(ch *fakeChannel, delay time.Duration, texts ...string) {
	go func() {
		<-ch.subscribed
		time.Sleep(delay)
		for _, text := range texts {
			ch.emit(settlement.WalletEventsTopic, text)
		}
	}()
}

func TestAwaitOutcomeResolvesOnSuccessEvent(t *testing.T) {
	ch := newFakeChannel()
	var dialed []ledger.Identity
	w := settlement.NewWatcher(dialerFor(ch, &dialed))

	emitAfterSubscribe(ch, 10*time.Millisecond, "tx sequenced", "Identity Verified")

	event, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Identity Verified", event.Text)
	assert.Equal(t, []ledger.Identity{"bob@wallet"}, dialed)

	unsubscribes, closes := ch.counts()
	assert.Equal(t, 1, unsubscribes)
	assert.Equal(t, 1, closes)
}

func TestAwaitOutcomeRejectsOnFailureBeforeSuccess(t *testing.T) {
	ch := newFakeChannel()
	w := settlement.NewWatcher(dialerFor(ch, nil))

	emitAfterSubscribe(ch, 0, "Error: insufficient funds", "Identity verified")

	event, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), time.Second)
	require.Error(t, err)
	assert.True(t, settlement.IsFailure(err))
	assert.Empty(t, event.Text)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "Error: insufficient funds", richErr.Message)
	assert.Equal(t, "Error: insufficient funds", richErr.Metadata["event"])

	unsubscribes, closes := ch.counts()
	assert.Equal(t, 1, unsubscribes)
	assert.Equal(t, 1, closes)
}

func TestAwaitOutcomeTimesOutAndReleasesOnce(t *testing.T) {
	ch := newFakeChannel()
	w := settlement.NewWatcher(dialerFor(ch, nil))

	start := time.Now()
	_, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, settlement.IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// late events after the deadline are ignored
	ch.emit(settlement.WalletEventsTopic, "Identity verified")

	unsubscribes, closes := ch.counts()
	assert.Equal(t, 1, unsubscribes)
	assert.Equal(t, 1, closes)
}

func TestAwaitOutcomeIgnoresUnrelatedEvents(t *testing.T) {
	ch := newFakeChannel()
	w := settlement.NewWatcher(dialerFor(ch, nil))

	emitAfterSubscribe(ch, 0, "blob sequenced", "proof received")

	_, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), 50*time.Millisecond)
	assert.True(t, settlement.IsTimeout(err))
}

func TestAwaitOutcomeContextCancellation(t *testing.T) {
	ch := newFakeChannel()
	w := settlement.NewWatcher(dialerFor(ch, nil))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ch.subscribed
		cancel()
	}()

	_, err := w.AwaitOutcome(ctx, "bob@wallet", settlement.LoginMatcher(), time.Minute)
	require.Error(t, err)
	assert.True(t, settlement.IsTimeout(err))

	unsubscribes, closes := ch.counts()
	assert.Equal(t, 1, unsubscribes)
	assert.Equal(t, 1, closes)
}

func TestAwaitOutcomeDialFailure(t *testing.T) {
	w := settlement.NewWatcher(settlement.DialerFunc(func(context.Context, ledger.Identity) (settlement.Channel, error) {
		return nil, errors.New("connection refused")
	}))

	_, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), time.Second)
	require.Error(t, err)
	assert.True(t, ledger.IsNetworkError(err))
}

func TestAwaitOutcomeSubscribeFailureClosesChannel(t *testing.T) {
	ch := newFakeChannel()
	ch.subscribeErr = errors.New("subscribe rejected")
	w := settlement.NewWatcher(dialerFor(ch, nil))

	_, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), time.Second)
	require.Error(t, err)
	assert.True(t, ledger.IsNetworkError(err))

	unsubscribes, closes := ch.counts()
	assert.Equal(t, 0, unsubscribes)
	assert.Equal(t, 1, closes)
}

func TestWatcherWithTopic(t *testing.T) {
	ch := newFakeChannel()
	w := settlement.NewWatcher(dialerFor(ch, nil), settlement.WithTopic("custom"))

	go func() {
		<-ch.subscribed
		ch.emit("custom", "Successfully registered identity for bob@wallet")
	}()

	event, err := w.AwaitOutcome(context.Background(), "bob@wallet", settlement.RegisterMatcher(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "custom", event.Topic)
}
