package events_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-ledger-auth/events"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/settlement"
)

type frame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// eventServer replies to every subscribe frame with the configured events.
type eventServer struct {
	events []settlement.Event

	mu       sync.Mutex
	identity string
	frames   []frame
}

func (s *eventServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.identity = r.URL.Query().Get("identity")
	s.mu.Unlock()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		s.mu.Lock()
		s.frames = append(s.frames, f)
		s.mu.Unlock()

		if f.Type != "subscribe" {
			continue
		}
		for _, ev := range s.events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *eventServer) snapshot() (string, []frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, append([]frame(nil), s.frames...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialer_SubscribeReceivesTopicEvents(t *testing.T) {
	es := &eventServer{events: []settlement.Event{
		{Topic: "other", Text: "ignored"},
		{Topic: settlement.WalletEventsTopic, Text: "Identity verified for bob@wallet"},
	}}
	srv := httptest.NewServer(es)
	defer srv.Close()

	ch, err := events.NewDialer(wsURL(srv)).Dial(context.Background(), "bob@wallet")
	require.NoError(t, err)
	defer ch.Close()

	got := make(chan settlement.Event, 2)
	unsubscribe, err := ch.Subscribe(settlement.WalletEventsTopic, func(ev settlement.Event) { got <- ev })
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, "Identity verified for bob@wallet", ev.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	unsubscribe()
	unsubscribe()

	assert.Eventually(t, func() bool {
		_, frames := es.snapshot()
		return len(frames) == 2
	}, 2*time.Second, 10*time.Millisecond)

	identity, frames := es.snapshot()
	assert.Equal(t, "bob@wallet", identity)
	assert.Equal(t, frame{Type: "subscribe", Topic: settlement.WalletEventsTopic}, frames[0])
	assert.Equal(t, frame{Type: "unsubscribe", Topic: settlement.WalletEventsTopic}, frames[1])
}

func TestDialer_WatcherEndToEnd(t *testing.T) {
	es := &eventServer{events: []settlement.Event{
		{Topic: settlement.WalletEventsTopic, Text: "Successfully registered identity for bob@wallet"},
	}}
	srv := httptest.NewServer(es)
	defer srv.Close()

	watcher := settlement.NewWatcher(events.NewDialer(wsURL(srv)))
	ev, err := watcher.AwaitOutcome(context.Background(), "bob@wallet", settlement.RegisterMatcher(), 2*time.Second)

	require.NoError(t, err)
	assert.Contains(t, ev.Text, "registered identity")
}

func TestDialer_FailureEventEndToEnd(t *testing.T) {
	es := &eventServer{events: []settlement.Event{
		{Topic: settlement.WalletEventsTopic, Text: "Transaction failed: bad proof"},
	}}
	srv := httptest.NewServer(es)
	defer srv.Close()

	watcher := settlement.NewWatcher(events.NewDialer(wsURL(srv)))
	_, err := watcher.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), 2*time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad proof")
}

func TestDialer_DialFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := events.NewDialer(wsURL(srv)).Dial(context.Background(), "bob@wallet")

	require.Error(t, err)
	assert.True(t, ledger.IsNetworkError(err))
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(&eventServer{})
	defer srv.Close()

	ch, err := events.NewDialer(wsURL(srv)).Dial(context.Background(), "bob@wallet")
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())

	_, err = ch.Subscribe(settlement.WalletEventsTopic, func(settlement.Event) {})
	assert.True(t, ledger.IsNetworkError(err))
}

func TestDialer_TopiclessEventReachesSubscribers(t *testing.T) {
	es := &eventServer{events: []settlement.Event{{Text: "Identity Verified"}}}
	srv := httptest.NewServer(es)
	defer srv.Close()

	ch, err := events.NewDialer(wsURL(srv)).Dial(context.Background(), "bob@wallet")
	require.NoError(t, err)
	defer ch.Close()

	got := make(chan settlement.Event, 1)
	_, err = ch.Subscribe(settlement.WalletEventsTopic, func(ev settlement.Event) { got <- ev })
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, "Identity Verified", ev.Text)
		assert.Equal(t, settlement.WalletEventsTopic, ev.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("topicless event was dropped")
	}
}

func TestDialer_TopiclessEventSettlesLogin(t *testing.T) {
	es := &eventServer{events: []settlement.Event{{Text: "Identity Verified"}}}
	srv := httptest.NewServer(es)
	defer srv.Close()

	watcher := settlement.NewWatcher(events.NewDialer(wsURL(srv)))
	ev, err := watcher.AwaitOutcome(context.Background(), "bob@wallet", settlement.LoginMatcher(), 2*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "Identity Verified", ev.Text)
}
