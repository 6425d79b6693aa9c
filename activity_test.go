package auth_test

import (
	"context"
	"errors"
	"testing"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleStreamDeliversToSubscribers(t *testing.T) {
	stream := auth.NewLifecycleStream(4)
	events, cancel := stream.Subscribe()
	defer cancel()

	require.NoError(t, stream.Record(context.Background(), auth.LifecycleEvent{Type: auth.LifecycleSubmitted}))

	got := <-events
	assert.Equal(t, auth.LifecycleSubmitted, got.Type)
}

func TestLifecycleStreamDropsWhenFull(t *testing.T) {
	stream := auth.NewLifecycleStream(1)
	_, cancel := stream.Subscribe()
	defer cancel()

	ctx := context.Background()
	require.NoError(t, stream.Record(ctx, auth.LifecycleEvent{Type: auth.LifecycleSubmitted}))
	require.NoError(t, stream.Record(ctx, auth.LifecycleEvent{Type: auth.LifecycleBlobSent}))

	assert.Equal(t, 1, stream.Dropped())
}

func TestLifecycleStreamCancelClosesChannel(t *testing.T) {
	stream := auth.NewLifecycleStream(1)
	events, cancel := stream.Subscribe()

	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)
	assert.NoError(t, stream.Record(context.Background(), auth.LifecycleEvent{}))
}

func TestMultiLifecycleSinkCallsEverySink(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	failing := auth.LifecycleSinkFunc(func(context.Context, auth.LifecycleEvent) error {
		return errors.New("sink down")
	})

	sink := auth.MultiLifecycleSink(first, nil, failing, second)
	err := sink.Record(context.Background(), auth.LifecycleEvent{Type: auth.LifecycleSettled})

	assert.EqualError(t, err, "sink down")
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestMachinePublishesToLifecycleStream(t *testing.T) {
	stream := auth.NewLifecycleStream(8)
	events, cancel := stream.Subscribe()
	defer cancel()

	h := newHarness(t, auth.WithLifecycleSink(stream))
	h.login(t)

	var types []auth.LifecycleEventType
	for i := 0; i < 4; i++ {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, auth.LifecycleSettled, types[3])
}
