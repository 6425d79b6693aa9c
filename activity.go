package auth

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-ledger-auth/ledger"
)

// LifecycleEventType enumerates the events published for every invocation.
type LifecycleEventType string

const (
	LifecycleSubmitted LifecycleEventType = "wallet.submitted"
	LifecycleBlobSent  LifecycleEventType = "wallet.blob_sent"
	LifecycleProofSent LifecycleEventType = "wallet.proof_sent"
	LifecycleSettled   LifecycleEventType = "wallet.settled"
	LifecycleFailed    LifecycleEventType = "wallet.failed"
)

// Operation names the public operation an invocation belongs to.
type Operation string

const (
	OperationLogin              Operation = "login"
	OperationRegister           Operation = "register"
	OperationAddSessionKey      Operation = "add_session_key"
	OperationRemoveSessionKey   Operation = "remove_session_key"
	OperationSendWithSessionKey Operation = "send_with_session_key"
)

// LifecycleEvent is a snapshot of an invocation at one of its milestones.
// Wallet is a copy; mutating it does not affect the machine.
type LifecycleEvent struct {
	Type         LifecycleEventType
	InvocationID string
	Operation    Operation
	Username     string
	Stage        Stage
	Wallet       *Wallet
	TxHash       ledger.TxHash
	Err          error
	ErrorKind    ErrorKind
	Metadata     map[string]any
	OccurredAt   time.Time
}

// LifecycleSink consumes lifecycle events.
type LifecycleSink interface {
	Record(ctx context.Context, event LifecycleEvent) error
}

// LifecycleSinkFunc adapts a function to the LifecycleSink interface.
type LifecycleSinkFunc func(ctx context.Context, event LifecycleEvent) error

// Record implements LifecycleSink.
func (f LifecycleSinkFunc) Record(ctx context.Context, event LifecycleEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopLifecycleSink struct{}

func (noopLifecycleSink) Record(context.Context, LifecycleEvent) error {
	return nil
}

func normalizeLifecycleSink(s LifecycleSink) LifecycleSink {
	if s == nil {
		return noopLifecycleSink{}
	}
	return s
}

// MultiLifecycleSink fans an event out to every sink. All sinks are called;
// the first error is returned.
func MultiLifecycleSink(sinks ...LifecycleSink) LifecycleSink {
	filtered := make([]LifecycleSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return LifecycleSinkFunc(func(ctx context.Context, event LifecycleEvent) error {
		var first error
		for _, s := range filtered {
			if err := s.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// LifecycleStream is a LifecycleSink that re-publishes events to channel
// subscribers. Slow subscribers lose events rather than block the machine.
type LifecycleStream struct {
	mu      sync.Mutex
	buffer  int
	nextID  int
	subs    map[int]chan LifecycleEvent
	dropped int
}

// NewLifecycleStream creates a stream whose subscriber channels hold buffer events.
func NewLifecycleStream(buffer int) *LifecycleStream {
	if buffer <= 0 {
		buffer = 16
	}
	return &LifecycleStream{
		buffer: buffer,
		subs:   make(map[int]chan LifecycleEvent),
	}
}

// Subscribe returns a channel of events and a cancel function that closes it.
func (s *LifecycleStream) Subscribe() (<-chan LifecycleEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan LifecycleEvent, s.buffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Record implements LifecycleSink.
func (s *LifecycleStream) Record(_ context.Context, event LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.dropped++
		}
	}
	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (s *LifecycleStream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
