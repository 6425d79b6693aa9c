package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/settlement"
	"github.com/goliatone/go-ledger-auth/submitter"
	"github.com/stretchr/testify/mock"
)

// MockNode implements submitter.NodeService
type MockNode struct {
	mock.Mock
}

func (m *MockNode) SendBlobTx(ctx context.Context, tx ledger.BlobTransaction) (ledger.TxHash, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(ledger.TxHash), args.Error(1)
}

func (m *MockNode) SendProofTx(ctx context.Context, tx ledger.ProofTransaction) (ledger.TxHash, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(ledger.TxHash), args.Error(1)
}

// MockProver implements submitter.Prover
type MockProver struct {
	mock.Mock
}

func (m *MockProver) BuildSecretBlob(ctx context.Context, identity ledger.Identity, secret []byte) (ledger.Blob, error) {
	args := m.Called(ctx, identity, secret)
	return args.Get(0).(ledger.Blob), args.Error(1)
}

func (m *MockProver) BuildProofTransaction(ctx context.Context, req submitter.ProofRequest) (ledger.ProofTransaction, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledger.ProofTransaction), args.Error(1)
}

func (m *MockProver) RegisterContract(ctx context.Context, node submitter.NodeService) error {
	args := m.Called(ctx, node)
	return args.Error(0)
}

// MockIndexer implements auth.AccountIndexer
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) AccountInfo(ctx context.Context, identity ledger.Identity) (auth.AccountInfo, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(auth.AccountInfo), args.Error(1)
}

// MockInvites implements auth.InviteService
type MockInvites struct {
	mock.Mock
}

func (m *MockInvites) ConsumeInvite(ctx context.Context, code string, identity ledger.Identity) (ledger.Blob, error) {
	args := m.Called(ctx, code, identity)
	return args.Get(0).(ledger.Blob), args.Error(1)
}

// scriptedEvents hands out one channel per dial; each channel replays its
// round of events as soon as the watcher subscribes.
type scriptedEvents struct {
	mu     sync.Mutex
	rounds [][]string
	dials  int
}

func (s *scriptedEvents) push(events ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, events)
}

func (s *scriptedEvents) Dial(_ context.Context, _ ledger.Identity) (settlement.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	var events []string
	if len(s.rounds) > 0 {
		events = s.rounds[0]
		s.rounds = s.rounds[1:]
	}
	return &scriptedChannel{events: events}, nil
}

type scriptedChannel struct {
	events []string
}

func (c *scriptedChannel) Subscribe(topic string, handler func(settlement.Event)) (func(), error) {
	events := c.events
	go func() {
		for _, text := range events {
			handler(settlement.Event{Topic: topic, Text: text})
		}
	}()
	return func() {}, nil
}

func (c *scriptedChannel) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []auth.LifecycleEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.LifecycleEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.LifecycleEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	machine *auth.Machine
	node    *MockNode
	prover  *MockProver
	events  *scriptedEvents
	sink    *recordingSink
}

func newHarness(t *testing.T, opts ...auth.MachineOption) *harness {
	t.Helper()
	h := &harness{
		node:   &MockNode{},
		prover: &MockProver{},
		events: &scriptedEvents{},
		sink:   &recordingSink{},
	}
	sub := submitter.New(h.node, h.prover)
	watcher := settlement.NewWatcher(h.events)

	base := []auth.MachineOption{
		auth.WithClock(func() time.Time { return testNow }),
		auth.WithLifecycleSink(h.sink),
		auth.WithLogger(nopLogger{}),
		auth.WithTimeouts(auth.Timeouts{
			Login:      time.Second,
			Register:   time.Second,
			SessionKey: time.Second,
		}),
	}
	h.machine = auth.NewMachine(ledger.ContractConfig{ContractName: ledger.WalletContract}, sub, watcher, append(base, opts...)...)
	return h
}

// expectProvedTx wires the happy path of a blob + proof submission.
func (h *harness) expectProvedTx(blobHash ledger.TxHash) *mock.Call {
	h.prover.On("RegisterContract", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.prover.On("BuildSecretBlob", mock.Anything, mock.Anything, mock.Anything).
		Return(ledger.Blob{ContractName: "check_secret", Data: []byte{0x01}}, nil)
	h.prover.On("BuildProofTransaction", mock.Anything, mock.Anything).
		Return(ledger.ProofTransaction{ContractName: "check_secret", Proof: []byte{0x02}}, nil)
	h.node.On("SendProofTx", mock.Anything, mock.Anything).Return(ledger.TxHash("proof-hash"), nil)
	return h.node.On("SendBlobTx", mock.Anything, mock.Anything).Return(blobHash, nil)
}

func (h *harness) login(t *testing.T) *auth.Wallet {
	t.Helper()
	h.expectProvedTx("login-hash").Once()
	h.events.push("Identity verified for bob@wallet")
	wallet, err := h.machine.Login(context.Background(), "bob", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return wallet
}
