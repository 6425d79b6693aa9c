package auth

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
)

// Stage is the externally observable progress of the current invocation.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageSubmitting Stage = "submitting"
	StageBlobSent   Stage = "blobSent"
	StageSettled    Stage = "settled"
	StageError      Stage = "error"
)

// Busy reports whether an invocation is in flight.
func (s Stage) Busy() bool {
	return s == StageSubmitting || s == StageBlobSent
}

// Timeouts bound how long each operation waits for settlement.
type Timeouts struct {
	Login      time.Duration
	Register   time.Duration
	SessionKey time.Duration
}

// DefaultTimeouts match the ledger's usual settlement latency.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Login:      30 * time.Second,
		Register:   60 * time.Second,
		SessionKey: 30 * time.Second,
	}
}

// StageTransition is passed to transition hooks.
type StageTransition struct {
	InvocationID string
	Operation    Operation
	From         Stage
	To           Stage
}

// TransitionHook runs after every stage change, outside the machine lock.
type TransitionHook func(ctx context.Context, t StageTransition)

// MachineOption customizes machine construction.
type MachineOption func(*Machine)

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) MachineOption {
	return func(m *Machine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithRandReader overrides the entropy source used for salts and keys.
func WithRandReader(r io.Reader) MachineOption {
	return func(m *Machine) {
		if r != nil {
			m.rand = r
		}
	}
}

// WithTimeouts overrides the settlement timeouts. Zero fields keep defaults.
func WithTimeouts(t Timeouts) MachineOption {
	return func(m *Machine) {
		if t.Login > 0 {
			m.timeouts.Login = t.Login
		}
		if t.Register > 0 {
			m.timeouts.Register = t.Register
		}
		if t.SessionKey > 0 {
			m.timeouts.SessionKey = t.SessionKey
		}
	}
}

// WithLifecycleSink sets the sink receiving lifecycle events.
func WithLifecycleSink(sink LifecycleSink) MachineOption {
	return func(m *Machine) {
		m.sink = normalizeLifecycleSink(sink)
	}
}

// WithKeyManager overrides the session key manager.
func WithKeyManager(keys KeyManager) MachineOption {
	return func(m *Machine) {
		if keys != nil {
			m.keys = keys
		}
	}
}

// WithAccountIndexer sets the indexer used to fetch login salts.
func WithAccountIndexer(indexer AccountIndexer) MachineOption {
	return func(m *Machine) {
		m.indexer = indexer
	}
}

// WithInviteService makes registration require an invite code.
func WithInviteService(invites InviteService) MachineOption {
	return func(m *Machine) {
		m.invites = invites
	}
}

// WithTransitionHook adds a hook notified on every stage change.
func WithTransitionHook(h TransitionHook) MachineOption {
	return func(m *Machine) {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLoggerProvider sets the provider the machine resolves its logger from.
func WithLoggerProvider(provider LoggerProvider) MachineOption {
	return func(m *Machine) {
		m.loggerProvider = provider
	}
}

// Machine drives login, registration and session key operations through
// idle, submitting, blobSent and then settled or error. Only one
// invocation runs at a time.
type Machine struct {
	config    ledger.ContractConfig
	submitter TransactionSubmitter
	watcher   SettlementWatcher
	keys      KeyManager
	indexer   AccountIndexer
	invites   InviteService

	sink           LifecycleSink
	hooks          []TransitionHook
	logger         Logger
	loggerProvider LoggerProvider
	now            func() time.Time
	rand           io.Reader
	newID          func() string
	timeouts       Timeouts
	transitions    map[Stage]map[Stage]struct{}

	mu      sync.Mutex
	stage   Stage
	wallet  *Wallet
	current string
}

// NewMachine returns a machine in the idle stage.
func NewMachine(cfg ledger.ContractConfig, sub TransactionSubmitter, watcher SettlementWatcher, opts ...MachineOption) *Machine {
	m := &Machine{
		config:    cfg,
		submitter: sub,
		watcher:   watcher,
		sink:      noopLifecycleSink{},
		now:       time.Now,
		rand:      rand.Reader,
		newID:     func() string { return uuid.NewString() },
		timeouts:  DefaultTimeouts(),
		stage:     StageIdle,
		transitions: map[Stage]map[Stage]struct{}{
			StageIdle: {
				StageSubmitting: {},
			},
			StageSubmitting: {
				StageBlobSent: {},
				StageError:    {},
			},
			StageBlobSent: {
				StageSettled: {},
				StageError:   {},
			},
			StageSettled: {
				StageIdle: {},
			},
			StageError: {
				StageIdle: {},
			},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.loggerProvider, m.logger = ResolveLogger("auth.machine", m.loggerProvider, m.logger)
	if m.keys == nil {
		m.keys = sessionkey.NewManager(
			sessionkey.WithClock(m.now),
			sessionkey.WithRandReader(m.rand),
		)
	}

	return m
}

// Stage returns the current stage.
func (m *Machine) Stage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// Wallet returns a copy of the current wallet, or nil.
func (m *Machine) Wallet() *Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallet.Clone()
}

// Logout clears the wallet and returns to idle from any stage. An
// invocation still in flight completes for its caller but no longer
// updates the machine.
func (m *Machine) Logout() {
	m.mu.Lock()
	from := m.stage
	m.stage = StageIdle
	m.wallet = nil
	m.current = ""
	m.mu.Unlock()

	if from != StageIdle {
		m.logger.Info("wallet logged out", "from", from)
		m.notify(context.Background(), StageTransition{From: from, To: StageIdle})
	}
}

// Restore puts a previously settled wallet back into the machine, for
// callers that persist wallets between processes. The machine must not be
// busy.
func (m *Machine) Restore(ctx context.Context, wallet *Wallet) error {
	identity, err := wallet.Identity()
	if err != nil {
		return err
	}
	if identity.Username() != wallet.Username {
		return validationError("wallet username does not match its address", map[string]any{
			"username": wallet.Username,
			"address":  wallet.Address,
		})
	}

	m.mu.Lock()
	from := m.stage
	if from.Busy() {
		m.mu.Unlock()
		return inProgressError(from, Operation("restore"))
	}
	m.stage = StageSettled
	m.wallet = wallet.Clone()
	m.current = ""
	m.mu.Unlock()

	m.logger.Info("wallet restored", "username", wallet.Username, "from", from)
	if from != StageSettled {
		m.notify(ctx, StageTransition{From: from, To: StageSettled})
	}
	return nil
}

func (m *Machine) canTransition(from, to Stage) bool {
	if allowed, ok := m.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

type invocation struct {
	id        string
	op        Operation
	username  string
	identity  ledger.Identity
	base      *Wallet
	startedAt time.Time
}

// begin claims the machine for a new invocation. settled and error pass
// through idle implicitly; a busy machine rejects the call untouched.
func (m *Machine) begin(ctx context.Context, op Operation, username string) (*invocation, error) {
	m.mu.Lock()
	from := m.stage
	if from.Busy() {
		m.mu.Unlock()
		m.logger.Warn("rejected concurrent invocation", "operation", op, "stage", from)
		return nil, inProgressError(from, op)
	}

	inv := &invocation{
		id:        m.newID(),
		op:        op,
		username:  username,
		base:      m.wallet.Clone(),
		startedAt: m.now(),
	}
	if from != StageIdle && !m.canTransition(from, StageIdle) {
		m.mu.Unlock()
		return nil, invalidTransitionError(from, StageIdle)
	}
	m.stage = StageSubmitting
	m.current = inv.id
	m.mu.Unlock()

	if from != StageIdle {
		m.notify(ctx, StageTransition{InvocationID: inv.id, Operation: op, From: from, To: StageIdle})
	}
	m.notify(ctx, StageTransition{InvocationID: inv.id, Operation: op, From: StageIdle, To: StageSubmitting})
	m.record(ctx, inv, LifecycleEvent{Type: LifecycleSubmitted, Stage: StageSubmitting})
	m.logger.Debug("invocation started", "operation", op, "invocation_id", inv.id, "username", username)
	return inv, nil
}

// advance moves a live invocation to the target stage and replaces the
// wallet. Stale invocations (after Logout) are ignored.
func (m *Machine) advance(ctx context.Context, inv *invocation, to Stage, wallet *Wallet) error {
	m.mu.Lock()
	if m.current != inv.id {
		m.mu.Unlock()
		return nil
	}
	from := m.stage
	if !m.canTransition(from, to) {
		m.mu.Unlock()
		err := invalidTransitionError(from, to)
		m.logger.Error("invalid stage transition", "from", from, "to", to, "invocation_id", inv.id)
		return err
	}
	m.stage = to
	m.wallet = wallet.Clone()
	if to == StageSettled || to == StageError {
		m.current = ""
	}
	m.mu.Unlock()

	m.notify(ctx, StageTransition{InvocationID: inv.id, Operation: inv.op, From: from, To: to})
	return nil
}

func (m *Machine) markBlobSent(ctx context.Context, inv *invocation, optimistic *Wallet, hash ledger.TxHash) {
	if err := m.advance(ctx, inv, StageBlobSent, optimistic); err != nil {
		return
	}
	m.record(ctx, inv, LifecycleEvent{Type: LifecycleBlobSent, Stage: StageBlobSent, Wallet: optimistic.Clone(), TxHash: hash})
	m.logger.Debug("blob transaction sent", "operation", inv.op, "invocation_id", inv.id, "tx_hash", hash)
}

func (m *Machine) markProofSent(ctx context.Context, inv *invocation, hash ledger.TxHash) {
	m.record(ctx, inv, LifecycleEvent{Type: LifecycleProofSent, Stage: StageBlobSent, TxHash: hash})
	m.logger.Debug("proof transaction sent", "operation", inv.op, "invocation_id", inv.id, "tx_hash", hash)
}

func (m *Machine) settle(ctx context.Context, inv *invocation, wallet *Wallet) (*Wallet, error) {
	if err := m.advance(ctx, inv, StageSettled, wallet); err != nil {
		return nil, m.fail(ctx, inv, err)
	}
	m.record(ctx, inv, LifecycleEvent{Type: LifecycleSettled, Stage: StageSettled, Wallet: wallet.Clone()})
	m.logger.Info("wallet operation settled",
		"operation", inv.op,
		"invocation_id", inv.id,
		"identity", inv.identity,
		"elapsed", m.now().Sub(inv.startedAt),
	)
	return wallet.Clone(), nil
}

// fail moves the invocation to error, discards the wallet and returns err.
func (m *Machine) fail(ctx context.Context, inv *invocation, err error) error {
	m.mu.Lock()
	live := m.current == inv.id
	from := m.stage
	if live {
		m.stage = StageError
		m.wallet = nil
		m.current = ""
	}
	m.mu.Unlock()

	if live {
		m.notify(ctx, StageTransition{InvocationID: inv.id, Operation: inv.op, From: from, To: StageError})
	}
	kind := KindOf(err)
	m.record(ctx, inv, LifecycleEvent{Type: LifecycleFailed, Stage: StageError, Err: err, ErrorKind: kind})
	m.logger.Warn("wallet operation failed",
		"operation", inv.op,
		"invocation_id", inv.id,
		"kind", kind,
		"error", ErrorMessage(err),
	)
	return err
}

func (m *Machine) record(ctx context.Context, inv *invocation, event LifecycleEvent) {
	event.InvocationID = inv.id
	event.Operation = inv.op
	event.Username = inv.username
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	if claims, ok := ClaimsFromContext(ctx); ok {
		if event.Metadata == nil {
			event.Metadata = map[string]any{}
		}
		event.Metadata["token_id"] = claims.ID
		event.Metadata["token_subject"] = claims.Subject
	}
	if err := m.sink.Record(ctx, event); err != nil {
		m.logger.Error("lifecycle sink failed", "error", err, "event", event.Type)
	}
}

func (m *Machine) notify(ctx context.Context, t StageTransition) {
	for _, hook := range m.hooks {
		hook(ctx, t)
	}
}
