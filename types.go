package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
	"github.com/goliatone/go-ledger-auth/settlement"
	"github.com/goliatone/go-ledger-auth/submitter"
)

// Logger takes a message followed by key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to the LoggerProvider interface.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return nil
	}
	return f(name)
}

// ResolveLogger returns a provider and the logger for name. The provider
// wins when it yields a logger; otherwise fallback is used, and the default
// stdout logger when both are nil.
func ResolveLogger(name string, provider LoggerProvider, fallback Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if logger := provider.GetLogger(name); logger != nil {
			return provider, logger
		}
	}
	if fallback == nil {
		fallback = defLogger{name: name}
	}
	return LoggerProviderFunc(func(string) Logger { return fallback }), fallback
}

// AccountInfo is what the indexer knows about a registered account.
type AccountInfo struct {
	Salt  string `json:"salt"`
	Nonce uint64 `json:"nonce"`
}

// AccountIndexer looks up on-chain account data (the salt needed to rebuild
// the login secret).
type AccountIndexer interface {
	AccountInfo(ctx context.Context, identity ledger.Identity) (AccountInfo, error)
}

// InviteService turns an invite code into the blob that authorizes a
// registration.
type InviteService interface {
	ConsumeInvite(ctx context.Context, code string, identity ledger.Identity) (ledger.Blob, error)
}

// TransactionSubmitter is implemented by *submitter.Submitter.
type TransactionSubmitter interface {
	SecretBlob(ctx context.Context, identity ledger.Identity, secret []byte) (ledger.Blob, error)
	SubmitAuthTransaction(ctx context.Context, identity ledger.Identity, blobs []ledger.Blob, secret []byte, opts ...submitter.SubmitOption) (submitter.Result, error)
	SubmitBlobTransaction(ctx context.Context, identity ledger.Identity, blobs []ledger.Blob) (ledger.TxHash, error)
}

// SettlementWatcher is implemented by *settlement.Watcher.
type SettlementWatcher interface {
	AwaitOutcome(ctx context.Context, identity ledger.Identity, matcher settlement.Matcher, timeout time.Duration) (settlement.Event, error)
}

// KeyManager is implemented by *sessionkey.Manager.
type KeyManager interface {
	NextNonce(identity ledger.Identity) uint64
	GenerateSessionKey(expiration time.Time, whitelist []string) (sessionkey.SessionKey, error)
	BuildUseSessionKeyBlobs(identity ledger.Identity, privateKeyHex string) ([]ledger.Blob, error)
}

var (
	_ TransactionSubmitter = (*submitter.Submitter)(nil)
	_ SettlementWatcher    = (*settlement.Watcher)(nil)
	_ KeyManager           = (*sessionkey.Manager)(nil)
)

type defLogger struct {
	name string
}

func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }

func (d defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level)
	b.WriteString("] LEDGER-AUTH ")
	if d.name != "" {
		b.WriteString(d.name)
		b.WriteString(": ")
	}
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	fmt.Println(b.String())
}
