// Package repository stores wallets and their sealed session keys in SQLite
// through Bun.
package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Config describes the SQLite store. It satisfies persistence.Config.
type Config struct {
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c Config) GetDebug() bool      { return c.Debug }
func (c Config) GetDriver() string   { return sqliteshim.ShimName }
func (c Config) GetServer() string   { return "" }
func (c Config) GetDatabase() string { return c.DSN }
func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}
func (c Config) GetOtelIdentifier() string { return "" }

var _ persistence.Config = Config{}

var registerModels sync.Once

// Option customizes Open.
type Option func(*options)

type options struct {
	debug bool
	logf  func(format string, args ...any)
}

// WithDebug logs every query.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// WithLogf receives migration progress.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(o *options) {
		o.logf = logf
	}
}

// Manager owns the database handle and its repositories.
type Manager struct {
	sqldb   *sql.DB
	db      bun.IDB
	wallets *WalletRepository
}

// Open opens (or creates) the SQLite database at dsn and runs the wallet
// migrations.
func Open(ctx context.Context, dsn string, opts ...Option) (*Manager, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open wallet store").
			WithMetadata(map[string]any{"dsn": dsn})
	}
	sqldb.SetMaxOpenConns(1)

	registerModels.Do(func() {
		persistence.RegisterModel((*WalletModel)(nil))
	})
	client, err := persistence.New(Config{DSN: dsn, Debug: o.debug}, sqldb, sqlitedialect.New())
	if err != nil {
		_ = sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to connect wallet store").
			WithMetadata(map[string]any{"dsn": dsn})
	}
	if o.logf != nil {
		client.SetLogger(o.logf)
	}

	client.RegisterSQLMigrations(GetMigrationsFS())
	if err := client.Migrate(ctx); err != nil {
		_ = sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to migrate wallet store")
	}

	return &Manager{
		sqldb:   sqldb,
		db:      client.DB(),
		wallets: NewWalletRepository(client.DB()),
	}, nil
}

func (m *Manager) Wallets() *WalletRepository {
	return m.wallets
}

// RunInTx runs f with repositories bound to a transaction.
func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, wallets *WalletRepository) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return m.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return f(ctx, NewWalletRepository(tx))
	})
}

// Close closes the underlying *sql.DB.
func (m *Manager) Close() error {
	return m.sqldb.Close()
}
