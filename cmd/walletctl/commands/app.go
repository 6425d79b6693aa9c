package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/events"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/node"
	"github.com/goliatone/go-ledger-auth/prover"
	"github.com/goliatone/go-ledger-auth/repository"
	"github.com/goliatone/go-ledger-auth/settlement"
	"github.com/goliatone/go-ledger-auth/submitter"
)

// App holds the collaborators shared by every command.
type App struct {
	Config   Config
	Contract ledger.ContractConfig
	Logger   *glog.BaseLogger
	Node     *node.Client
	Machine  *auth.Machine
	Provider *auth.WalletProvider
	Store    *repository.Manager
}

func newLogger() *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("walletctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}

// loggerProvider adapts glog to the auth logger surface.
func loggerProvider(base *glog.BaseLogger) auth.LoggerProvider {
	return auth.LoggerProviderFunc(func(name string) auth.Logger {
		return base.GetLogger(name)
	})
}

// NewApp resolves the contract configuration, opens the store and builds
// the machine. sinks receive lifecycle events.
func NewApp(ctx context.Context, cfg Config, logger *glog.BaseLogger, sinks ...auth.LifecycleSink) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	contract := ledger.ContractConfig{ContractName: cfg.ContractName}
	if cfg.ConfigURL != "" {
		fetched, err := node.FetchContractConfig(ctx, cfg.ConfigURL, &http.Client{Timeout: cfg.RequestTimeout})
		if err != nil {
			return nil, err
		}
		contract = fetched
	}

	nodeOpts := []node.Option{
		node.WithTimeout(cfg.RequestTimeout),
		node.WithRateLimit(cfg.NodeRPS, cfg.NodeBurst),
	}
	if cfg.IndexerURL != "" {
		nodeOpts = append(nodeOpts, node.WithIndexerURL(cfg.IndexerURL))
	}
	if cfg.InviteURL != "" {
		nodeOpts = append(nodeOpts, node.WithInviteURL(cfg.InviteURL))
	}
	client := node.New(cfg.NodeURL, nodeOpts...)

	remote := prover.New(cfg.ProverURL, prover.WithTransport(client.Transport()))
	sub := submitter.New(client, remote)

	providers := loggerProvider(logger)
	dialer := events.NewDialer(cfg.EventsURL, events.WithErrorHandler(func(err error) {
		providers.GetLogger("walletctl.events").Warn("event channel dropped", "error", err)
	}))
	watcher := settlement.NewWatcher(dialer)

	machineOpts := []auth.MachineOption{
		auth.WithTimeouts(cfg.Timeouts()),
		auth.WithLoggerProvider(providers),
		auth.WithAccountIndexer(client),
		auth.WithLifecycleSink(auth.MultiLifecycleSink(sinks...)),
	}
	if cfg.InviteURL != "" {
		machineOpts = append(machineOpts, auth.WithInviteService(client))
	}
	machine := auth.NewMachine(contract, sub, watcher, machineOpts...)

	storeLogger := providers.GetLogger("walletctl.store")
	store, err := repository.Open(ctx, cfg.StorePath,
		repository.WithDebug(cfg.Gateway.Debug),
		repository.WithLogf(func(format string, args ...any) {
			storeLogger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
		}),
	)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		Contract: contract,
		Logger:   logger,
		Node:     client,
		Machine:  machine,
		Provider: auth.NewWalletProvider(machine),
		Store:    store,
	}, nil
}

// Resume loads the stored wallet for username into the machine.
func (a *App) Resume(ctx context.Context, username, passphrase string) (*auth.Wallet, error) {
	wallet, err := a.Store.Wallets().Load(ctx, username, passphrase)
	if err != nil {
		return nil, err
	}
	if err := a.Machine.Restore(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// Persist stores the machine's current wallet.
func (a *App) Persist(ctx context.Context, passphrase string) error {
	wallet := a.Machine.Wallet()
	if wallet == nil {
		return nil
	}
	return a.Store.Wallets().Save(ctx, wallet, passphrase)
}

func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
