package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/activitymap"
	"github.com/goliatone/go-ledger-auth/metrics"
)

const minSigningKeyLength = 32

func serveCmd() *cobra.Command {
	var addr, metricsAddr string
	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Expose the wallet operations as a JSON gateway",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipApp": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			setString(&cfg.Gateway.Addr, addr)
			setString(&cfg.Gateway.MetricsAddr, metricsAddr)
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gateway listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (empty config disables)")
	return cmd
}

func serve(ctx context.Context, cfg Config) error {
	if len(cfg.Gateway.SigningKey) < minSigningKeyLength {
		return goerrors.New("gateway.signing_key must be at least 32 characters", goerrors.CategoryValidation)
	}

	logger := newLogger()
	providers := loggerProvider(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink, err := metrics.NewSink(reg)
	if err != nil {
		return err
	}

	stream := auth.NewLifecycleStream(64)
	events, cancel := stream.Subscribe()
	defer cancel()
	go logLifecycle(providers.GetLogger("walletctl.lifecycle"), events)

	app, err := NewApp(ctx, cfg, logger, sink, stream)
	if err != nil {
		return err
	}
	defer app.Close()

	tokens := auth.NewTokenService([]byte(cfg.Gateway.SigningKey), cfg.Gateway.TokenTTL,
		auth.WithTokenIssuer("walletctl"),
		auth.WithTokenLogger(providers.GetLogger("walletctl.token")),
	)
	controller := auth.NewGatewayController(app.Provider, tokens, auth.GatewayConfig{
		SessionKeyTTL: cfg.SessionKeyTTL,
		Debug:         cfg.Gateway.Debug,
	}, auth.WithGatewayLogger(providers.GetLogger("walletctl.gateway")))

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:          true,
			DisableStartupMessage: true,
		}))
	})
	srv.Router().WithLogger(logger.GetLogger("walletctl.router"))
	controller.RegisterRoutes(srv.Router().Group("/wallet"))

	errs := make(chan error, 2)
	go func() {
		if err := srv.Serve(cfg.Gateway.Addr); err != nil {
			errs <- err
		}
	}()

	var metricsSrv *http.Server
	if cfg.Gateway.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{
			Addr:              cfg.Gateway.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	logger.GetLogger("walletctl").Info("gateway listening",
		"addr", cfg.Gateway.Addr,
		"metrics_addr", cfg.Gateway.MetricsAddr,
		"contract", app.Contract.ContractName,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var serveErr error
	select {
	case <-sig:
	case <-ctx.Done():
	case serveErr = <-errs:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func logLifecycle(logger auth.Logger, events <-chan auth.LifecycleEvent) {
	for event := range events {
		record := activitymap.Normalize(event, activitymap.WithDefaultChannel("walletctl"))
		logger.Debug("lifecycle",
			"actor", record.ActorID,
			"verb", record.Verb,
			"object", record.ObjectID,
			"metadata", record.Metadata,
		)
	}
}
