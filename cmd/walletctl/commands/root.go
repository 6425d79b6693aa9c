package commands

import (
	"fmt"
	"os"

	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

var (
	configPath string
	overrides  Config
	debug      bool

	appCtx *App
)

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Password wallet and session key client for a ledger node",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipApp"] == "true" {
				return nil
			}
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			app, err := NewApp(cmd.Context(), cfg, newLogger())
			if err != nil {
				return err
			}
			appCtx = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			err := appCtx.Close()
			appCtx = nil
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "path to walletctl.yaml")
	flags.StringVar(&overrides.NodeURL, "node", "", "ledger node base URL")
	flags.StringVar(&overrides.IndexerURL, "indexer", "", "indexer base URL (default node URL)")
	flags.StringVar(&overrides.EventsURL, "events", "", "push-event websocket URL")
	flags.StringVar(&overrides.ProverURL, "prover", "", "prover base URL")
	flags.StringVar(&overrides.ConfigURL, "config-url", "", "base URL serving GET /api/config")
	flags.StringVar(&overrides.InviteURL, "invite", "", "invite service base URL")
	flags.StringVar(&overrides.StorePath, "store", "", "wallet database path")
	flags.StringVar(&overrides.ContractName, "contract", "", "wallet contract name")
	flags.DurationVar(&overrides.RequestTimeout, "request-timeout", 0, "per-request timeout for node, prover and config calls")
	flags.Float64Var(&overrides.NodeRPS, "node-rps", 0, "max requests per second to the node (0 = unlimited)")
	flags.BoolVar(&debug, "debug", false, "dump gateway payloads")

	root.AddCommand(
		loginCmd(),
		registerCmd(),
		logoutCmd(),
		sessionCmd(),
		serveCmd(),
		configCmd(),
	)
	return root
}

func resolveConfig() (Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	Merge(&cfg, overrides)
	if debug {
		cfg.Gateway.Debug = true
	}
	return cfg, nil
}

func printJSON(v any) {
	fmt.Fprintln(os.Stdout, print.MaybePrettyJSON(v))
}
