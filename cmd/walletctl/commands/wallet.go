package commands

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-ledger-auth"
)

// credentialFlags are shared by login and register.
type credentialFlags struct {
	password   string
	passphrase string
	keyTTL     time.Duration
	whitelist  []string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.password, "password", "P", "", "account password")
	cmd.Flags().StringVarP(&f.passphrase, "passphrase", "p", "", "passphrase sealing the stored session key (default password)")
	cmd.Flags().DurationVar(&f.keyTTL, "session-key-ttl", 0, "also register a session key valid for this long")
	cmd.Flags().StringSliceVar(&f.whitelist, "whitelist", nil, "contracts the session key may call")
}

func (f *credentialFlags) sealer() string {
	if f.passphrase != "" {
		return f.passphrase
	}
	return f.password
}

func (f *credentialFlags) flowOptions() []auth.FlowOption {
	if f.keyTTL <= 0 {
		return nil
	}
	return []auth.FlowOption{auth.WithNewSessionKey(f.keyTTL, f.whitelist...)}
}

// finish persists a successful result and prints it without the session
// private key.
func finish(cmd *cobra.Command, result auth.ProviderResult, passphrase string) error {
	printJSON(redact(result))
	if !result.Success {
		return resultError(result)
	}
	return appCtx.Persist(cmd.Context(), passphrase)
}

func redact(result auth.ProviderResult) auth.ProviderResult {
	if result.Wallet == nil || result.Wallet.SessionKey == nil {
		return result
	}
	result.Wallet = result.Wallet.Clone()
	result.Wallet.SessionKey.PrivateKey = ""
	return result
}

func resultError(result auth.ProviderResult) error {
	return goerrors.New(result.Error, goerrors.CategoryOperation).
		WithMetadata(map[string]any{"kind": result.Kind})
}

func loginCmd() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Verify a password against the ledger and store the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := appCtx.Provider.Authenticate(cmd.Context(), auth.PasswordLogin{
				Username: args[0],
				Password: flags.password,
			}, flags.flowOptions()...)
			return finish(cmd, result, flags.sealer())
		},
	}
	flags.bind(cmd)
	return cmd
}

func registerCmd() *cobra.Command {
	var flags credentialFlags
	var confirm, invite string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a new password identity on the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				confirm = flags.password
			}
			result := appCtx.Provider.Authenticate(cmd.Context(), auth.PasswordRegistration{
				Username:        args[0],
				Password:        flags.password,
				ConfirmPassword: confirm,
				InviteCode:      invite,
			}, flags.flowOptions()...)
			return finish(cmd, result, flags.sealer())
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&confirm, "confirm", "", "password confirmation (default password)")
	cmd.Flags().StringVar(&invite, "invite", "", "invite code")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <username>",
		Short: "Forget the stored wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printJSON(appCtx.Provider.Logout())
			return appCtx.Store.Wallets().Delete(cmd.Context(), args[0])
		},
	}
}
