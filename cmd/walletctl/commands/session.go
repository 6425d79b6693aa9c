package commands

import (
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-ledger-auth"
	"github.com/goliatone/go-ledger-auth/ledger"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the session key of a stored wallet",
	}
	cmd.AddCommand(sessionAddCmd(), sessionRemoveCmd(), sessionSendCmd(), sessionShowCmd())
	return cmd
}

func sessionAddCmd() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a new session key for the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := appCtx.Resume(ctx, args[0], flags.sealer()); err != nil {
				return err
			}
			ttl := flags.keyTTL
			if ttl <= 0 {
				ttl = appCtx.Config.SessionKeyTTL
			}
			result := appCtx.Provider.AddSessionKey(ctx, flags.password, ttl, flags.whitelist...)
			return finish(cmd, result, flags.sealer())
		},
	}
	flags.bind(cmd)
	return cmd
}

func sessionRemoveCmd() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "remove <username> <public-key>",
		Short: "Revoke a session key on the ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := appCtx.Resume(ctx, args[0], flags.sealer()); err != nil {
				return err
			}
			result := appCtx.Provider.RemoveSessionKey(ctx, flags.password, args[1])
			return finish(cmd, result, flags.sealer())
		},
	}
	flags.bind(cmd)
	return cmd
}

func sessionSendCmd() *cobra.Command {
	var passphrase string
	var rawBlobs []string
	cmd := &cobra.Command{
		Use:   "send <username>",
		Short: "Sign and send blobs with the stored session key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := ParseBlobs(rawBlobs)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			wallet, err := appCtx.Resume(ctx, args[0], passphrase)
			if err != nil {
				return err
			}
			if wallet.SessionKey == nil {
				return goerrors.New("wallet has no session key", goerrors.CategoryBadInput).
					WithMetadata(map[string]any{"username": wallet.Username})
			}
			result := appCtx.Provider.SendWithSessionKey(ctx, *wallet.SessionKey, blobs...)
			printJSON(redact(result))
			if !result.Success {
				return resultError(result)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase sealing the stored session key")
	cmd.Flags().StringArrayVar(&rawBlobs, "blob", nil, "blob as <contract>:<hex data>, repeatable")
	_ = cmd.MarkFlagRequired("passphrase")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "show <username>",
		Short: "Print the stored wallet and its session key status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := appCtx.Store.Wallets().Load(cmd.Context(), args[0], passphrase)
			if err != nil {
				return err
			}
			out := map[string]any{
				"wallet": redact(auth.ProviderResult{Success: true, Wallet: wallet}).Wallet,
			}
			if wallet.SessionKey != nil {
				out["session_key_expired"] = wallet.SessionKey.Expired(time.Now())
			}
			printJSON(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase sealing the stored session key")
	return cmd
}

// ParseBlobs parses "<contract>:<hex>" arguments.
func ParseBlobs(raw []string) ([]ledger.Blob, error) {
	if len(raw) == 0 {
		return nil, goerrors.New("at least one --blob is required", goerrors.CategoryBadInput)
	}
	blobs := make([]ledger.Blob, 0, len(raw))
	for _, r := range raw {
		contract, data, ok := strings.Cut(r, ":")
		if !ok || contract == "" {
			return nil, goerrors.New("blob must be <contract>:<hex data>", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"blob": r})
		}
		decoded, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "blob data is not hex").
				WithMetadata(map[string]any{"blob": r})
		}
		blobs = append(blobs, ledger.Blob{ContractName: contract, Data: decoded})
	}
	return blobs, nil
}
