package main

import (
	"os"

	"github.com/goliatone/go-ledger-auth/cmd/walletctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
