// Package commands implements the walletctl CLI: password login and
// registration against a ledger node, session key management, and a JSON
// gateway exposing the same operations over HTTP.
package commands
