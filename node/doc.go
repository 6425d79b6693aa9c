// Package node talks to the ledger node, its indexer and the invite service
// over JSON/HTTP. Requests are never retried; every failure surfaces as a
// NETWORK_ERROR.
package node
