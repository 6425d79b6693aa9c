// Package auth drives wallet authentication against a proof-verified ledger.
//
// A Machine owns one wallet session. Login, Register and the session key
// operations each build a blob transaction, send it, ask the prover for the
// proof of the secret blob, send that too and then wait for the ledger to
// report the outcome on the wallet event channel. Progress is exposed as a
// Stage (idle, submitting, blobSent, settled, error) and as LifecycleEvents
// delivered to a LifecycleSink.
//
// Only one invocation runs at a time; a second call while one is in flight
// fails with an OPERATION_IN_PROGRESS error and leaves the machine untouched.
// Validation failures happen before any network call.
//
// WalletProvider flattens results for UI callers and GatewayController
// exposes the provider over HTTP through go-router.
package auth
