// Package ledger holds the small set of domain values shared by every layer of
// the wallet authentication flow: identities, blobs, blob transactions and the
// opaque proof transaction returned by the external prover.
//
// Identities have the form "<username>@<contractName>". The contract name is
// process configuration that must be initialized (see ContractConfig) before
// the first identity is built.
package ledger
