package ledger

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// WalletContract is the default identity contract name.
	WalletContract = "wallet"
	// Secp256k1Contract is the native verifier for session key signatures.
	Secp256k1Contract = "secp256k1"
)

const (
	TextCodeConfigNotInitialized = "CONFIG_NOT_INITIALIZED"
	TextCodeInvalidIdentity      = "INVALID_IDENTITY"
)

// TxHash is the hash returned by the node for an accepted transaction.
type TxHash string

func (h TxHash) String() string { return string(h) }

// ContractConfig carries the identity contract name. It is loaded once,
// before any identity is built, and passed explicitly to whoever needs it.
type ContractConfig struct {
	ContractName string `json:"contract_name" yaml:"contract_name"`
}

// Validate fails when the configuration was never initialized.
func (c ContractConfig) Validate() error {
	if strings.TrimSpace(c.ContractName) == "" {
		return goerrors.New("contract name is not initialized", goerrors.CategoryInternal).
			WithTextCode(TextCodeConfigNotInitialized).
			WithCode(goerrors.CodeInternal)
	}
	if strings.Contains(c.ContractName, "@") {
		return goerrors.New("contract name must not contain '@'", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidIdentity).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"contract_name": c.ContractName})
	}
	return nil
}

// Identity is "<username>@<contractName>".
type Identity string

// NewIdentity builds the identity for username under the configured contract.
func NewIdentity(username string, cfg ContractConfig) (Identity, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if username == "" || strings.Contains(username, "@") {
		return "", invalidIdentity(username, "username must be non-empty and must not contain '@'")
	}
	return Identity(username + "@" + cfg.ContractName), nil
}

// ParseIdentity validates an identity string received from outside.
func ParseIdentity(s string) (Identity, error) {
	if strings.Count(s, "@") != 1 {
		return "", invalidIdentity(s, "identity must contain exactly one '@'")
	}
	user, contract, _ := strings.Cut(s, "@")
	if user == "" || contract == "" {
		return "", invalidIdentity(s, "identity must have a username and a contract name")
	}
	return Identity(s), nil
}

func (i Identity) String() string { return string(i) }

// Username is the part before '@'.
func (i Identity) Username() string {
	user, _, _ := strings.Cut(string(i), "@")
	return user
}

// ContractName is the part after '@'.
func (i Identity) ContractName() string {
	_, contract, _ := strings.Cut(string(i), "@")
	return contract
}

func invalidIdentity(value, msg string) error {
	return goerrors.New(msg, goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidIdentity).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"identity": value})
}

// Blob is an opaque contract-call payload.
type Blob struct {
	ContractName string `json:"contract_name"`
	Data         []byte `json:"data"`
}

// BlobTransaction bundles blobs under one identity. Order matters: a
// verification blob precedes the blob it authorizes.
type BlobTransaction struct {
	Identity Identity `json:"identity"`
	Blobs    []Blob   `json:"blobs"`
}

// ProofTransaction is built by the external prover and forwarded untouched.
type ProofTransaction struct {
	ContractName   string `json:"contract_name"`
	Proof          []byte `json:"proof"`
	VerifiesBlobTx TxHash `json:"verifies_blob_tx,omitempty"`
	BlobIndex      int    `json:"blob_index"`
}
