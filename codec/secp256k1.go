package codec

import (
	"github.com/goliatone/go-ledger-auth/ledger"
)

const (
	MessageHashSize = 32
	PublicKeySize   = 33
	SignatureSize   = 64
)

// Secp256k1Blob is the payload checked by the native secp256k1 verifier.
// Every byte field has a fixed size and is written without a length prefix.
type Secp256k1Blob struct {
	Identity  ledger.Identity
	Data      []byte
	PublicKey []byte
	Signature []byte
}

// EncodeSecp256k1Blob writes the identity as a length-prefixed string followed
// by the 32, 33 and 64 byte arrays.
func EncodeSecp256k1Blob(blob Secp256k1Blob) ([]byte, error) {
	w := &writer{}
	if err := w.str("identity", string(blob.Identity)); err != nil {
		return nil, err
	}
	if err := w.fixed("data", blob.Data, MessageHashSize); err != nil {
		return nil, err
	}
	if err := w.fixed("public_key", blob.PublicKey, PublicKeySize); err != nil {
		return nil, err
	}
	if err := w.fixed("signature", blob.Signature, SignatureSize); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// DecodeSecp256k1Blob is the inverse of EncodeSecp256k1Blob.
func DecodeSecp256k1Blob(data []byte) (Secp256k1Blob, error) {
	r := &reader{data: data}
	identity, err := r.str("identity")
	if err != nil {
		return Secp256k1Blob{}, err
	}
	blob := Secp256k1Blob{Identity: ledger.Identity(identity)}
	if blob.Data, err = r.fixed("data", MessageHashSize); err != nil {
		return Secp256k1Blob{}, err
	}
	if blob.PublicKey, err = r.fixed("public_key", PublicKeySize); err != nil {
		return Secp256k1Blob{}, err
	}
	if blob.Signature, err = r.fixed("signature", SignatureSize); err != nil {
		return Secp256k1Blob{}, err
	}
	if err := r.done(); err != nil {
		return Secp256k1Blob{}, err
	}
	return blob, nil
}

// NewSecp256k1VerificationBlob encodes blob for the secp256k1 contract.
func NewSecp256k1VerificationBlob(blob Secp256k1Blob) (ledger.Blob, error) {
	data, err := EncodeSecp256k1Blob(blob)
	if err != nil {
		return ledger.Blob{}, err
	}
	return ledger.Blob{ContractName: ledger.Secp256k1Contract, Data: data}, nil
}
