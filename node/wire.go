package node

import (
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-auth/ledger"
)

// WireBlob is the JSON form of a blob; data is hex encoded.
type WireBlob struct {
	ContractName string `json:"contract_name"`
	Data         string `json:"data"`
}

// WireBlobTransaction is the body of POST /v1/tx/send/blob.
type WireBlobTransaction struct {
	Identity string     `json:"identity"`
	Blobs    []WireBlob `json:"blobs"`
}

// WireProofTransaction is the body of POST /v1/tx/send/proof.
type WireProofTransaction struct {
	ContractName   string `json:"contract_name"`
	Proof          []byte `json:"proof"`
	VerifiesBlobTx string `json:"verifies_blob_tx,omitempty"`
	BlobIndex      int    `json:"blob_index"`
}

// FromBlob converts a ledger blob.
func FromBlob(b ledger.Blob) WireBlob {
	return WireBlob{ContractName: b.ContractName, Data: hex.EncodeToString(b.Data)}
}

// Blob converts back to a ledger blob.
func (w WireBlob) Blob() (ledger.Blob, error) {
	data, err := hex.DecodeString(w.Data)
	if err != nil {
		return ledger.Blob{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "blob data is not hex").
			WithTextCode(ledger.TextCodeNetwork).
			WithMetadata(map[string]any{"contract_name": w.ContractName})
	}
	return ledger.Blob{ContractName: w.ContractName, Data: data}, nil
}

// FromBlobTransaction converts a ledger blob transaction.
func FromBlobTransaction(tx ledger.BlobTransaction) WireBlobTransaction {
	out := WireBlobTransaction{
		Identity: tx.Identity.String(),
		Blobs:    make([]WireBlob, 0, len(tx.Blobs)),
	}
	for _, b := range tx.Blobs {
		out.Blobs = append(out.Blobs, FromBlob(b))
	}
	return out
}

// BlobTransaction converts back to a ledger blob transaction.
func (w WireBlobTransaction) BlobTransaction() (ledger.BlobTransaction, error) {
	tx := ledger.BlobTransaction{
		Identity: ledger.Identity(w.Identity),
		Blobs:    make([]ledger.Blob, 0, len(w.Blobs)),
	}
	for _, wb := range w.Blobs {
		b, err := wb.Blob()
		if err != nil {
			return ledger.BlobTransaction{}, err
		}
		tx.Blobs = append(tx.Blobs, b)
	}
	return tx, nil
}

// FromProofTransaction converts a ledger proof transaction.
func FromProofTransaction(tx ledger.ProofTransaction) WireProofTransaction {
	return WireProofTransaction{
		ContractName:   tx.ContractName,
		Proof:          tx.Proof,
		VerifiesBlobTx: tx.VerifiesBlobTx.String(),
		BlobIndex:      tx.BlobIndex,
	}
}

// ProofTransaction converts back to a ledger proof transaction.
func (w WireProofTransaction) ProofTransaction() ledger.ProofTransaction {
	return ledger.ProofTransaction{
		ContractName:   w.ContractName,
		Proof:          w.Proof,
		VerifiesBlobTx: ledger.TxHash(w.VerifiesBlobTx),
		BlobIndex:      w.BlobIndex,
	}
}
