// Package sessionkey generates secp256k1 session keys and signs the nonce
// blobs that let a session key act for an identity.
package sessionkey

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/goliatone/go-ledger-auth/codec"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/holiman/uint256"
	"github.com/minio/sha256-simd"
)

// SessionKey is owned by the caller once generated. Expiration is epoch
// milliseconds and is enforced by the caller.
type SessionKey struct {
	PublicKey  string   `json:"public_key"`
	PrivateKey string   `json:"private_key"`
	Expiration int64    `json:"expiration"`
	Whitelist  []string `json:"whitelist,omitempty"`
}

// Expired reports whether the key is past its expiration at now.
func (k SessionKey) Expired(now time.Time) bool {
	return k.Expiration > 0 && now.UnixMilli() >= k.Expiration
}

// Public returns a copy without the private half.
func (k SessionKey) Public() SessionKey {
	k.PrivateKey = ""
	return k
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock injects the clock used for nonces.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithRandReader injects the entropy source used for key generation.
func WithRandReader(r io.Reader) Option {
	return func(m *Manager) {
		if r != nil {
			m.rand = r
		}
	}
}

// Manager generates keys and signs nonces. It never stores private keys;
// it only remembers the last nonce handed out per identity so nonces never
// go backwards.
type Manager struct {
	now  func() time.Time
	rand io.Reader

	mu         sync.Mutex
	lastNonces map[ledger.Identity]uint64
}

// NewManager returns a Manager using the system clock and crypto/rand.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		now:        time.Now,
		rand:       rand.Reader,
		lastNonces: map[ledger.Identity]uint64{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// GenerateKeyPair returns a compressed public key and a private key, both hex.
func (m *Manager) GenerateKeyPair() (publicKeyHex, privateKeyHex string, err error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(m.rand)
	if err != nil {
		return "", "", keyGenerationError(err, "failed to generate secp256k1 key")
	}

	publicKeyHex = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	privateKeyHex = hex.EncodeToString(priv.Serialize())
	if publicKeyHex == "" || privateKeyHex == "" {
		return "", "", keyGenerationError(nil, "generated key pair is incomplete")
	}
	return publicKeyHex, privateKeyHex, nil
}

// GenerateSessionKey creates a key pair bounded by expiration and whitelist.
func (m *Manager) GenerateSessionKey(expiration time.Time, whitelist []string) (SessionKey, error) {
	pub, priv, err := m.GenerateKeyPair()
	if err != nil {
		return SessionKey{}, err
	}
	return SessionKey{
		PublicKey:  pub,
		PrivateKey: priv,
		Expiration: expiration.UnixMilli(),
		Whitelist:  append([]string(nil), whitelist...),
	}, nil
}

// SignNonce signs SHA256(decimal(nonce)) and assembles the verification blob.
// The signature is deterministic (RFC 6979) and its S value is always in the
// lower half of the curve order.
func (m *Manager) SignNonce(identity ledger.Identity, nonce uint256.Int, privateKeyHex string) (codec.Secp256k1Blob, error) {
	priv, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return codec.Secp256k1Blob{}, err
	}
	defer priv.Zero()

	hash := NonceHash(nonce)
	if len(hash) != codec.MessageHashSize {
		return codec.Secp256k1Blob{}, codec.InvariantViolation("nonce hash must be 32 bytes", map[string]any{
			"actual": len(hash),
		})
	}

	sig := ecdsa.Sign(priv, hash)
	return codec.Secp256k1Blob{
		Identity:  identity,
		Data:      hash,
		PublicKey: priv.PubKey().SerializeCompressed(),
		Signature: compactSignature(sig),
	}, nil
}

// BuildUseSessionKeyBlobs returns [verificationBlob, actionBlob]. The verifier
// reads blobs by position so the order must not change.
func (m *Manager) BuildUseSessionKeyBlobs(identity ledger.Identity, privateKeyHex string) ([]ledger.Blob, error) {
	publicKey, err := DerivePublicKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	nonce := uint256.NewInt(m.NextNonce(identity))

	signed, err := m.SignNonce(identity, *nonce, privateKeyHex)
	if err != nil {
		return nil, err
	}
	verificationBlob, err := codec.NewSecp256k1VerificationBlob(signed)
	if err != nil {
		return nil, err
	}

	actionBlob, err := codec.NewActionBlob(identity.ContractName(), codec.UseSessionKey{
		Account: identity.String(),
		Key:     publicKey,
		Nonce:   *nonce,
	})
	if err != nil {
		return nil, err
	}

	return []ledger.Blob{verificationBlob, actionBlob}, nil
}

// NextNonce returns the current epoch milliseconds, bumped past the last
// nonce issued for identity when the clock has not advanced.
func (m *Manager) NextNonce(identity ledger.Identity) uint64 {
	now := uint64(m.now().UnixMilli())

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastNonces[identity]; ok && now <= last {
		now = last + 1
	}
	m.lastNonces[identity] = now
	return now
}

// NonceHash is SHA256 over the decimal representation of nonce.
func NonceHash(nonce uint256.Int) []byte {
	h := sha256.New()
	h.Write([]byte(nonce.Dec()))
	return h.Sum(nil)
}

// DerivePublicKey returns the compressed public key for a hex private key.
func DerivePublicKey(privateKeyHex string) (string, error) {
	priv, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	defer priv.Zero()
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), nil
}

// VerifyBlob checks the signature of a verification blob against its own
// public key and message hash.
func VerifyBlob(blob codec.Secp256k1Blob) error {
	if len(blob.Signature) != codec.SignatureSize {
		return cryptoError(nil, "signature must be 64 bytes")
	}
	pub, err := secp256k1.ParsePubKey(blob.PublicKey)
	if err != nil {
		return cryptoError(err, "invalid public key")
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(blob.Signature[:32]); overflow || r.IsZero() {
		return cryptoError(nil, "invalid signature r value")
	}
	if overflow := s.SetByteSlice(blob.Signature[32:]); overflow || s.IsZero() {
		return cryptoError(nil, "invalid signature s value")
	}
	if s.IsOverHalfOrder() {
		return cryptoError(nil, "signature s value is not canonical")
	}

	if !ecdsa.NewSignature(&r, &s).Verify(blob.Data, pub) {
		return cryptoError(nil, "signature verification failed")
	}
	return nil
}

func parsePrivateKey(privateKeyHex string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, cryptoError(err, "private key is not valid hex")
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, cryptoError(nil, "private key must be 32 bytes")
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, cryptoError(nil, "private key is outside the curve order")
	}
	return secp256k1.NewPrivateKey(&scalar), nil
}

// compactSignature serializes r||s, negating s when it is in the upper half
// of the order so the same message never has two valid encodings.
func compactSignature(sig *ecdsa.Signature) []byte {
	r := sig.R()
	s := sig.S()
	if s.IsOverHalfOrder() {
		s.Negate()
	}

	out := make([]byte, 0, codec.SignatureSize)
	rb := r.Bytes()
	sb := s.Bytes()
	out = append(out, rb[:]...)
	out = append(out, sb[:]...)
	return out
}
