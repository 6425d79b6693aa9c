package repository

import (
	"crypto/rand"
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	envelopeKDF     = "argon2id"
	saltSize        = 16

	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1

	// Upper bounds accepted when opening a stored envelope.
	maxKDFTime     = 16
	maxKDFMemoryKB = 512 * 1024
	maxKDFThreads  = 16
)

const (
	TextCodeInvalidPassphrase = "INVALID_PASSPHRASE"
	TextCodeInvalidEnvelope   = "INVALID_ENVELOPE"
)

// envelope holds a session private key sealed under a passphrase.
type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

func seal(passphrase string, plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read salt")
	}
	key := deriveKey(passphrase, salt, kdfTime, kdfMemoryKB, kdfThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init cipher")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read nonce")
	}

	raw, err := json.Marshal(envelope{
		Version:     envelopeVersion,
		KDF:         envelopeKDF,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, nil),
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode envelope")
	}
	return string(raw), nil
}

func open(passphrase, sealed string) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal([]byte(sealed), &env); err != nil {
		return nil, invalidEnvelope("malformed", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}

	key := deriveKey(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init cipher")
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, goerrors.New("invalid passphrase", goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidPassphrase).
			WithCode(goerrors.CodeUnauthorized)
	}
	return plaintext, nil
}

func (env envelope) validate() error {
	switch {
	case env.Version != envelopeVersion || env.KDF != envelopeKDF:
		return invalidEnvelope("unsupported version or kdf", nil)
	case len(env.Salt) != saltSize:
		return invalidEnvelope("bad salt length", nil)
	case len(env.Nonce) != chacha20poly1305.NonceSizeX:
		return invalidEnvelope("bad nonce length", nil)
	case len(env.Ciphertext) < chacha20poly1305.Overhead:
		return invalidEnvelope("ciphertext too short", nil)
	case env.KDFTime < 1 || env.KDFTime > maxKDFTime:
		return invalidEnvelope("kdf time out of range", nil)
	case env.KDFMemoryKB < 8*uint32(env.KDFThreads) || env.KDFMemoryKB > maxKDFMemoryKB:
		return invalidEnvelope("kdf memory out of range", nil)
	case env.KDFThreads < 1 || env.KDFThreads > maxKDFThreads:
		return invalidEnvelope("kdf threads out of range", nil)
	}
	return nil
}

func invalidEnvelope(reason string, cause error) error {
	meta := map[string]any{"reason": reason}
	if cause != nil {
		return goerrors.Wrap(cause, goerrors.CategoryBadInput, "sealed session key is invalid").
			WithTextCode(TextCodeInvalidEnvelope).
			WithMetadata(meta)
	}
	return goerrors.New("sealed session key is invalid", goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidEnvelope).
		WithMetadata(meta)
}

func deriveKey(passphrase string, salt []byte, time, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, memoryKB, threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
