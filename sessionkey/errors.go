package sessionkey

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeKeyGeneration = "KEY_GENERATION_ERROR"
	TextCodeCrypto        = "CRYPTO_ERROR"
)

func keyGenerationError(err error, msg string) *goerrors.Error {
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
			WithTextCode(TextCodeKeyGeneration).
			WithCode(goerrors.CodeInternal)
	}
	return goerrors.New(msg, goerrors.CategoryInternal).
		WithTextCode(TextCodeKeyGeneration).
		WithCode(goerrors.CodeInternal)
}

func cryptoError(err error, msg string) *goerrors.Error {
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, msg).
			WithTextCode(TextCodeCrypto).
			WithCode(goerrors.CodeBadRequest)
	}
	return goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode(TextCodeCrypto).
		WithCode(goerrors.CodeBadRequest)
}

// IsKeyGenerationError reports whether err came from key pair generation.
func IsKeyGenerationError(err error) bool {
	return hasTextCode(err, TextCodeKeyGeneration)
}

// IsCryptoError reports whether err came from key parsing or signing.
func IsCryptoError(err error) bool {
	return hasTextCode(err, TextCodeCrypto)
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if err != nil && goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
