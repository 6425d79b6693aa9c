package auth

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-auth/codec"
	"github.com/goliatone/go-ledger-auth/ledger"
	"github.com/goliatone/go-ledger-auth/sessionkey"
	"github.com/goliatone/go-ledger-auth/settlement"
)

const (
	TextCodeValidation        = "VALIDATION_ERROR"
	TextCodeInvalidTransition = "INVALID_STAGE_TRANSITION"
	TextCodeInProgress        = "OPERATION_IN_PROGRESS"
	TextCodeWalletRequired    = "WALLET_REQUIRED"
)

// ErrorKind classifies every error the machine can return.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindKeyGeneration     ErrorKind = "key_generation"
	KindCrypto            ErrorKind = "crypto"
	KindSchemaViolation   ErrorKind = "schema_violation"
	KindInvariant         ErrorKind = "invariant_violation"
	KindNetwork           ErrorKind = "network"
	KindSettlementTimeout ErrorKind = "settlement_timeout"
	KindSettlementFailure ErrorKind = "settlement_failure"
	KindConfig            ErrorKind = "config"
	KindInProgress        ErrorKind = "in_progress"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindUnknown           ErrorKind = "unknown"
)

var kindsByTextCode = map[string]ErrorKind{
	TextCodeValidation:                   KindValidation,
	TextCodeWalletRequired:               KindValidation,
	ledger.TextCodeInvalidIdentity:       KindValidation,
	sessionkey.TextCodeKeyGeneration:     KindKeyGeneration,
	sessionkey.TextCodeCrypto:            KindCrypto,
	codec.TextCodeSchemaViolation:        KindSchemaViolation,
	codec.TextCodeInvariantViolation:     KindInvariant,
	ledger.TextCodeNetwork:               KindNetwork,
	settlement.TextCodeSettlementTimeout: KindSettlementTimeout,
	settlement.TextCodeSettlementFailure: KindSettlementFailure,
	ledger.TextCodeConfigNotInitialized:  KindConfig,
	TextCodeInProgress:                   KindInProgress,
	TextCodeInvalidTransition:            KindInvalidTransition,
}

// KindOf classifies err by its go-errors text code.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if kind, ok := kindsByTextCode[richErr.TextCode]; ok {
			return kind
		}
	}
	return KindUnknown
}

// ErrorMessage returns the human readable message of err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

// IsValidationError reports whether err was raised before any network call.
func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}

func validationError(msg string, meta map[string]any) *goerrors.Error {
	err := goerrors.New(msg, goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
	if len(meta) > 0 {
		err = err.WithMetadata(meta)
	}
	return err
}

func walletRequiredError(op Operation) *goerrors.Error {
	return goerrors.New("wallet is not connected", goerrors.CategoryValidation).
		WithTextCode(TextCodeWalletRequired).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"operation": op})
}

func inProgressError(stage Stage, op Operation) *goerrors.Error {
	return goerrors.New("another wallet operation is in progress", goerrors.CategoryConflict).
		WithTextCode(TextCodeInProgress).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"stage":     stage,
			"operation": op,
		})
}

func invalidTransitionError(from, to Stage) *goerrors.Error {
	return goerrors.New("invalid wallet stage transition", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
}
