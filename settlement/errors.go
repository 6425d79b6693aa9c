package settlement

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-auth/ledger"
)

const (
	TextCodeSettlementTimeout = "SETTLEMENT_TIMEOUT"
	TextCodeSettlementFailure = "SETTLEMENT_FAILURE"
)

func timeoutError(identity ledger.Identity, timeout time.Duration, cause error) *goerrors.Error {
	meta := map[string]any{
		"identity": identity.String(),
		"timeout":  timeout.String(),
	}
	if cause != nil {
		meta["cause"] = cause.Error()
	}
	return goerrors.New("timed out waiting for settlement", goerrors.CategoryOperation).
		WithTextCode(TextCodeSettlementTimeout).
		WithCode(goerrors.CodeInternal).
		WithMetadata(meta)
}

// failureError keeps the raw event text as the message.
func failureError(identity ledger.Identity, event Event) *goerrors.Error {
	return goerrors.New(event.Text, goerrors.CategoryConflict).
		WithTextCode(TextCodeSettlementFailure).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"identity": identity.String(),
			"event":    event.Text,
			"topic":    event.Topic,
		})
}

// IsTimeout reports whether err is a settlement timeout.
func IsTimeout(err error) bool {
	return hasTextCode(err, TextCodeSettlementTimeout)
}

// IsFailure reports whether err is an explicit settlement failure event.
func IsFailure(err error) bool {
	return hasTextCode(err, TextCodeSettlementFailure)
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if err != nil && goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
