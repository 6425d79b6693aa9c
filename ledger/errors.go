package ledger

import (
	goerrors "github.com/goliatone/go-errors"
)

const TextCodeNetwork = "NETWORK_ERROR"

// NetworkError wraps a failed node, prover, indexer or event channel call.
// These are never retried; the whole operation is aborted.
func NetworkError(err error, msg string, meta map[string]any) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeNetwork {
		if len(meta) > 0 {
			return richErr.WithMetadata(meta)
		}
		return richErr
	}

	var out *goerrors.Error
	if err != nil {
		out = goerrors.Wrap(err, goerrors.CategoryOperation, msg)
	} else {
		out = goerrors.New(msg, goerrors.CategoryOperation)
	}
	out = out.WithTextCode(TextCodeNetwork).WithCode(goerrors.CodeInternal)
	if len(meta) > 0 {
		out = out.WithMetadata(meta)
	}
	return out
}

// IsNetworkError reports whether err is a network failure.
func IsNetworkError(err error) bool {
	var richErr *goerrors.Error
	if err != nil && goerrors.As(err, &richErr) {
		return richErr.TextCode == TextCodeNetwork
	}
	return false
}
