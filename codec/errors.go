package codec

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSchemaViolation    = "SCHEMA_VIOLATION"
	TextCodeInvariantViolation = "INVARIANT_VIOLATION"
)

func schemaViolation(msg string, meta map[string]any) *goerrors.Error {
	err := goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode(TextCodeSchemaViolation).
		WithCode(goerrors.CodeBadRequest)
	if len(meta) > 0 {
		err = err.WithMetadata(meta)
	}
	return err
}

// InvariantViolation reports an internal length or shape check that failed
// before encoding, such as a digest that is not 32 bytes.
func InvariantViolation(msg string, meta map[string]any) *goerrors.Error {
	err := goerrors.New(msg, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvariantViolation).
		WithCode(goerrors.CodeInternal)
	if len(meta) > 0 {
		err = err.WithMetadata(meta)
	}
	return err
}

// IsSchemaViolation reports whether err is a codec schema violation.
func IsSchemaViolation(err error) bool {
	return hasTextCode(err, TextCodeSchemaViolation)
}

// IsInvariantViolation reports whether err is an invariant violation.
func IsInvariantViolation(err error) bool {
	return hasTextCode(err, TextCodeInvariantViolation)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
