package settlement

import "strings"

// Predicate tests the lower-cased text of an event.
type Predicate func(text string) bool

// Matcher decides whether an event settles an operation. Success is tested
// before Failure for the same event; across events the first match wins.
type Matcher struct {
	Success Predicate
	Failure Predicate
}

// Contains matches when text contains sub, case-insensitively.
func Contains(sub string) Predicate {
	sub = strings.ToLower(sub)
	return func(text string) bool {
		return strings.Contains(text, sub)
	}
}

// HasPrefix matches when text starts with prefix, case-insensitively.
func HasPrefix(prefix string) Predicate {
	prefix = strings.ToLower(prefix)
	return func(text string) bool {
		return strings.HasPrefix(text, prefix)
	}
}

// AnyOf matches when any of preds matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(text string) bool {
		for _, p := range preds {
			if p != nil && p(text) {
				return true
			}
		}
		return false
	}
}

// DefaultFailure matches "failed" or "error" anywhere in the event.
func DefaultFailure() Predicate {
	return AnyOf(Contains("failed"), Contains("error"))
}

// LoginMatcher settles a login on "identity verified".
func LoginMatcher() Matcher {
	return Matcher{Success: Contains("identity verified"), Failure: DefaultFailure()}
}

// RegisterMatcher settles a registration on "successfully registered identity".
func RegisterMatcher() Matcher {
	return Matcher{Success: HasPrefix("successfully registered identity"), Failure: DefaultFailure()}
}

// SessionKeyAddedMatcher settles a session key registration.
func SessionKeyAddedMatcher() Matcher {
	return Matcher{Success: Contains("session key added"), Failure: DefaultFailure()}
}

// SessionKeyRemovedMatcher settles a session key removal.
func SessionKeyRemovedMatcher() Matcher {
	return Matcher{Success: Contains("session key removed"), Failure: DefaultFailure()}
}

func (m Matcher) success(text string) bool {
	return m.Success != nil && m.Success(text)
}

func (m Matcher) failure(text string) bool {
	return m.Failure != nil && m.Failure(text)
}
