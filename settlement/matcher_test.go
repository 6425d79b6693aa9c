package settlement_test

import (
	"strings"
	"testing"

	"github.com/goliatone/go-ledger-auth/settlement"
	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchers(t *testing.T) {
	tests := []struct {
		name    string
		matcher settlement.Matcher
		text    string
		success bool
		failure bool
	}{
		{"login verified", settlement.LoginMatcher(), "Identity Verified", true, false},
		{"login verified in sentence", settlement.LoginMatcher(), "tx 0xabc: identity verified for bob", true, false},
		{"login failed", settlement.LoginMatcher(), "Verification failed", false, true},
		{"login error", settlement.LoginMatcher(), "Error: insufficient funds", false, true},
		{"register prefix", settlement.RegisterMatcher(), "Successfully registered identity bob@wallet", true, false},
		{"register prefix only", settlement.RegisterMatcher(), "bob: successfully registered identity", false, false},
		{"session key added", settlement.SessionKeyAddedMatcher(), "Session key added", true, false},
		{"session key removed", settlement.SessionKeyRemovedMatcher(), "Session key removed", true, false},
		{"unrelated", settlement.LoginMatcher(), "sequenced", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.ToLower(tt.text)
			assert.Equal(t, tt.success, tt.matcher.Success(text))
			assert.Equal(t, tt.failure, tt.matcher.Failure(text))
		})
	}
}

func TestAnyOfIgnoresNilPredicates(t *testing.T) {
	p := settlement.AnyOf(nil, settlement.Contains("ok"))
	assert.True(t, p("all ok"))
	assert.False(t, p("nope"))
}
