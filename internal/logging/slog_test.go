package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithOperation(t *testing.T) {
	logger := WithOperation(slog.Default(), "threads.list")
	assert.NotNil(t, logger)
}

func TestWithAccount(t *testing.T) {
	logger := WithAccount(slog.Default(), "work")
	assert.NotNil(t, logger)
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	// nil error yields an empty group that slog omits
	attr = Err(nil)
	assert.Equal(t, "", attr.Key)
}

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{name: "regular email", email: "alice@example.com"},
		{name: "plus address", email: "alice+tag@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			assert.NotEqual(t, tt.email, got)
			assert.Contains(t, got, "user:")
			// stable across calls so log lines correlate
			assert.Equal(t, got, AnonymizeEmail(tt.email))
		})
	}

	assert.Equal(t, "", AnonymizeEmail(""))
	assert.NotEqual(t, AnonymizeEmail("a@b.c"), AnonymizeEmail("d@e.f"))
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	got := SanitizeToken("ya29.secret-token")
	assert.NotContains(t, got, "secret")
	assert.Equal(t, "[token:17 chars]", got)
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{name: "valid email", email: "user@example.com", expected: "example.com"},
		{name: "empty", email: "", expected: ""},
		{name: "no at sign", email: "invalid", expected: ""},
		{name: "multiple at signs", email: "a@b@c", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractDomain(tt.email))
		})
	}
}
