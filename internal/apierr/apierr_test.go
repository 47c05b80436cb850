package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{
			name:     "401 is auth",
			err:      &googleapi.Error{Code: 401},
			expected: KindAuth,
		},
		{
			name:     "429 is rate limited",
			err:      &googleapi.Error{Code: 429},
			expected: KindRateLimited,
		},
		{
			name: "403 with user rate limit reason is rate limited",
			err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "userRateLimitExceeded"},
			}},
			expected: KindRateLimited,
		},
		{
			name: "403 with quota reason is rate limited",
			err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "quotaExceeded"},
			}},
			expected: KindRateLimited,
		},
		{
			name: "403 with backend error reason is rate limited",
			err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "backendError"},
			}},
			expected: KindRateLimited,
		},
		{
			name: "403 without retryable reason is auth",
			err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "insufficientPermissions"},
			}},
			expected: KindAuth,
		},
		{
			name:     "404 is not found",
			err:      &googleapi.Error{Code: 404},
			expected: KindNotFound,
		},
		{
			name:     "500 is transient",
			err:      &googleapi.Error{Code: 500},
			expected: KindTransient,
		},
		{
			name:     "plain error is transient",
			err:      errors.New("connection reset"),
			expected: KindTransient,
		},
		{
			name:     "wrapped googleapi error keeps its classification",
			err:      fmt.Errorf("get thread: %w", &googleapi.Error{Code: 429}),
			expected: KindRateLimited,
		},
		{
			name:     "already classified error keeps its kind",
			err:      New(KindParse, "parse", errors.New("bad json")),
			expected: KindParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassifyChangeFeed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{
			name:     "404 means the watermark expired",
			err:      &googleapi.Error{Code: 404},
			expected: KindWatermarkExpired,
		},
		{
			name:     "400 naming startHistoryId means the watermark expired",
			err:      &googleapi.Error{Code: 400, Message: "Invalid startHistoryId value"},
			expected: KindWatermarkExpired,
		},
		{
			name:     "unrelated 400 is transient",
			err:      &googleapi.Error{Code: 400, Message: "Invalid labelId"},
			expected: KindTransient,
		},
		{
			name:     "auth failures pass through",
			err:      &googleapi.Error{Code: 401},
			expected: KindAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyChangeFeed(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	err := Wrap("threads.get", &googleapi.Error{Code: 404})
	assert.True(t, IsNotFound(err))

	// wrapping twice keeps the original kind
	again := Wrap("outer", err)
	assert.True(t, IsNotFound(again))

	var ae *Error
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, "threads.get", ae.Op)
}

func TestAuthErrorMessageTellsUserToReauthenticate(t *testing.T) {
	err := New(KindAuth, "credentials.resolve", errors.New("token revoked"))
	assert.Contains(t, err.Error(), "re-authenticate")
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsAuth(&googleapi.Error{Code: 401}))
	assert.True(t, IsRateLimited(&googleapi.Error{Code: 429}))
	assert.False(t, IsRateLimited(&googleapi.Error{Code: 500}))
	assert.True(t, IsNotFound(New(KindNotFound, "op", nil)))
	assert.True(t, IsParse(New(KindParse, "op", nil)))
	assert.True(t, IsWatermarkExpired(New(KindWatermarkExpired, "op", nil)))
	assert.False(t, IsAuth(errors.New("nope")))
}
