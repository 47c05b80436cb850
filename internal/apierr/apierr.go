// Package apierr defines the typed failure values used throughout the sync
// core and classifies transport-level failures from the remote message store.
//
// Every fallible remote operation returns an *Error carrying a Kind. Callers
// branch on the kind with the Is* predicates instead of matching on message
// text, which keeps the fatal-vs-skip distinction in bulk operations
// mechanically checkable.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Kind classifies a failure from the remote message store.
type Kind int

const (
	// KindTransient is a generic API failure. It is propagated as-is and
	// never retried unless it is also rate-limit shaped.
	KindTransient Kind = iota

	// KindAuth is an expired or revoked credential. Fatal to a whole batch,
	// surfaced to the caller, never retried automatically.
	KindAuth

	// KindRateLimited is a quota/rate-limit rejection. Retried with backoff.
	KindRateLimited

	// KindNotFound is a missing item. Skipped in bulk operations, surfaced
	// for single-item operations.
	KindNotFound

	// KindWatermarkExpired means the change-feed watermark is older than the
	// history the server retains. Consumed by the watcher's reseed
	// transition, never surfaced to callers directly.
	KindWatermarkExpired

	// KindParse is a malformed payload. Skipped per item in list contexts,
	// surfaced for single-item operations.
	KindParse
)

// String returns a short name for the kind, used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindWatermarkExpired:
		return "watermark_expired"
	case KindParse:
		return "parse"
	default:
		return "transient"
	}
}

// Error is a classified failure from a remote or parse operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindAuth {
		return fmt.Sprintf("%s: authentication failed, please re-authenticate: %v", e.Op, e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified *Error for the given operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap classifies err (see Classify) and wraps it for the given operation.
// A nil err returns nil. An err that is already an *Error keeps its kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return New(Classify(err), op, err)
}

// rateLimitReasons is the fixed set of HTTP 403 error reasons that are
// retryable per the Gmail API error contract.
var rateLimitReasons = map[string]bool{
	"userRateLimitExceeded": true,
	"rateLimitExceeded":     true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"limitExceeded":         true,
	"backendError":          true,
}

// Classify inspects a transport-level failure and determines its kind.
// Unrecognized failures classify as transient.
func Classify(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return KindTransient
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusForbidden:
		for _, item := range gerr.Errors {
			if rateLimitReasons[item.Reason] {
				return KindRateLimited
			}
		}
		return KindAuth
	case http.StatusNotFound:
		return KindNotFound
	}
	return KindTransient
}

// ClassifyChangeFeed classifies a failure from a changes-since call. The
// remote service bounds how far back change history is retained: it rejects
// a too-old watermark with 404, or with 400 naming the start-history field.
func ClassifyChangeFeed(err error) Kind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusNotFound {
			return KindWatermarkExpired
		}
		if gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "startHistoryId") {
			return KindWatermarkExpired
		}
	}
	return Classify(err)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// IsRateLimited reports whether err is a retryable rate-limit failure.
func IsRateLimited(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == KindRateLimited
	}
	return Classify(err) == KindRateLimited
}

// IsNotFound reports whether err is a missing-item failure.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsWatermarkExpired reports whether err is an expired-watermark signal.
func IsWatermarkExpired(err error) bool { return kindOf(err) == KindWatermarkExpired }

// IsParse reports whether err is a malformed-payload failure.
func IsParse(err error) bool { return kindOf(err) == KindParse }

func kindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Classify(err)
}
