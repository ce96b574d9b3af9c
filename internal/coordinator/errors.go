package coordinator

import "errors"

// Kind is the error taxonomy surfaced to the HTTP Surface (spec.md §7).
// Kinds are not Go type names: the HTTP layer maps a Kind string to a
// status code.
type Kind string

const (
	KindValidationFailed     Kind = "validation_failed"
	KindUnauthorized         Kind = "unauthorized"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindProfileIncomplete    Kind = "profile_incomplete"
	KindGenerationInProgress Kind = "generation_in_progress"
	KindCannotCancel         Kind = "cannot_cancel"
	KindServiceLimitReached  Kind = "service_limit_reached"
	KindTimeout              Kind = "timeout"
	KindModelError           Kind = "model_error"
	KindNetwork              Kind = "network"
	KindRateLimited          Kind = "rate_limited"
	KindInvalidRoute         Kind = "invalid_route"
	KindIncomplete           Kind = "incomplete"
	KindTooManyPoints        Kind = "too_many_points"
	KindServerError          Kind = "server_error"
)

// Sentinel errors, grounded on core/errors.go's errors.Is idiom: Error.Unwrap
// returns the sentinel matching its Kind, so callers can test with
// errors.Is(err, coordinator.ErrNotFound) instead of comparing Kind strings.
var (
	ErrValidationFailed     = errors.New("validation failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrProfileIncomplete    = errors.New("profile incomplete")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrCannotCancel         = errors.New("cannot cancel")
	ErrServiceLimitReached  = errors.New("service limit reached")
	ErrTimeout              = errors.New("generation timeout")
	ErrModelError           = errors.New("model error")
	ErrNetwork              = errors.New("network error")
	ErrRateLimited          = errors.New("rate limited")
	ErrInvalidRoute         = errors.New("invalid route")
	ErrIncomplete           = errors.New("generation incomplete")
	ErrTooManyPoints        = errors.New("too many points")
	ErrServerError          = errors.New("server error")
)

var sentinelByKind = map[Kind]error{
	KindValidationFailed:     ErrValidationFailed,
	KindUnauthorized:         ErrUnauthorized,
	KindNotFound:             ErrNotFound,
	KindConflict:             ErrConflict,
	KindProfileIncomplete:    ErrProfileIncomplete,
	KindGenerationInProgress: ErrGenerationInProgress,
	KindCannotCancel:         ErrCannotCancel,
	KindServiceLimitReached:  ErrServiceLimitReached,
	KindTimeout:              ErrTimeout,
	KindModelError:           ErrModelError,
	KindNetwork:              ErrNetwork,
	KindRateLimited:          ErrRateLimited,
	KindInvalidRoute:         ErrInvalidRoute,
	KindIncomplete:           ErrIncomplete,
	KindTooManyPoints:        ErrTooManyPoints,
	KindServerError:          ErrServerError,
}

// Error is the structured value the Coordinator returns for every
// precondition failure; the HTTP Surface maps Kind to a status code. It is
// FrameworkError-shaped (Op, Kind, Message, Details, RetryAfter), grounded
// on core/errors.go's FrameworkError.
type Error struct {
	Op         string // operation that failed, e.g. "Coordinator.Generate"
	Kind       Kind
	Message    string
	Details    map[string]interface{}
	RetryAfter int // seconds; zero means "not retryable"
}

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap lets callers use errors.Is(err, coordinator.ErrNotFound) and
// friends instead of comparing Kind strings directly.
func (e *Error) Unwrap() error {
	return sentinelByKind[e.Kind]
}

func newError(op string, kind Kind, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

func newConflict(op, reason, message string) *Error {
	return &Error{Op: op, Kind: KindConflict, Message: message, Details: map[string]interface{}{"reason": reason}}
}

// IsRetryable mirrors core.IsRetryable: timeouts, network failures, rate
// limiting, and a reached spend cap are conditions a caller can retry,
// typically after RetryAfter seconds.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServiceLimitReached)
}

// IsNotFound mirrors core.IsNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports a state conflict: a concurrent generation already in
// flight, or a genuine resource conflict (e.g. an archived note).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrGenerationInProgress)
}
