package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for an unknown or evicted session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStreamActive rejects a second start for the same (session, client).
	ErrStreamActive = errors.New("stream already active for this client")
	// ErrEmptyFrameBuffer rejects streaming a session without frames.
	ErrEmptyFrameBuffer = errors.New("session has no frames")
	// ErrSendFailed wraps transport failures that end a stream.
	ErrSendFailed = errors.New("send failed")
	// ErrSinkStalled is wrapped by sinks that give up on a peer that stopped
	// reading. It always classifies as a send error.
	ErrSinkStalled = errors.New("sink stalled")
	// ErrRegistryFull is returned when max_sessions is reached and every
	// session is streaming.
	ErrRegistryFull = errors.New("session registry is full")
)

// ConfigError reports a bad session configuration or a failure of a
// parsing collaborator. It is surfaced synchronously at creation time.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError from a format string.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
