package krishi

import (
	"fmt"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeDeviceUnavailable = "DEVICE_UNAVAILABLE"
	ErrCodeCaptureActive     = "CAPTURE_ALREADY_ACTIVE"
	ErrCodeCaptureInactive   = "CAPTURE_NOT_ACTIVE"
	ErrCodeTurnInProgress    = "TURN_IN_PROGRESS"
	ErrCodeEmptyUtterance    = "EMPTY_UTTERANCE"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeTransportTimeout  = "TRANSPORT_TIMEOUT"
	ErrCodePlayback          = "PLAYBACK_ERROR"
	ErrCodeHistoryLoad       = "HISTORY_LOAD_FAILED"
	ErrCodeMeterChannel      = "METER_CHANNEL_ERROR"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeJSONParse         = "JSON_PARSE_ERROR"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeTokenExpired      = "TOKEN_EXPIRED"
	ErrCodeUnknown           = "UNKNOWN_ERROR"
)

// KrishiError is the coded error type used across the SDK. Every turn
// error resolves the session back to Idle; none are fatal to the process.
type KrishiError struct {
	Message   string
	Code      string
	Details   map[string]interface{}
	Timestamp time.Time
	err       error
}

func (e *KrishiError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%s)", e.Message, e.Code))
	if len(e.Details) > 0 {
		sb.WriteString(":")
		for k, v := range e.Details {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
		}
	}
	return sb.String()
}

func (e *KrishiError) Unwrap() error {
	return e.err
}

func NewKrishiError(message, code string) *KrishiError {
	return &KrishiError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// AddDetail attaches context to an error and returns it for chaining.
func (e *KrishiError) AddDetail(key string, value interface{}) *KrishiError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *KrishiError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Specific error creators with common codes
func NewDeviceError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeDeviceUnavailable)
}

func NewCaptureActiveError() *KrishiError {
	return NewKrishiError("capture already active", ErrCodeCaptureActive)
}

func NewCaptureInactiveError() *KrishiError {
	return NewKrishiError("no active capture", ErrCodeCaptureInactive)
}

func NewTurnInProgressError(state SessionState) *KrishiError {
	return NewKrishiError("turn already in progress", ErrCodeTurnInProgress).AddDetail("state", string(state))
}

func NewEmptyUtteranceError() *KrishiError {
	return NewKrishiError("utterance payload is empty", ErrCodeEmptyUtterance)
}

func NewTransportError(status int, message string) *KrishiError {
	return NewKrishiError(message, ErrCodeTransport).AddDetail("status", status)
}

func NewTimeoutError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeTransportTimeout)
}

func NewPlaybackError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodePlayback)
}

func NewHistoryLoadError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeHistoryLoad)
}

func NewConfigError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeConfigInvalid)
}

func NewJSONError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeJSONParse)
}

func NewAuthError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeAuthFailed)
}

func NewUnknownError(message string) *KrishiError {
	return NewKrishiError(message, ErrCodeUnknown)
}

// WrapError wraps any error as a KrishiError with the given code.
func WrapError(err error, code string) *KrishiError {
	if err == nil {
		return nil
	}
	kerr := NewKrishiError(err.Error(), code)
	kerr.err = err
	return kerr
}

func IsErrorCode(err *KrishiError, code string) bool {
	if err == nil {
		return false
	}
	return err.Code == code
}

// IsTurnError reports whether the error is terminal to the current turn
// only. The session resolves to Idle and the user may re-initiate;
// nothing is retried automatically.
func IsTurnError(err *KrishiError) bool {
	if err == nil {
		return false
	}
	turnCodes := []string{
		ErrCodeDeviceUnavailable,
		ErrCodeEmptyUtterance,
		ErrCodeTransport,
		ErrCodeTransportTimeout,
		ErrCodePlayback,
	}
	for _, code := range turnCodes {
		if err.Code == code {
			return true
		}
	}
	return false
}

// IsCriticalError reports whether the error points at broken setup
// rather than a failed turn.
func IsCriticalError(err *KrishiError) bool {
	if err == nil {
		return false
	}
	criticalCodes := []string{
		ErrCodeAuthFailed,
		ErrCodeTokenExpired,
		ErrCodeConfigInvalid,
	}
	for _, code := range criticalCodes {
		if err.Code == code {
			return true
		}
	}
	return false
}
