package krishi

import (
	"errors"
	"strings"
	"testing"
)

func TestKrishiErrorFormat(t *testing.T) {
	err := NewTransportError(503, "assist unavailable")

	got := err.Error()
	if !strings.Contains(got, "assist unavailable") {
		t.Fatalf("Error() = %q, missing message", got)
	}
	if !strings.Contains(got, ErrCodeTransport) {
		t.Fatalf("Error() = %q, missing code", got)
	}
	if !strings.Contains(got, "status=503") {
		t.Fatalf("Error() = %q, missing status detail", got)
	}
}

func TestKrishiErrorDetails(t *testing.T) {
	err := NewTimeoutError("took too long").AddDetail("timeout", "15s")

	if v, ok := err.GetDetail("timeout"); !ok || v != "15s" {
		t.Fatalf("GetDetail = %v, %v", v, ok)
	}
	if _, ok := err.GetDetail("absent"); ok {
		t.Fatal("GetDetail found absent key")
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("socket closed")
	err := WrapError(cause, ErrCodeTransport)

	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable via errors.Is")
	}
	if WrapError(nil, ErrCodeTransport) != nil {
		t.Fatal("WrapError(nil) not nil")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      *KrishiError
		turn     bool
		critical bool
	}{
		{"device", NewDeviceError("no mic"), true, false},
		{"timeout", NewTimeoutError("slow"), true, false},
		{"transport", NewTransportError(500, "boom"), true, false},
		{"playback", NewPlaybackError("bad pcm"), true, false},
		{"empty", NewEmptyUtteranceError(), true, false},
		{"auth", NewAuthError("denied"), false, true},
		{"config", NewConfigError("bad url"), false, true},
		{"capture active", NewCaptureActiveError(), false, false},
		{"history", NewHistoryLoadError("backend down"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTurnError(tt.err); got != tt.turn {
				t.Errorf("IsTurnError = %v, want %v", got, tt.turn)
			}
			if got := IsCriticalError(tt.err); got != tt.critical {
				t.Errorf("IsCriticalError = %v, want %v", got, tt.critical)
			}
		})
	}

	if IsTurnError(nil) || IsCriticalError(nil) || IsErrorCode(nil, ErrCodeTransport) {
		t.Fatal("nil error misclassified")
	}
}

func TestTurnInProgressCarriesState(t *testing.T) {
	err := NewTurnInProgressError(StateAwaitingReply)
	if state, ok := err.GetDetail("state"); !ok || state != string(StateAwaitingReply) {
		t.Fatalf("state detail = %v, %v", state, ok)
	}
}
