package krishi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(&LogConfig{
		Level:  zerolog.DebugLevel,
		Pretty: false,
		Output: buf,
	})
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.WithFields(map[string]interface{}{
		"device_name": "USB Mic",
		"sample_rate": 16000,
	}).Warn("sample rate mismatch")

	out := buf.String()
	for _, want := range []string{`"device_name":"USB Mic"`, `"sample_rate":16000`, "sample rate mismatch"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestLoggerWithComponentAndField(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.WithComponent("recorder").WithField("frames", 3).Info("capture ended")

	out := buf.String()
	if !strings.Contains(out, `"component":"recorder"`) {
		t.Fatalf("log output %q missing component", out)
	}
	if !strings.Contains(out, `"frames":3`) {
		t.Fatalf("log output %q missing field", out)
	}
}
