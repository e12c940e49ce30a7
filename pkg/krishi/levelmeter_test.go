package krishi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// meterCollector upgrades connections and forwards received frames.
type meterCollector struct {
	upgrader websocket.Upgrader
	frames   chan levelFrame
	dials    atomic.Int32
	dropEach bool // close every connection after the first frame
}

func newMeterCollector() *meterCollector {
	return &meterCollector{frames: make(chan levelFrame, 64)}
}

func (mc *meterCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := mc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	mc.dials.Add(1)
	defer conn.Close()

	for {
		var frame levelFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		select {
		case mc.frames <- frame:
		default:
		}
		if mc.dropEach {
			return
		}
	}
}

func meterTestConfig() *Config {
	config := NewConfig()
	config.MeterInterval = 5 * time.Millisecond
	config.MeterReconnectDelay = 10 * time.Millisecond
	return config
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestLevelMeterStreamsWhileCapturing(t *testing.T) {
	mc := newMeterCollector()
	srv := httptest.NewServer(mc)
	defer srv.Close()

	source := func() (float32, bool) { return 0.42, true }
	meter := NewLevelMeter(wsURL(srv), source, meterTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go meter.Run(ctx)

	select {
	case frame := <-mc.frames:
		if frame.Level < 0.41 || frame.Level > 0.43 {
			t.Fatalf("frame level = %f, want ~0.42", frame.Level)
		}
		if frame.TS == 0 {
			t.Fatal("frame timestamp missing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frames received")
	}
}

func TestLevelMeterSilentWhenNotCapturing(t *testing.T) {
	mc := newMeterCollector()
	srv := httptest.NewServer(mc)
	defer srv.Close()

	source := func() (float32, bool) { return 0.9, false }
	meter := NewLevelMeter(wsURL(srv), source, meterTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go meter.Run(ctx)

	select {
	case frame := <-mc.frames:
		t.Fatalf("received frame %+v while not capturing", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLevelMeterReconnectsAfterDrop(t *testing.T) {
	mc := newMeterCollector()
	mc.dropEach = true
	srv := httptest.NewServer(mc)
	defer srv.Close()

	source := func() (float32, bool) { return 0.5, true }
	meter := NewLevelMeter(wsURL(srv), source, meterTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go meter.Run(ctx)

	// Each connection is dropped after one frame; continued frames mean
	// the meter keeps dialing back in.
	waitFor(t, 3*time.Second, func() bool { return mc.dials.Load() >= 2 },
		"meter never reconnected")
}

func TestLevelMeterRunStopsOnCancel(t *testing.T) {
	mc := newMeterCollector()
	srv := httptest.NewServer(mc)
	defer srv.Close()

	source := func() (float32, bool) { return 0.1, true }
	meter := NewLevelMeter(wsURL(srv), source, meterTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		meter.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLevelMeterDisabledWithoutEndpoint(t *testing.T) {
	meter := NewLevelMeter("", func() (float32, bool) { return 0, false }, meterTestConfig())

	done := make(chan struct{})
	go func() {
		meter.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with empty endpoint did not return")
	}
}
