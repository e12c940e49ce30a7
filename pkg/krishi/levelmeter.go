package krishi

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// levelFrame is what goes over the wire to the monitoring listener.
type levelFrame struct {
	Level float32 `json:"level"`
	TS    int64   `json:"ts"`
}

// LevelSource reports the latest amplitude and whether capture is
// active. It must be cheap and non-blocking.
type LevelSource func() (level float32, capturing bool)

// LevelMeter streams coarse amplitude samples over a websocket to a
// monitoring listener while capture is active. Strictly advisory:
// samples are fire-and-forget, the connection reconnects forever with
// a fixed backoff, and nothing here can block or fail the turn
// pipeline.
type LevelMeter struct {
	endpoint       string
	interval       time.Duration
	reconnectDelay time.Duration
	source         LevelSource
	dialer         *websocket.Dialer
	logger         *Logger
	debug          bool
}

func NewLevelMeter(endpoint string, source LevelSource, config *Config) *LevelMeter {
	if config == nil {
		config = NewConfig()
	}
	return &LevelMeter{
		endpoint:       endpoint,
		interval:       config.MeterInterval,
		reconnectDelay: config.MeterReconnectDelay,
		source:         source,
		dialer:         websocket.DefaultDialer,
		logger:         GetGlobalLogger().WithComponent("levelmeter"),
		debug:          config.DebugMeter,
	}
}

// Run drives the meter until the context is cancelled. Call it on its
// own goroutine; cancelling the context is the only way it returns, so
// no reconnect timer outlives the session.
func (lm *LevelMeter) Run(ctx context.Context) {
	if lm.endpoint == "" {
		return
	}

	for {
		conn, _, err := lm.dialer.DialContext(ctx, lm.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if lm.debug {
				lm.logger.WithError(err).Debug("meter dial failed")
			}
			if !sleepCtx(ctx, lm.reconnectDelay) {
				return
			}
			continue
		}

		lm.stream(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, lm.reconnectDelay) {
			return
		}
	}
}

// stream forwards samples until the connection breaks or the context
// is cancelled. Dropped samples are not retried.
func (lm *LevelMeter) stream(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level, capturing := lm.source()
			if !capturing {
				continue
			}
			frame := levelFrame{Level: level, TS: time.Now().UnixMilli()}
			conn.SetWriteDeadline(time.Now().Add(lm.interval * 2))
			if err := conn.WriteJSON(frame); err != nil {
				if lm.debug {
					lm.logger.WithError(err).Debug("meter write failed, reconnecting")
				}
				return
			}
		}
	}
}

// sleepCtx waits d or until ctx is done; returns false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
