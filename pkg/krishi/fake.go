package krishi

import (
	"context"
	"sync"
	"time"
)

// FakeInput is an InputDevice for tests and development machines
// without audio hardware. Frames are pushed by hand.
type FakeInput struct {
	StartErr error

	mu      sync.Mutex
	started bool
	onFrame func([]float32)
}

func NewFakeInput() *FakeInput {
	return &FakeInput{}
}

func (f *FakeInput) Start(_ *AudioConfig, onFrame func([]float32)) error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.mu.Lock()
	f.started = true
	f.onFrame = onFrame
	f.mu.Unlock()
	return nil
}

func (f *FakeInput) Stop() error {
	f.mu.Lock()
	f.started = false
	f.onFrame = nil
	f.mu.Unlock()
	return nil
}

// Push delivers one frame as if it came from the device callback.
func (f *FakeInput) Push(frame []float32) {
	f.mu.Lock()
	fn := f.onFrame
	started := f.started
	f.mu.Unlock()
	if started && fn != nil {
		fn(frame)
	}
}

func (f *FakeInput) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// FakeOutput is an OutputDevice that simulates playback taking Delay
// wall time. Cancelling the context interrupts it, as with real
// hardware playback.
type FakeOutput struct {
	Delay   time.Duration
	PlayErr error

	mu    sync.Mutex
	plays int
}

func NewFakeOutput(delay time.Duration) *FakeOutput {
	return &FakeOutput{Delay: delay}
}

func (f *FakeOutput) Play(ctx context.Context, samples []float32, sampleRate, channels int) error {
	f.mu.Lock()
	f.plays++
	f.mu.Unlock()

	if f.PlayErr != nil {
		return f.PlayErr
	}

	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Plays returns how many playbacks were started.
func (f *FakeOutput) Plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}
