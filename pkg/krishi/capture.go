package krishi

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// AudioConfig holds device-level audio settings shared by capture and
// playback.
type AudioConfig struct {
	SampleRate int
	Channels   int
	Format     string
	BufferSize int
	DeviceID   *int
}

func NewAudioConfig() *AudioConfig {
	return &AudioConfig{
		SampleRate: 16000,
		Channels:   1,
		Format:     "pcm_f32le",
		BufferSize: 1024,
	}
}

// InputDevice abstracts the microphone so the capture path can be
// exercised without audio hardware.
type InputDevice interface {
	Start(config *AudioConfig, onFrame func([]float32)) error
	Stop() error
}

// PortAudioInput is the production InputDevice.
type PortAudioInput struct {
	stream *portaudio.Stream
}

func NewPortAudioInput() *PortAudioInput {
	return &PortAudioInput{}
}

func (d *PortAudioInput) Start(config *AudioConfig, onFrame func([]float32)) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}

	stream, err := portaudio.OpenDefaultStream(config.Channels, 0, float64(config.SampleRate), config.BufferSize, func(in []float32) {
		onFrame(in)
	})
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}

	d.stream = stream
	return nil
}

func (d *PortAudioInput) Stop() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Stop()
	if cerr := d.stream.Close(); err == nil {
		err = cerr
	}
	d.stream = nil
	portaudio.Terminate()
	return err
}

// Recorder is the audio capture adapter. At most one capture is active
// at a time; a capture that reaches the ceiling duration is force-ended.
type Recorder struct {
	config    *AudioConfig
	device    InputDevice
	ceiling   time.Duration
	onCeiling func()
	onFrame   func([]float32)
	logger    *Logger

	mu           sync.Mutex
	active       bool
	buf          []float32
	startedAt    time.Time
	ceilingTimer *time.Timer

	level atomic.Uint32 // float32 bits of the latest frame amplitude
}

func NewRecorder(device InputDevice, config *AudioConfig, ceiling time.Duration) *Recorder {
	if config == nil {
		config = NewAudioConfig()
	}
	return &Recorder{
		config:  config,
		device:  device,
		ceiling: ceiling,
		logger:  GetGlobalLogger().WithComponent("recorder"),
	}
}

// SetCeilingFunc registers the callback invoked when the ceiling
// duration elapses before End is called.
func (r *Recorder) SetCeilingFunc(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCeiling = fn
}

// SetFrameFunc registers a per-frame observer. Called on the device
// callback goroutine; must not block.
func (r *Recorder) SetFrameFunc(fn func([]float32)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFrame = fn
}

// Begin starts capturing one utterance.
func (r *Recorder) Begin() *KrishiError {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return NewCaptureActiveError()
	}
	r.buf = r.buf[:0]
	r.startedAt = time.Now()
	r.mu.Unlock()

	if err := r.device.Start(r.config, r.handleFrame); err != nil {
		// Device or permission failure; the recorder stays usable for retry.
		return NewDeviceError(err.Error())
	}

	r.mu.Lock()
	r.active = true
	if r.ceiling > 0 {
		r.ceilingTimer = time.AfterFunc(r.ceiling, r.fireCeiling)
	}
	r.mu.Unlock()

	r.logger.LogTurnEvent("capture_started", map[string]interface{}{
		"sample_rate": r.config.SampleRate,
		"ceiling":     r.ceiling.String(),
	})
	return nil
}

func (r *Recorder) fireCeiling() {
	r.mu.Lock()
	fn := r.onCeiling
	active := r.active
	r.mu.Unlock()
	if active && fn != nil {
		r.logger.Warn("capture ceiling reached, forcing end")
		fn()
	}
}

func (r *Recorder) handleFrame(in []float32) {
	r.level.Store(math.Float32bits(MeanAmplitude(in)))

	r.mu.Lock()
	if !r.active {
		// Begin sets active after device start; frames delivered in that
		// window still belong to the utterance.
		if r.startedAt.IsZero() {
			r.mu.Unlock()
			return
		}
	}
	r.buf = append(r.buf, in...)
	fn := r.onFrame
	r.mu.Unlock()

	if fn != nil {
		fn(in)
	}
}

// End stops the capture and returns the buffered utterance.
func (r *Recorder) End() (*Utterance, *KrishiError) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, NewCaptureInactiveError()
	}
	r.active = false
	if r.ceilingTimer != nil {
		r.ceilingTimer.Stop()
		r.ceilingTimer = nil
	}
	startedAt := r.startedAt
	r.startedAt = time.Time{}
	r.mu.Unlock()

	if err := r.device.Stop(); err != nil {
		r.logger.WithError(err).Warn("input device stop failed")
	}

	r.mu.Lock()
	samples := r.buf
	r.buf = nil
	r.mu.Unlock()

	r.level.Store(0)

	utt := &Utterance{
		PCM:        EncodePCM(samples),
		SampleRate: r.config.SampleRate,
		Channels:   r.config.Channels,
		StartedAt:  startedAt,
		Duration:   time.Since(startedAt),
	}
	r.logger.LogTurnEvent("capture_ended", map[string]interface{}{
		"samples":  len(samples),
		"duration": utt.Duration.String(),
	})
	return utt, nil
}

// Abort stops the capture and discards the buffer.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	if r.ceilingTimer != nil {
		r.ceilingTimer.Stop()
		r.ceilingTimer = nil
	}
	r.buf = nil
	r.startedAt = time.Time{}
	r.mu.Unlock()

	if err := r.device.Stop(); err != nil {
		r.logger.WithError(err).Warn("input device stop failed")
	}
	r.level.Store(0)
	r.logger.LogTurnEvent("capture_aborted", nil)
}

// IsActive reports whether a capture is in progress.
func (r *Recorder) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Level returns the amplitude of the most recent frame in [0, 1].
// Only the latest value is retained.
func (r *Recorder) Level() float32 {
	return math.Float32frombits(r.level.Load())
}
