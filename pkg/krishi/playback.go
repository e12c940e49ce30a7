package krishi

import (
	"context"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// OutputDevice abstracts the speaker. Play blocks until the samples
// have been rendered or the context is cancelled.
type OutputDevice interface {
	Play(ctx context.Context, samples []float32, sampleRate, channels int) error
}

// PortAudioOutput is the production OutputDevice.
type PortAudioOutput struct {
	bufferSize int
}

func NewPortAudioOutput(bufferSize int) *PortAudioOutput {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &PortAudioOutput{bufferSize: bufferSize}
}

func (d *PortAudioOutput) Play(ctx context.Context, samples []float32, sampleRate, channels int) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	done := make(chan struct{}, 1)
	var mu sync.Mutex
	sampleIndex := 0

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), d.bufferSize, func(out []float32) {
		mu.Lock()
		defer mu.Unlock()
		for i := range out {
			if sampleIndex < len(samples) {
				out[i] = samples[sampleIndex]
				sampleIndex++
			} else {
				out[i] = 0
			}
		}
		if sampleIndex >= len(samples) {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	// Bound the wait in case the device swallows the tail.
	limit := time.Duration(float64(len(samples))/float64(sampleRate)*1.5*float64(time.Second)) + time.Second

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(limit):
		return nil
	}
}

// Player is the playback controller. At most one reply plays at a
// time; calling Play while playing stops the current playback instead
// of queueing a new one.
type Player struct {
	device  OutputDevice
	config  *AudioConfig
	onEnded func(*KrishiError)
	logger  *Logger

	mu      sync.Mutex
	playing bool
	cancel  context.CancelFunc
}

func NewPlayer(device OutputDevice, config *AudioConfig) *Player {
	if config == nil {
		config = NewAudioConfig()
	}
	return &Player{
		device: device,
		config: config,
		logger: GetGlobalLogger().WithComponent("player"),
	}
}

// SetEndedFunc registers the callback invoked exactly once per
// playback, whether it ends naturally, is interrupted, or fails. The
// error is non-nil only on decode/playback failure.
func (p *Player) SetEndedFunc(fn func(*KrishiError)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = fn
}

// Play starts playback of a reply, or stops the current playback if
// one is active (tap-to-stop).
func (p *Player) Play(reply *AudioReply) *KrishiError {
	p.mu.Lock()
	if p.playing {
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}
	ended := p.onEnded
	p.mu.Unlock()

	samples, err := DecodePCM(reply.Payload)
	if err != nil {
		kerr := NewPlaybackError(err.Error()).AddDetail("mime_type", reply.MimeType)
		p.logger.LogError(kerr)
		if ended != nil {
			ended(kerr)
		}
		return kerr
	}

	sampleRate := reply.SampleRate
	if sampleRate <= 0 {
		sampleRate = p.config.SampleRate
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.playing = true
	p.cancel = cancel
	p.mu.Unlock()

	var once sync.Once
	go func() {
		perr := p.device.Play(ctx, samples, sampleRate, p.config.Channels)

		var kerr *KrishiError
		if perr != nil && ctx.Err() == nil {
			kerr = NewPlaybackError(perr.Error())
		}

		p.mu.Lock()
		p.playing = false
		p.cancel = nil
		ended := p.onEnded
		p.mu.Unlock()

		cancel()
		samples = nil // release the decoded buffer

		once.Do(func() {
			if kerr != nil {
				p.logger.LogError(kerr)
			}
			if ended != nil {
				ended(kerr)
			}
		})
	}()

	return nil
}

// Stop interrupts the current playback, if any. Cleanup and the ended
// callback run on the playback goroutine.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsSpeaking reports whether a reply is currently playing.
func (p *Player) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
