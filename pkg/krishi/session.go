package krishi

import (
	"context"
	"sync"
)

// transitions is the total transition table: every (state, event) pair
// has exactly one successor. Pairs that map to the same state are
// defined no-ops, not dropped events.
var transitions = map[SessionState]map[sessionEvent]SessionState{
	StateIdle: {
		eventStartCapture:    StateListening,
		eventCaptureComplete: StateIdle,
		eventReplyAudio:      StateIdle,
		eventReplyText:       StateIdle,
		eventReplyFailed:     StateIdle,
		eventPlaybackEnded:   StateIdle,
		eventInterrupt:       StateIdle,
	},
	StateListening: {
		eventStartCapture:    StateListening,
		eventCaptureComplete: StateAwaitingReply,
		eventReplyAudio:      StateListening,
		eventReplyText:       StateListening,
		eventReplyFailed:     StateListening,
		eventPlaybackEnded:   StateListening,
		eventInterrupt:       StateIdle,
	},
	StateAwaitingReply: {
		eventStartCapture:    StateAwaitingReply,
		eventCaptureComplete: StateAwaitingReply,
		eventReplyAudio:      StateSpeaking,
		eventReplyText:       StateIdle,
		eventReplyFailed:     StateIdle,
		eventPlaybackEnded:   StateAwaitingReply,
		eventInterrupt:       StateIdle,
	},
	StateSpeaking: {
		eventStartCapture:    StateListening,
		eventCaptureComplete: StateSpeaking,
		eventReplyAudio:      StateSpeaking,
		eventReplyText:       StateSpeaking,
		eventReplyFailed:     StateSpeaking,
		eventPlaybackEnded:   StateIdle,
		eventInterrupt:       StateIdle,
	},
}

// Session coordinates one voice interaction: capture, transport,
// transcript, playback, and the advisory level meter. It is the single
// mutator of the session state; all changes go through apply.
type Session struct {
	config     *Config
	recorder   *Recorder
	player     *Player
	transport  *Transport
	transcript *Transcript
	backend    *BackendClient
	meter      *LevelMeter
	farmerID   string
	logger     *Logger

	mu         sync.Mutex
	state      SessionState
	turnCancel context.CancelFunc

	handlerMu       sync.Mutex
	nextHandlerID   int
	stateHandlers   map[int]StateHandler
	messageHandlers map[int]MessageHandler
	errorHandlers   map[int]ErrorHandler
	levelHandlers   map[int]LevelHandler

	meterCancel context.CancelFunc
}

// NewSession wires a session from explicit devices. Use FakeInput and
// FakeOutput in tests.
func NewSession(config *Config, in InputDevice, out OutputDevice, tokens TokenSource) *Session {
	if config == nil {
		config = NewConfig()
	}
	audio := NewAudioConfig()

	s := &Session{
		config:          config,
		transcript:      NewTranscript(),
		transport:       NewTransport(config, tokens),
		backend:         NewBackendClient(config, tokens),
		state:           StateIdle,
		logger:          GetGlobalLogger().WithComponent("session"),
		stateHandlers:   make(map[int]StateHandler),
		messageHandlers: make(map[int]MessageHandler),
		errorHandlers:   make(map[int]ErrorHandler),
		levelHandlers:   make(map[int]LevelHandler),
	}

	s.recorder = NewRecorder(in, audio, config.CaptureCeiling)
	s.recorder.SetCeilingFunc(s.handleCeiling)
	s.recorder.SetFrameFunc(s.handleLevelFrame)

	s.player = NewPlayer(out, audio)
	s.player.SetEndedFunc(s.handlePlaybackEnded)

	s.meter = NewLevelMeter(config.MeterEndpoint, s.levelSource, config)

	return s
}

// NewDefaultSession wires a session against the default audio devices.
func NewDefaultSession(config *Config, tokens TokenSource) *Session {
	return NewSession(config, NewPortAudioInput(), NewPortAudioOutput(0), tokens)
}

// Open loads prior conversation history (non-fatal on failure) and
// starts the level meter. farmerID may be empty for anonymous
// sessions.
func (s *Session) Open(ctx context.Context, farmerID string) {
	s.farmerID = farmerID
	if farmerID != "" {
		s.transcript.LoadHistory(ctx, s.backend, farmerID)
	}

	mctx, cancel := context.WithCancel(context.Background())
	s.meterCancel = cancel
	go s.meter.Run(mctx)
}

// Close tears the session down: meter stopped, in-flight turn
// cancelled, capture aborted, playback stopped. No timers survive.
func (s *Session) Close() {
	if s.meterCancel != nil {
		s.meterCancel()
		s.meterCancel = nil
	}

	s.mu.Lock()
	cancel := s.turnCancel
	s.turnCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.recorder.Abort()
	s.player.Stop()
	s.apply(eventInterrupt)
	s.logger.Info("session closed")
}

// apply runs one event through the transition table and notifies state
// handlers when the state changes.
func (s *Session) apply(event sessionEvent) SessionState {
	s.mu.Lock()
	from := s.state
	next := transitions[from][event]
	if next != from {
		s.state = next
	}
	s.mu.Unlock()

	if next != from {
		s.logger.LogStateChange(from, next, string(event))
		s.emitState(next)
	}
	return next
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartListening begins capturing one utterance. Starting while
// Speaking interrupts the playback first; starting while a reply is in
// flight is rejected.
func (s *Session) StartListening() *KrishiError {
	s.mu.Lock()
	switch s.state {
	case StateListening:
		s.mu.Unlock()
		kerr := NewCaptureActiveError()
		s.emitError(kerr)
		return kerr
	case StateAwaitingReply:
		s.mu.Unlock()
		kerr := NewTurnInProgressError(StateAwaitingReply)
		s.emitError(kerr)
		return kerr
	}
	interrupting := s.state == StateSpeaking
	s.mu.Unlock()

	if interrupting {
		// Only one audio stream, input or output, is coherent at a
		// time: release the speaker before taking the microphone.
		s.player.Stop()
	}

	if kerr := s.recorder.Begin(); kerr != nil {
		s.emitError(kerr)
		return kerr
	}

	s.apply(eventStartCapture)
	return nil
}

// StopListening ends the capture and submits the utterance. The turn
// continues asynchronously; observe it through handlers or WaitIdle.
func (s *Session) StopListening(ctx context.Context) *KrishiError {
	return s.completeCapture(ctx)
}

func (s *Session) handleCeiling() {
	// Ceiling reached: force-end the capture and submit whatever was
	// buffered.
	if kerr := s.completeCapture(context.Background()); kerr != nil {
		s.logger.LogError(kerr)
	}
}

func (s *Session) completeCapture(ctx context.Context) *KrishiError {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return NewCaptureInactiveError()
	}
	s.mu.Unlock()

	utt, kerr := s.recorder.End()
	if kerr != nil {
		s.emitError(kerr)
		return kerr
	}

	s.apply(eventCaptureComplete)

	tctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.turnCancel = cancel
	s.mu.Unlock()

	go s.submitTurn(tctx, utt)
	return nil
}

// submitTurn runs the transport leg of one turn. The utterance is
// discarded when this returns, success or not.
func (s *Session) submitTurn(ctx context.Context, utt *Utterance) {
	reply, kerr := s.transport.Submit(ctx, utt, s.config.Language)

	s.mu.Lock()
	s.turnCancel = nil
	s.mu.Unlock()

	if kerr != nil {
		if ctx.Err() == context.Canceled {
			// User interrupt already resolved the turn.
			s.logger.Debug("turn cancelled in flight")
			return
		}
		s.apply(eventReplyFailed)
		s.emitError(kerr)
		return
	}

	s.mu.Lock()
	if s.state != StateAwaitingReply {
		// Interrupted while the reply was in flight; drop it.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	userMsg := Message{Speaker: SpeakerUser, Text: reply.RecognizedText}
	if reply.TranslatedText != "" {
		// Keep both forms: display text plus the recognized original.
		userMsg.Text = reply.TranslatedText
		userMsg.SourceText = reply.RecognizedText
		userMsg.SourceLanguage = s.config.Language
	}
	s.emitMessage(s.transcript.Append(userMsg))

	if reply.AssistantText != "" {
		s.emitMessage(s.transcript.Append(Message{
			Speaker: SpeakerAssistant,
			Text:    reply.AssistantText,
		}))
	}

	if reply.Audio != nil {
		if s.apply(eventReplyAudio) != StateSpeaking {
			// Interrupted between the reply arriving and playback.
			return
		}
		// A decode failure reports through the ended callback, which
		// resolves the state back to Idle.
		s.player.Play(reply.Audio)
	} else {
		s.apply(eventReplyText)
	}
}

// Cancel is the user interrupt: it stops whichever leg is active at
// its current suspension point and returns the session to Idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	st := s.state
	cancel := s.turnCancel
	s.turnCancel = nil
	s.mu.Unlock()

	switch st {
	case StateListening:
		s.recorder.Abort()
	case StateAwaitingReply:
		if cancel != nil {
			cancel()
		}
	case StateSpeaking:
		s.player.Stop()
	}

	s.apply(eventInterrupt)
}

func (s *Session) handlePlaybackEnded(kerr *KrishiError) {
	s.apply(eventPlaybackEnded)
	if kerr != nil {
		s.emitError(kerr)
	}
}

func (s *Session) handleLevelFrame(frame []float32) {
	s.handlerMu.Lock()
	if len(s.levelHandlers) == 0 {
		s.handlerMu.Unlock()
		return
	}
	handlers := make([]LevelHandler, 0, len(s.levelHandlers))
	for _, h := range s.levelHandlers {
		handlers = append(handlers, h)
	}
	s.handlerMu.Unlock()

	level := MeanAmplitude(frame)
	for _, h := range handlers {
		go h(level)
	}
}

// levelSource feeds the meter: latest amplitude plus the read-only
// listening flag. The meter shares nothing else with the turn
// pipeline.
func (s *Session) levelSource() (float32, bool) {
	return s.recorder.Level(), s.State() == StateListening
}

// WaitIdle blocks until the session returns to Idle or the context is
// done. Convenience for synchronous callers such as the CLI.
func (s *Session) WaitIdle(ctx context.Context) error {
	ch := make(chan struct{}, 1)
	remove := s.AddStateHandler(func(st SessionState) {
		if st == StateIdle {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})
	defer remove()

	if s.State() == StateIdle {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// AddStateHandler registers a state-change observer and returns an
// unsubscribe func.
func (s *Session) AddStateHandler(h StateHandler) func() {
	s.handlerMu.Lock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.stateHandlers[id] = h
	s.handlerMu.Unlock()
	return func() {
		s.handlerMu.Lock()
		delete(s.stateHandlers, id)
		s.handlerMu.Unlock()
	}
}

// AddMessageHandler registers an observer for appended transcript
// messages.
func (s *Session) AddMessageHandler(h MessageHandler) func() {
	s.handlerMu.Lock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.messageHandlers[id] = h
	s.handlerMu.Unlock()
	return func() {
		s.handlerMu.Lock()
		delete(s.messageHandlers, id)
		s.handlerMu.Unlock()
	}
}

// AddErrorHandler registers an observer for surfaced turn errors.
func (s *Session) AddErrorHandler(h ErrorHandler) func() {
	s.handlerMu.Lock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.errorHandlers[id] = h
	s.handlerMu.Unlock()
	return func() {
		s.handlerMu.Lock()
		delete(s.errorHandlers, id)
		s.handlerMu.Unlock()
	}
}

// AddLevelHandler registers an observer for per-frame amplitude
// samples while listening.
func (s *Session) AddLevelHandler(h LevelHandler) func() {
	s.handlerMu.Lock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.levelHandlers[id] = h
	s.handlerMu.Unlock()
	return func() {
		s.handlerMu.Lock()
		delete(s.levelHandlers, id)
		s.handlerMu.Unlock()
	}
}

func (s *Session) emitState(state SessionState) {
	s.handlerMu.Lock()
	handlers := make([]StateHandler, 0, len(s.stateHandlers))
	for _, h := range s.stateHandlers {
		handlers = append(handlers, h)
	}
	s.handlerMu.Unlock()
	for _, h := range handlers {
		go h(state)
	}
}

func (s *Session) emitMessage(msg Message) {
	s.handlerMu.Lock()
	handlers := make([]MessageHandler, 0, len(s.messageHandlers))
	for _, h := range s.messageHandlers {
		handlers = append(handlers, h)
	}
	s.handlerMu.Unlock()
	for _, h := range handlers {
		go h(msg)
	}
}

func (s *Session) emitError(kerr *KrishiError) {
	s.logger.LogError(kerr)
	s.handlerMu.Lock()
	handlers := make([]ErrorHandler, 0, len(s.errorHandlers))
	for _, h := range s.errorHandlers {
		handlers = append(handlers, h)
	}
	s.handlerMu.Unlock()
	for _, h := range handlers {
		go h(kerr)
	}
}

// Transcript exposes the conversation log.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// Backend exposes the persistence client.
func (s *Session) Backend() *BackendClient {
	return s.backend
}

// Transport exposes the assist client, e.g. for text turns.
func (s *Session) Transport() *Transport {
	return s.transport
}

// Level returns the latest capture amplitude in [0, 1].
func (s *Session) Level() float32 {
	return s.recorder.Level()
}
