package krishi

import "time"

// Result types for error handling
type Result[T any] struct {
	Data    T
	Error   *KrishiError
	Success bool
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Data: data, Success: true}
}

func Err[T any](err *KrishiError) Result[T] {
	return Result[T]{Error: err, Success: false}
}

// SessionState enum. One state machine instance owns the session;
// all mutation goes through its transition function.
type SessionState string

const (
	StateIdle          SessionState = "idle"
	StateListening     SessionState = "listening"
	StateAwaitingReply SessionState = "awaiting_reply"
	StateSpeaking      SessionState = "speaking"
)

// sessionEvent enumerates everything the state machine responds to.
type sessionEvent string

const (
	eventStartCapture    sessionEvent = "start_capture"
	eventCaptureComplete sessionEvent = "capture_complete"
	eventReplyAudio      sessionEvent = "reply_audio"
	eventReplyText       sessionEvent = "reply_text"
	eventReplyFailed     sessionEvent = "reply_failed"
	eventPlaybackEnded   sessionEvent = "playback_ended"
	eventInterrupt       sessionEvent = "interrupt"
)

// Speaker identifies which side of the conversation produced a message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one transcript entry. Immutable once appended; the
// Transcript is the sole owner and append order is the transcript order.
type Message struct {
	ID             string    `json:"id"`
	Speaker        Speaker   `json:"speaker"`
	Text           string    `json:"text"`
	SourceText     string    `json:"source_text,omitempty"`
	SourceLanguage string    `json:"source_language,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Utterance is one captured unit of microphone audio. Owned by the
// session for the duration of a single turn and discarded after the
// transport submission resolves.
type Utterance struct {
	PCM        []byte // pcm_f32le
	SampleRate int
	Channels   int
	StartedAt  time.Time
	Duration   time.Duration
}

// AudioReply is a synthesized speech payload returned by the assist
// service. Transient; owned by the Player for one playback.
type AudioReply struct {
	Payload    []byte // decoded pcm_f32le bytes
	MimeType   string
	SampleRate int
}

// Reply is the structured response to one submitted utterance.
type Reply struct {
	RecognizedText string
	TranslatedText string
	AssistantText  string
	Audio          *AudioReply
}

// Handler types
type StateHandler func(SessionState)
type MessageHandler func(Message)
type ErrorHandler func(*KrishiError)
type LevelHandler func(float32)
