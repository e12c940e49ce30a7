package krishi

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Factory functions for common handlers

// CreateTranscriptPrinter writes each appended message to w, one line
// per message, prefixed with the speaker.
func CreateTranscriptPrinter(w io.Writer) MessageHandler {
	return func(msg Message) {
		label := "assistant"
		if msg.Speaker == SpeakerUser {
			label = "you"
		}
		if msg.SourceText != "" && msg.SourceText != msg.Text {
			fmt.Fprintf(w, "[%s] %s (heard: %s)\n", label, msg.Text, msg.SourceText)
			return
		}
		fmt.Fprintf(w, "[%s] %s\n", label, msg.Text)
	}
}

// CreateStateLoggingHandler logs every state change, optionally
// forwarding to a callback.
func CreateStateLoggingHandler(callback func(SessionState)) StateHandler {
	return func(state SessionState) {
		log.Printf("Session state changed to: %s at %s", state, time.Now().Format(time.RFC3339))
		if callback != nil {
			callback(state)
		}
	}
}

// CreateErrorLoggingHandler logs surfaced errors with a prefix.
func CreateErrorLoggingHandler(prefix string) ErrorHandler {
	return func(err *KrishiError) {
		if err != nil {
			log.Printf("%s Error: %v", prefix, err.Error())
		}
	}
}

// CreateLevelBarHandler renders a crude text meter for each amplitude
// sample, for terminal UIs.
func CreateLevelBarHandler(w io.Writer, width int) LevelHandler {
	if width <= 0 {
		width = 30
	}
	return func(level float32) {
		filled := int(level * float32(width))
		if filled > width {
			filled = width
		}
		bar := make([]byte, width)
		for i := range bar {
			if i < filled {
				bar[i] = '#'
			} else {
				bar[i] = '-'
			}
		}
		fmt.Fprintf(w, "\r[%s] %.3f", bar, level)
	}
}

// CreateSilenceDetector invokes callback once the amplitude stays
// below threshold for silenceDuration. Useful for hands-free stop.
func CreateSilenceDetector(threshold float32, silenceDuration time.Duration, callback func()) LevelHandler {
	var mu sync.Mutex
	var silenceStart time.Time

	return func(level float32) {
		mu.Lock()
		defer mu.Unlock()

		if level < threshold {
			if silenceStart.IsZero() {
				silenceStart = time.Now()
			} else if time.Since(silenceStart) >= silenceDuration {
				callback()
				silenceStart = time.Time{}
			}
		} else {
			silenceStart = time.Time{}
		}
	}
}

// CreateSpeakerFilter forwards only messages from the given speaker.
func CreateSpeakerFilter(speaker Speaker, handler MessageHandler) MessageHandler {
	return func(msg Message) {
		if msg.Speaker == speaker {
			handler(msg)
		}
	}
}

// Composability functions

func ChainMessageHandlers(handlers ...MessageHandler) MessageHandler {
	return func(msg Message) {
		for _, h := range handlers {
			if h != nil {
				go h(msg) // Non-blocking chain
			}
		}
	}
}

func ChainStateHandlers(handlers ...StateHandler) StateHandler {
	return func(state SessionState) {
		for _, h := range handlers {
			if h != nil {
				go h(state)
			}
		}
	}
}

func ChainErrorHandlers(handlers ...ErrorHandler) ErrorHandler {
	return func(err *KrishiError) {
		for _, h := range handlers {
			if h != nil {
				go h(err)
			}
		}
	}
}

func SequentialMessageHandlers(handlers ...MessageHandler) MessageHandler {
	return func(msg Message) {
		for _, h := range handlers {
			if h != nil {
				h(msg) // Sequential execution
			}
		}
	}
}
