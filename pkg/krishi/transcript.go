package krishi

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the append-only conversation log. Messages are never
// mutated or removed once appended; append order is the transcript
// order.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	logger   *Logger
}

func NewTranscript() *Transcript {
	return &Transcript{
		logger: GetGlobalLogger().WithComponent("transcript"),
	}
}

// Append stores a message and returns the stored copy. Missing ID and
// timestamp are filled in. Always succeeds.
func (t *Transcript) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	size := len(t.messages)
	t.mu.Unlock()

	t.logger.Debugf("appended %s message (log size %d)", msg.Speaker, size)
	return msg
}

// Snapshot returns the messages in insertion order, most recent last.
func (t *Transcript) Snapshot() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Return a copy to avoid race conditions
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Last returns the most recently appended message.
func (t *Transcript) Last() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Clear empties the log. Session-reset utility; not part of the
// append-only flow a live session uses.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}

// LoadHistory does a one-shot fetch of prior conversation from the
// backend at session start. Failure is non-fatal: the error is logged
// and the transcript stays as it was.
func (t *Transcript) LoadHistory(ctx context.Context, backend *BackendClient, farmerID string) {
	res := backend.ConversationHistory(ctx, farmerID)
	if !res.Success {
		t.logger.LogError(NewHistoryLoadError(res.Error.Message))
		return
	}

	t.mu.Lock()
	t.messages = append(res.Data, t.messages...)
	t.mu.Unlock()

	t.logger.Infof("loaded %d history messages", len(res.Data))
}

// Export writes the transcript to a JSON file.
func (t *Transcript) Export(path string) error {
	t.mu.Lock()
	data, err := json.MarshalIndent(t.messages, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return NewJSONError(err.Error())
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return NewUnknownError(err.Error())
	}
	return nil
}

// Import replaces the transcript with the contents of a JSON file.
// Like Clear, it is a session-reset utility for restoring a saved
// conversation, outside the append-only flow.
func (t *Transcript) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewUnknownError(err.Error())
	}
	var imported []Message
	if err := json.Unmarshal(data, &imported); err != nil {
		return NewJSONError(err.Error())
	}
	t.mu.Lock()
	t.messages = imported
	t.mu.Unlock()
	return nil
}
