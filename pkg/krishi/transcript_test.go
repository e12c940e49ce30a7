package krishi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func TestTranscriptAppendFillsDefaults(t *testing.T) {
	tr := NewTranscript()

	stored := tr.Append(Message{Speaker: SpeakerUser, Text: "hello"})
	if stored.ID == "" {
		t.Fatal("ID not filled")
	}
	if stored.Timestamp.IsZero() {
		t.Fatal("Timestamp not filled")
	}

	// Provided ID and timestamp survive untouched.
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stored = tr.Append(Message{ID: "fixed", Speaker: SpeakerAssistant, Text: "hi", Timestamp: at})
	if stored.ID != "fixed" || !stored.Timestamp.Equal(at) {
		t.Fatalf("provided fields overwritten: %+v", stored)
	}

	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
	last, ok := tr.Last()
	if !ok || last.ID != "fixed" {
		t.Fatalf("Last = %+v, %v", last, ok)
	}
}

func TestTranscriptSnapshotIsolation(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Message{Speaker: SpeakerUser, Text: "one"})
	tr.Append(Message{Speaker: SpeakerAssistant, Text: "two"})

	snap := tr.Snapshot()
	if len(snap) != 2 || snap[0].Text != "one" || snap[1].Text != "two" {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Mutating the snapshot must not reach the log.
	snap[0].Text = "mangled"
	if fresh := tr.Snapshot(); fresh[0].Text != "one" {
		t.Fatal("snapshot shares storage with the transcript")
	}
}

func TestTranscriptLoadHistoryPrepends(t *testing.T) {
	history := []Message{
		{ID: "h1", Speaker: SpeakerUser, Text: "earlier question"},
		{ID: "h2", Speaker: SpeakerAssistant, Text: "earlier answer"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/farmers/f7/history" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(history)
	}))
	defer srv.Close()

	config := NewConfig()
	config.BackendEndpoint = srv.URL
	backend := NewBackendClient(config, nil)

	tr := NewTranscript()
	tr.Append(Message{ID: "live", Speaker: SpeakerUser, Text: "current question"})

	tr.LoadHistory(context.Background(), backend, "f7")

	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Len = %d, want 3", len(snap))
	}
	if snap[0].ID != "h1" || snap[2].ID != "live" {
		t.Fatalf("history not prepended: %+v", snap)
	}
}

func TestTranscriptLoadHistoryFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	config := NewConfig()
	config.BackendEndpoint = srv.URL
	backend := NewBackendClient(config, nil)

	tr := NewTranscript()
	tr.Append(Message{ID: "live", Speaker: SpeakerUser, Text: "current"})

	tr.LoadHistory(context.Background(), backend, "f7")

	if tr.Len() != 1 {
		t.Fatalf("Len = %d after failed load, want 1", tr.Len())
	}
	last, _ := tr.Last()
	if last.ID != "live" {
		t.Fatal("existing transcript disturbed by failed load")
	}
}

func TestTranscriptExportImport(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Message{Speaker: SpeakerUser, Text: "save me"})
	tr.Append(Message{Speaker: SpeakerAssistant, Text: "saved"})

	path := filepath.Join(t.TempDir(), "transcript.json")
	if err := tr.Export(path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	restored := NewTranscript()
	if err := restored.Import(path); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	a, b := tr.Snapshot(), restored.Snapshot()
	if len(a) != len(b) {
		t.Fatalf("restored %d messages, want %d", len(b), len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text || a[i].Speaker != b[i].Speaker {
			t.Fatalf("message %d mismatch: %+v vs %+v", i, a[i], b[i])
		}
	}
}
