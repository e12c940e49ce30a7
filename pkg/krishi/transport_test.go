package krishi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func transportConfig(url string) *Config {
	config := NewConfig()
	config.AssistEndpoint = url
	return config
}

func TestTransportSubmitSuccess(t *testing.T) {
	samples := []float32{0.1, -0.1, 0.2}
	utt := &Utterance{PCM: EncodePCM(samples), SampleRate: 16000, Channels: 1}
	replyAudio := EncodePCM(make([]float32, 320))

	var gotReq assistRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/assist/voice" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(assistResponse{
			RecognizedText: "गेहूं कब बोना चाहिए",
			TranslatedText: "When should wheat be sown",
			AssistantText:  "Sow wheat in early November.",
			AudioReply:     base64.StdEncoding.EncodeToString(replyAudio),
			AudioMime:      "audio/pcm",
			SampleRate:     24000,
		})
	}))
	defer srv.Close()

	tr := NewTransport(transportConfig(srv.URL), StaticToken("tok-1"))
	reply, kerr := tr.Submit(context.Background(), utt, "hi")
	if kerr != nil {
		t.Fatalf("Submit failed: %v", kerr)
	}

	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotReq.Lang != "hi" || gotReq.SampleRate != 16000 || gotReq.Format != "pcm_f32le" {
		t.Fatalf("request metadata = %+v", gotReq)
	}
	if gotReq.Audio != base64.StdEncoding.EncodeToString(utt.PCM) {
		t.Fatal("audio payload not base64 of the utterance PCM")
	}

	if reply.RecognizedText != "गेहूं कब बोना चाहिए" {
		t.Fatalf("RecognizedText = %q", reply.RecognizedText)
	}
	if reply.TranslatedText != "When should wheat be sown" {
		t.Fatalf("TranslatedText = %q", reply.TranslatedText)
	}
	if reply.Audio == nil {
		t.Fatal("audio reply missing")
	}
	if reply.Audio.SampleRate != 24000 || len(reply.Audio.Payload) != len(replyAudio) {
		t.Fatalf("audio reply = %d Hz, %d bytes", reply.Audio.SampleRate, len(reply.Audio.Payload))
	}
}

func TestTransportSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "speech service down"})
	}))
	defer srv.Close()

	tr := NewTransport(transportConfig(srv.URL), nil)
	utt := &Utterance{PCM: EncodePCM([]float32{0.1}), SampleRate: 16000}

	_, kerr := tr.Submit(context.Background(), utt, "hi")
	if kerr == nil {
		t.Fatal("Submit succeeded on 500")
	}
	if !IsErrorCode(kerr, ErrCodeTransport) {
		t.Fatalf("error code = %s, want %s", kerr.Code, ErrCodeTransport)
	}
	if kerr.Message != "speech service down" {
		t.Fatalf("message = %q", kerr.Message)
	}
	status, ok := kerr.GetDetail("status")
	if !ok || status != http.StatusInternalServerError {
		t.Fatalf("status detail = %v", status)
	}
}

func TestTransportSubmitTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	config := transportConfig(srv.URL)
	config.TransportTimeout = 30 * time.Millisecond
	tr := NewTransport(config, nil)
	utt := &Utterance{PCM: EncodePCM([]float32{0.1}), SampleRate: 16000}

	_, kerr := tr.Submit(context.Background(), utt, "hi")
	if kerr == nil {
		t.Fatal("Submit succeeded past the deadline")
	}
	if !IsErrorCode(kerr, ErrCodeTransportTimeout) {
		t.Fatalf("error code = %s, want %s", kerr.Code, ErrCodeTransportTimeout)
	}
}

func TestTransportSubmitEmptyUtterance(t *testing.T) {
	tr := NewTransport(transportConfig("http://localhost:0"), nil)

	for _, utt := range []*Utterance{nil, {PCM: nil}} {
		_, kerr := tr.Submit(context.Background(), utt, "hi")
		if !IsErrorCode(kerr, ErrCodeEmptyUtterance) {
			t.Fatalf("got %v, want %s", kerr, ErrCodeEmptyUtterance)
		}
	}
}

func TestTransportSubmitText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assist/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req assistRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Text != "soil is turning white" {
			t.Errorf("text = %q", req.Text)
		}
		json.NewEncoder(w).Encode(assistResponse{AssistantText: "That is likely salt buildup."})
	}))
	defer srv.Close()

	tr := NewTransport(transportConfig(srv.URL), nil)
	reply, kerr := tr.SubmitText(context.Background(), "soil is turning white", "en")
	if kerr != nil {
		t.Fatalf("SubmitText failed: %v", kerr)
	}
	if reply.AssistantText != "That is likely salt buildup." {
		t.Fatalf("AssistantText = %q", reply.AssistantText)
	}
	if reply.Audio != nil {
		t.Fatal("unexpected audio in text reply")
	}

	if _, kerr := tr.SubmitText(context.Background(), "", "en"); kerr == nil {
		t.Fatal("empty text accepted")
	}
}
