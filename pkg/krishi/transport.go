package krishi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// assistRequest mirrors the assist service contract: either audio or
// text, plus the requested language.
type assistRequest struct {
	Audio      string `json:"audio,omitempty"`
	Text       string `json:"text,omitempty"`
	Lang       string `json:"lang,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Format     string `json:"format,omitempty"`
}

type assistResponse struct {
	RecognizedText string `json:"recognized_text"`
	TranslatedText string `json:"translated_text"`
	AssistantText  string `json:"assistant_text"`
	AudioReply     string `json:"audio_reply"`
	AudioMime      string `json:"audio_mime"`
	SampleRate     int    `json:"sample_rate"`
	Message        string `json:"message"`
}

// Transport submits one utterance (or one text prompt) per call and
// awaits one structured reply. Request/response, no streaming, no
// automatic retry: a failed submission resolves the turn and the user
// re-initiates.
type Transport struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *Logger
}

func NewTransport(config *Config, tokens TokenSource) *Transport {
	if config == nil {
		config = NewConfig()
	}
	return &Transport{
		baseURL: config.AssistEndpoint,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: config.TransportTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		logger: GetGlobalLogger().WithComponent("transport"),
	}
}

// Submit sends one captured utterance and returns the assist reply.
func (t *Transport) Submit(ctx context.Context, utt *Utterance, lang string) (*Reply, *KrishiError) {
	if utt == nil || len(utt.PCM) == 0 {
		return nil, NewEmptyUtteranceError()
	}

	req := assistRequest{
		Audio:      base64.StdEncoding.EncodeToString(utt.PCM),
		Lang:       lang,
		SampleRate: utt.SampleRate,
		Format:     "pcm_f32le",
	}
	return t.post(ctx, "/v1/assist/voice", req)
}

// SubmitText sends one text prompt over the same contract.
func (t *Transport) SubmitText(ctx context.Context, text, lang string) (*Reply, *KrishiError) {
	if text == "" {
		return nil, NewConfigError("text cannot be empty")
	}
	return t.post(ctx, "/v1/assist/chat", assistRequest{Text: text, Lang: lang})
}

func (t *Transport) post(ctx context.Context, path string, body assistRequest) (*Reply, *KrishiError) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewJSONError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, NewConfigError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "KrishiSDK-Go/1.0")

	if t.tokens != nil {
		token, terr := t.tokens.Token()
		if terr != nil {
			return nil, NewAuthError(terr.Error())
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, NewTimeoutError("assist request timed out").AddDetail("timeout", t.httpClient.Timeout.String())
		}
		return nil, NewTransportError(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError(resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := extractErrorMessage(respBody)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, NewTransportError(resp.StatusCode, msg)
	}

	var ar assistResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return nil, NewJSONError(err.Error())
	}

	reply := &Reply{
		RecognizedText: ar.RecognizedText,
		TranslatedText: ar.TranslatedText,
		AssistantText:  ar.AssistantText,
	}
	if ar.AudioReply != "" {
		audio, err := base64.StdEncoding.DecodeString(ar.AudioReply)
		if err != nil {
			return nil, NewJSONError(fmt.Sprintf("malformed audio reply: %v", err))
		}
		reply.Audio = &AudioReply{
			Payload:    audio,
			MimeType:   ar.AudioMime,
			SampleRate: ar.SampleRate,
		}
	}

	t.logger.LogTurnEvent("reply_received", map[string]interface{}{
		"elapsed":   time.Since(start).String(),
		"has_audio": reply.Audio != nil,
	})
	return reply, nil
}

func extractErrorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		return e.Error
	}
	return string(body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
