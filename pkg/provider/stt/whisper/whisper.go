// Package whisper provides local speech-to-text providers built on
// whisper.cpp.
//
// [Provider] talks to a running whisper-server binary (POST /inference).
// [NativeProvider] links the whisper.cpp library directly through its Go
// bindings; it is compiled only with the "whispercpp" build tag and
// otherwise reports [ErrNativeUnavailable].
//
// Both consume the canonical PCM of an [stt.Audio] and ignore its WAV field.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/stt"
)

const (
	providerName       = "whisper"
	defaultLanguage    = "en"
	defaultHTTPTimeout = 60 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code sent to the server (e.g., "es", "en").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the HTTP client. The default has a 60 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider against a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe encodes a.PCM as a WAV file and posts it to /inference as
// multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, a stt.Audio) (string, error) {
	if len(a.PCM) == 0 {
		return "", nil
	}
	wav := audio.EncodeWAV(a.PCM, a.SampleRate, 1, audio.CanonicalWidth)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", stt.NewError(providerName, stt.KindBackend, fmt.Errorf("create form file: %w", err))
	}
	if _, err := fw.Write(wav); err != nil {
		return "", stt.NewError(providerName, stt.KindBackend, fmt.Errorf("write wav data: %w", err))
	}
	fields := map[string]string{
		"language":        p.language,
		"model":           p.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", stt.NewError(providerName, stt.KindBackend, fmt.Errorf("write %s field: %w", k, err))
		}
	}
	if err := mw.Close(); err != nil {
		return "", stt.NewError(providerName, stt.KindBackend, fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", stt.NewError(providerName, stt.KindBackend, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", stt.NewError(providerName, stt.KindTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", stt.NewError(providerName, stt.KindTransport, fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", stt.NewError(providerName, stt.KindFromStatus(resp.StatusCode),
			fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", stt.NewError(providerName, stt.KindBackend, fmt.Errorf("parse JSON response: %w", err))
	}
	return strings.TrimSpace(result.Text), nil
}
