// Package voice turns utterances into reminder commands: it talks to the
// speech-to-text service, checks the safe word, and parses the command text.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// STT error codes reported by the speech service.
const (
	CodeInvalidMediaType = "INVALID_MEDIA_TYPE"
	CodeAudioTooShort    = "AUDIO_TOO_SHORT"
	CodeAudioTooLong     = "AUDIO_TOO_LONG"
	CodeSTTFailed        = "STT_FAILED"
	CodeUnavailable      = "STT_UNAVAILABLE"
)

// Transcription is the result of speech recognition.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// STTError is a structured failure from the speech service.
type STTError struct {
	Code   string
	Status int
	Err    error
}

func (e *STTError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stt %s: %v", e.Code, e.Err)
	}
	return "stt " + e.Code
}

func (e *STTError) Unwrap() error { return e.Err }

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (Transcription, error)
}

// HTTPTranscriber posts audio to an STT service as multipart field "audio".
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranscriber creates a client for the service at baseURL.
func NewHTTPTranscriber(baseURL string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/stt"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (Transcription, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", audioContentType(filename))
	part, err := mw.CreatePart(header)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return Transcription{}, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/stt", &body)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return Transcription{}, &STTError{Code: CodeUnavailable, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcription{}, &STTError{Code: CodeUnavailable, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Transcription{}, &STTError{Code: errorCode(respBody), Status: resp.StatusCode}
	}

	var out Transcription
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Transcription{}, &STTError{Code: CodeSTTFailed, Status: resp.StatusCode, Err: err}
	}
	return out, nil
}

// Health checks the service's /health endpoint.
func (t *HTTPTranscriber) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return &STTError{Code: CodeUnavailable, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &STTError{Code: CodeUnavailable, Status: resp.StatusCode}
	}
	return nil
}

// errorCode reads {"error": CODE} or {"detail": {"error": CODE}}.
func errorCode(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail struct {
			Error string `json:"error"`
		} `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail.Error != "" {
			return payload.Detail.Error
		}
	}
	return CodeSTTFailed
}

func audioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	}
	return "application/octet-stream"
}

// DefaultMockUtterance is what StaticTranscriber says when run in mock mode.
const DefaultMockUtterance = "memo remind me to call mom at 6 pm"

// StaticTranscriber always returns the same text. It stands in for the
// speech service in mock mode.
type StaticTranscriber struct {
	Text string
}

func (s StaticTranscriber) Transcribe(context.Context, io.Reader, string) (Transcription, error) {
	return Transcription{Text: s.Text, Confidence: 1}, nil
}
