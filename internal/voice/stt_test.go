package voice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTranscriberUploadsAudio(t *testing.T) {
	var gotType, gotName, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stt", r.URL.Path)
		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotType = header.Header.Get("Content-Type")
		gotName = header.Filename
		gotBody = string(data)
		_, _ = w.Write([]byte(`{"text":"memo list reminders","confidence":0.93}`))
	}))
	defer ts.Close()

	tr := NewHTTPTranscriber(ts.URL+"/stt", time.Second)
	out, err := tr.Transcribe(context.Background(), strings.NewReader("RIFF...."), "/tmp/clip.wav")
	require.NoError(t, err)

	assert.Equal(t, "memo list reminders", out.Text)
	assert.InDelta(t, 0.93, out.Confidence, 1e-9)
	assert.Equal(t, "audio/wav", gotType)
	assert.Equal(t, "clip.wav", gotName)
	assert.Equal(t, "RIFF....", gotBody)
}

func TestHTTPTranscriberErrorShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"flat", http.StatusUnsupportedMediaType, `{"error":"INVALID_MEDIA_TYPE"}`, CodeInvalidMediaType},
		{"nested detail", http.StatusBadRequest, `{"detail":{"error":"AUDIO_TOO_SHORT"}}`, CodeAudioTooShort},
		{"too long", http.StatusRequestEntityTooLarge, `{"detail":{"error":"AUDIO_TOO_LONG"}}`, CodeAudioTooLong},
		{"unparseable", http.StatusInternalServerError, `oops`, CodeSTTFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewHTTPTranscriber(ts.URL, time.Second).Transcribe(context.Background(), strings.NewReader("x"), "a.ogg")
			var sttErr *STTError
			require.True(t, errors.As(err, &sttErr))
			assert.Equal(t, tt.want, sttErr.Code)
			assert.Equal(t, tt.status, sttErr.Status)
		})
	}
}

func TestHTTPTranscriberUnavailable(t *testing.T) {
	tr := NewHTTPTranscriber("http://127.0.0.1:1", 200*time.Millisecond)

	_, err := tr.Transcribe(context.Background(), strings.NewReader("x"), "a.wav")
	var sttErr *STTError
	require.True(t, errors.As(err, &sttErr))
	assert.Equal(t, CodeUnavailable, sttErr.Code)

	assert.Error(t, tr.Health(context.Background()))
}

func TestHTTPTranscriberHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	assert.NoError(t, NewHTTPTranscriber(ts.URL+"/", time.Second).Health(context.Background()))
}

func TestStaticTranscriber(t *testing.T) {
	out, err := StaticTranscriber{Text: "memo list"}.Transcribe(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "memo list", out.Text)
}
