package inference_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-image-editor-backend/internal/inference"
)

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{"declared image wins", png, "image/webp", "image/webp"},
		{"declared with params", png, "image/png; charset=binary", "image/png"},
		{"non-image declared is sniffed", png, "application/octet-stream", "image/png"},
		{"unknown bytes default", []byte("hello"), "", inference.DefaultContentType},
		{"empty", nil, "", inference.DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inference.DetectContentType(tt.data, tt.declared))
		})
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, inference.IsImage(png))
	assert.False(t, inference.IsImage([]byte("plain text")))
	assert.False(t, inference.IsImage(nil))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", inference.Extension("image/jpeg"))
	assert.Equal(t, "png", inference.Extension("image/png"))
	assert.Equal(t, "svg", inference.Extension("image/svg+xml"))
	assert.Equal(t, "webp", inference.Extension("image/webp; q=1"))
	assert.Equal(t, "jpg", inference.Extension("garbage"))
}

func TestDecodeDataURI(t *testing.T) {
	data, contentType, err := inference.DecodeDataURI("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, "image/png", contentType)

	_, _, err = inference.DecodeDataURI("https://example.com/a.png")
	assert.Error(t, err)
	_, _, err = inference.DecodeDataURI("data:image/png;base64")
	assert.Error(t, err)
	_, _, err = inference.DecodeDataURI("data:image/png;base64,***")
	assert.Error(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(png)
		case "/big":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher := inference.NewHTTPFetcher(5*time.Second, 32).WithHeader("Authorization", "Bearer tok")

	data, contentType, err := fetcher.Fetch(t.Context(), server.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", contentType)

	_, _, err = fetcher.Fetch(t.Context(), server.URL+"/big")
	assert.ErrorContains(t, err, "exceeds 32 bytes")

	_, _, err = fetcher.Fetch(t.Context(), server.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}
