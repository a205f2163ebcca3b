package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty_defaults", in: "", want: "http://localhost:5000"},
		{name: "scheme_added", in: "example.com:5000", want: "http://example.com:5000"},
		{name: "trailing_slash_stripped", in: "http://example.com/", want: "http://example.com"},
		{name: "https_kept", in: "https://api.example.com", want: "https://api.example.com"},
		{name: "whitespace_trimmed", in: "  http://x  ", want: "http://x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBaseURL(tt.in))
		})
	}
}

func TestSocketURL(t *testing.T) {
	assert.Equal(t, "ws://example.com/socket", NewClient("http://example.com").SocketURL())
	assert.Equal(t, "wss://example.com/socket", NewClient("https://example.com").SocketURL())
}

func TestFetchToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/token", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dev_abc123", body["username"])

		json.NewEncoder(w).Encode(map[string]string{"token": "tok-xyz"})
	}))
	defer server.Close()

	token, err := NewClient(server.URL).FetchToken(context.Background(), "dev_abc123")
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", token)
}

func TestFetchTokenErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server_error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "empty_token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{})
			},
		},
		{
			name: "not_json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "plain text")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(server.URL).FetchToken(context.Background(), "u")
			assert.Error(t, err)
		})
	}
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/lookup", r.URL.Path)
		assert.Equal(t, "widgets & things", r.URL.Query().Get("q"))
		io.WriteString(w, `{"rows":[{"name":"widget"}]}`)
	}))
	defer server.Close()

	result, err := NewClient(server.URL).Lookup(context.Background(), "widgets & things")
	require.NoError(t, err)
	assert.False(t, result.Unavailable)
	assert.Len(t, result.Rows, 1)
}

func TestLookupUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"db_lookup_unavailable":true}`)
	}))
	defer server.Close()

	result, err := NewClient(server.URL).Lookup(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, result.Unavailable)
}

func TestUploadChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload_audio_chunk", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "sess-1", r.FormValue("session_id"))

		file, _, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, data)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewClient(server.URL).UploadChunk(context.Background(), "tok-1", "sess-1", 1, []byte{1, 2, 3}, "audio/webm")
	assert.NoError(t, err)
}

func TestUploadChunkNonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewClient(server.URL).UploadChunk(context.Background(), "", "s", 3, []byte{9}, "audio/webm")
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusTooManyRequests, uploadErr.StatusCode)
	assert.Equal(t, "quota exceeded", uploadErr.Body)
}

func TestMergeAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/merge_audio", r.URL.Path)
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])

		json.NewEncoder(w).Encode(map[string]string{"message": "merged 4 chunks"})
	}))
	defer server.Close()

	message, err := NewClient(server.URL).MergeAudio(context.Background(), "tok-2", "alice")
	require.NoError(t, err)
	assert.Equal(t, "merged 4 chunks", message)
}

func TestMergeAudioError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "no chunks"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).MergeAudio(context.Background(), "", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no chunks")
}
