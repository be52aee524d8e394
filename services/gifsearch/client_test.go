package gifsearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const giphyPayload = `{
	"data": [
		{"title": "Excited Dance GIF", "alt_text": "a dog dancing", "images": {"original": {"url": "https://media.giphy.com/1.gif"}}},
		{"title": "No URL GIF", "alt_text": "broken", "images": {"original": {"url": ""}}},
		{"title": "Party GIF", "alt_text": "", "images": {"original": {"url": "https://media.giphy.com/2.gif"}}}
	]
}`

func TestSearch_ParsesCandidates(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"api_key": q.Get("api_key"),
			"q":       q.Get("q"),
			"limit":   q.Get("limit"),
			"rating":  q.Get("rating"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(giphyPayload))
	}))
	defer server.Close()

	client := NewClientWithBase(server.URL, "test-key")
	candidates, err := client.Search(context.Background(), "excited celebration", 5, "pg-13")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"api_key": "test-key",
		"q":       "excited celebration",
		"limit":   "5",
		"rating":  "pg-13",
	}, gotQuery)

	// Entries without a media URL are dropped.
	require.Len(t, candidates, 2)
	assert.Equal(t, "Excited Dance GIF", candidates[0].Title)
	assert.Equal(t, "a dog dancing", candidates[0].AltText)
	assert.Equal(t, "https://media.giphy.com/1.gif", candidates[0].MediaURL)
	assert.Equal(t, "https://media.giphy.com/2.gif", candidates[1].MediaURL)
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client := NewClientWithBase(server.URL, "test-key")
	candidates, err := client.Search(context.Background(), "nothing", 5, "pg-13")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSearch_UpstreamErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-200 status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"malformed payload", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>definitely not json</html>"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := NewClientWithBase(server.URL, "test-key")
			_, err := client.Search(context.Background(), "q", 5, "pg-13")
			assert.Error(t, err)
		})
	}
}

func TestSearch_RespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClientWithBase(server.URL, "test-key")
	_, err := client.Search(ctx, "q", 5, "pg-13")
	assert.Error(t, err)
}
