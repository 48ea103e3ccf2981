package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/customsearch/v1", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "engine-1", q.Get("cx"))
		assert.Equal(t, "Rolex Submariner 126610LN watch", q.Get("q"))
		assert.Equal(t, "image", q.Get("searchType"))
		assert.Equal(t, "5", q.Get("num"))
		assert.Equal(t, "large", q.Get("imgSize"))
		assert.Equal(t, "off", q.Get("safe"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"link":        "https://img.example.com/sub-1.jpg",
					"title":       "Submariner Date",
					"displayLink": "example.com",
					"mime":        "image/jpeg",
					"image": map[string]any{
						"contextLink": "https://example.com/sub",
						"width":       1600,
						"height":      1200,
					},
				},
				{"link": ""},
				{"link": "https://img.example.com/sub-2.png", "title": "Side view"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	resp, err := client.ImageSearch(context.Background(), ImageSearchRequest{
		Query:    "Rolex Submariner 126610LN watch",
		EngineID: "engine-1",
		Num:      5,
	})

	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "https://img.example.com/sub-1.jpg", resp.Items[0].Link)
	assert.Equal(t, "https://example.com/sub", resp.Items[0].ContextLink)
	assert.Equal(t, int64(1600), resp.Items[0].Width)
	assert.Equal(t, "Side view", resp.Items[1].Title)
}

func TestImageSearch_NumClamped(t *testing.T) {
	tests := []struct {
		name string
		num  int
		want string
	}{
		{name: "zero", num: 0, want: "10"},
		{name: "too_many", num: 25, want: "10"},
		{name: "in_range", num: 3, want: "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.want, r.URL.Query().Get("num"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			client := NewClient("k", WithBaseURL(srv.URL+"/"))
			resp, err := client.ImageSearch(context.Background(), ImageSearchRequest{Query: "q", EngineID: "cx", Num: tt.num})
			require.NoError(t, err)
			assert.Empty(t, resp.Items)
		})
	}
}

func TestImageSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL+"/"))
	_, err := client.ImageSearch(context.Background(), ImageSearchRequest{Query: "q", EngineID: "cx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google: image search")
}

func TestImageSearch_EmptyQuery(t *testing.T) {
	client := NewClient("k")
	_, err := client.ImageSearch(context.Background(), ImageSearchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty query")
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	c := NewClient("k", WithHTTPClient(custom)).(*cseClient)
	assert.Same(t, custom, c.http)
}
