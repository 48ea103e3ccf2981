package imagery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/watch-research/internal/blob"
	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/scrape"
)

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg"))
		case "/b":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
		case "/page.jpg":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>not an image</html>"))
		case "/c.webp":
			w.Header().Set("Content-Type", "IMAGE/WEBP; charset=binary")
			_, _ = w.Write([]byte("webp"))
		default:
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := imageServer(t)
	storage := blob.NewMemStorage()
	a := NewAcquirer(scrape.NewPageFetcher(scrape.Options{RequestsPerSecond: 100}), storage)

	candidates := []model.ImageCandidate{
		{URL: srv.URL + "/a.jpg"},
		{URL: srv.URL + "/missing.jpg"},
		{URL: srv.URL + "/page.jpg"},
		{URL: srv.URL + "/b"},
		{URL: "not a url"},
		{URL: srv.URL + "/c.webp"},
	}

	got := a.Download(context.Background(), candidates, "Audemars Piguet", "15500ST")
	require.Len(t, got, 3)

	assert.Equal(t, "audemars-piguet-15500ST-1.jpg", got[0].Filename)
	assert.Equal(t, "watch-images/audemars-piguet-15500ST-1.jpg", got[0].StoragePath)
	assert.Equal(t, "image/jpeg", got[0].MimeType)
	assert.Equal(t, int64(4), got[0].FileSize)
	assert.Equal(t, srv.URL+"/a.jpg", got[0].SourceURL)

	assert.Equal(t, "audemars-piguet-15500ST-4.png", got[1].Filename)
	assert.Equal(t, "audemars-piguet-15500ST-6.webp", got[2].Filename)

	rc, err := storage.Open(got[1].StoragePath)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "png", string(data))
}

func TestDownload_CancelledContext(t *testing.T) {
	srv := imageServer(t)
	a := NewAcquirer(scrape.NewPageFetcher(scrape.Options{}), blob.NewMemStorage())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := a.Download(ctx, []model.ImageCandidate{{URL: srv.URL + "/a.jpg"}}, "Rolex", "126610LN")
	assert.Empty(t, got)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "png", ExtensionFor("image/png"))
	assert.Equal(t, "webp", ExtensionFor("image/webp"))
	assert.Equal(t, "jpg", ExtensionFor("image/jpeg"))
	assert.Equal(t, "jpg", ExtensionFor("image/avif"))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Rolex":              "rolex",
		"Audemars Piguet":    "audemars-piguet",
		"Jaeger-LeCoultre":   "jaeger-lecoultre",
		"A. Lange & Söhne":   "a-lange-sohne",
		"Glashütte Original": "glashutte-original",
		"  Tudor  ":          "tudor",
		"Großmann":           "grossmann",
		"Montblanc / 1858 ":  "montblanc-1858",
		"":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "patek-philippe-5711-1A-010-2.jpg", Filename("Patek Philippe", "5711/1A-010", 2, "jpg"))
	assert.Equal(t, "omega-310.30.42.50.01.001-1.png", Filename("Omega", " 310.30.42.50.01.001 ", 1, "png"))
}
