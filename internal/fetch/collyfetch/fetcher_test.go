package collyfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/fetch"
)

func newSite(t *testing.T, withAux bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Home</title></head><body><h1>Hi</h1></body></html>"))
	})
	if withAux {
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
		})
		mux.HandleFunc("/llms.txt", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# Site context"))
		})
		mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<urlset></urlset>"))
		})
	} else {
		notFound := func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}
		mux.HandleFunc("/robots.txt", notFound)
		mux.HandleFunc("/llms.txt", notFound)
		mux.HandleFunc("/sitemap.xml", notFound)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPageAssemblesContext(t *testing.T) {
	t.Parallel()

	srv := newSite(t, true)
	f := New(Config{Timeout: 5 * time.Second}, zap.NewNop())

	page, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "<h1>Hi</h1>")
	require.Equal(t, srv.URL, page.BaseURL)
	require.NotNil(t, page.RobotsTxt)
	require.True(t, page.LLMsTxt)
	require.True(t, page.Sitemap)
	require.Greater(t, page.LoadTime, time.Duration(0))
}

func TestFetchPageMissingAuxResources(t *testing.T) {
	t.Parallel()

	srv := newSite(t, false)
	f := New(Config{Timeout: 5 * time.Second}, zap.NewNop())

	page, err := f.FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Nil(t, page.RobotsTxt)
	require.False(t, page.LLMsTxt)
	require.False(t, page.Sitemap)
}

func TestFetchPageUnreachable(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, zap.NewNop())
	_, err := f.FetchPage(context.Background(), "http://127.0.0.1:1")
	require.ErrorIs(t, err, fetch.ErrUnreachable)
}

func TestFetchPageBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second}, zap.NewNop())
	_, err := f.FetchPage(context.Background(), srv.URL)
	require.ErrorIs(t, err, fetch.ErrBlocked)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	u, err := normalizeURL("example.com/page")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/page", u.String())

	_, err = normalizeURL("")
	require.Error(t, err)
	_, err = normalizeURL("ftp://example.com")
	require.Error(t, err)
}
