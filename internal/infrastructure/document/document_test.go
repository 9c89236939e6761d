package document

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-rag-api/pkg/errors"
)

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	return r[host], nil
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText("notes.MD", []byte("  # Title\n\xffbody  "))
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", text)

	_, err = ExtractText("slides.pptx", []byte("x"))
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeUnsupportedFormat, appErr.Code)
	assert.Equal(t, "Unsupported file extension: .pptx", appErr.Message)

	_, err = ExtractText("broken.pdf", []byte("not a pdf"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnsupportedFormat))
}

func TestWalkDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "resume.md"), []byte("Senior engineer"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "projects", "b", "rag.txt"), []byte("RAG service"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.txt"), []byte("   "), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{0x89, 0x50}, 0o600))

	files, err := WalkDirectory(root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "projects__b__rag.txt", files[0].DocID)
	assert.Equal(t, "projects/b/rag.txt", files[0].Source)
	assert.Equal(t, "resume.md", files[1].DocID)

	missing, err := WalkDirectory(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestURLPolicy_Validate(t *testing.T) {
	ctx := context.Background()
	policy := URLPolicy{
		BlockedHosts: []string{"localhost", "127.0.0.1", "0.0.0.0"},
		Resolver: staticResolver{
			"example.com":  {netip.MustParseAddr("93.184.216.34")},
			"intranet.lan": {netip.MustParseAddr("10.0.0.8")},
		},
	}

	cases := []struct {
		url     string
		wantErr string
	}{
		{"https://example.com/a.md", ""},
		{"ftp://example.com/a.md", "Only http/https links are supported."},
		{"https:///a.md", "URL is missing host."},
		{"http://localhost:8080/x", "Host is blocked."},
		{"http://intranet.lan/x", "Private or local network hosts are blocked."},
		{"http://169.254.169.254/latest", "Private or local network hosts are blocked."},
		{"http://[::1]/x", "Private or local network hosts are blocked."},
	}
	for _, tc := range cases {
		err := policy.Validate(ctx, tc.url)
		if tc.wantErr == "" {
			assert.NoError(t, err, tc.url)
			continue
		}
		require.Error(t, err, tc.url)
		appErr := apperrors.AsAppError(err)
		assert.Equal(t, apperrors.CodeURLRejected, appErr.Code, tc.url)
		assert.Equal(t, tc.wantErr, appErr.Message, tc.url)
	}

	allow := policy
	allow.AllowedHosts = []string{"docs.example.org"}
	err := allow.Validate(ctx, "https://example.com/a.md")
	assert.Equal(t, "Host not in allowlist.", apperrors.AsAppError(err).Message)

	// 黑名单优先于白名单
	allow.AllowedHosts = []string{"localhost"}
	err = allow.Validate(ctx, "http://localhost/x")
	assert.Equal(t, "Host is blocked.", apperrors.AsAppError(err).Message)
}

func TestInferFilename(t *testing.T) {
	u := func(s string) *url.URL {
		parsed, err := url.Parse(s)
		require.NoError(t, err)
		return parsed
	}
	assert.Equal(t, "notes.md", InferFilename(u("https://x.io/a/notes.md"), "text/plain"))
	assert.Equal(t, "paper.pdf", InferFilename(u("https://x.io/paper"), "application/pdf"))
	assert.Equal(t, "readme.md", InferFilename(u("https://x.io/readme"), "text/markdown"))
	assert.Equal(t, "document.txt", InferFilename(u("https://x.io/"), ""))
	assert.Equal(t, "index.html.txt", InferFilename(u("https://x.io/index.html"), "text/html"))
}

func TestHTMLToTextAndLooksLikeText(t *testing.T) {
	html := "<html><head><style>p{color:red}</style><SCRIPT>alert(1)</SCRIPT></head>" +
		"<body><h1>Hello</h1>\n<p>world  again</p></body></html>"
	assert.Equal(t, "Hello world again", HTMLToText(html))

	assert.True(t, LooksLikeText([]byte("plain ascii text\n")))
	assert.False(t, LooksLikeText([]byte("abc\x00def")))
	assert.False(t, LooksLikeText(nil))
	assert.False(t, LooksLikeText([]byte{0x80, 0x81, 0x82, 'a'}))
}

func newTestFetcher(maxBytes int64) *Fetcher {
	return NewFetcher(URLPolicy{AllowPrivateIPs: true}, 5*time.Second, maxBytes)
}

func TestFetcher_FetchLinkText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<p>Built a <b>RAG</b> API</p><script>x()</script>"))
	})
	mux.HandleFunc("/notes.md", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("# Notes\nGo services"))
	})
	mux.HandleFunc("/denied", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 200)))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	})
	mux.HandleFunc("/blank", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("   "))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	f := newTestFetcher(128)

	name, text, err := f.FetchLinkText(ctx, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "page.txt", name)
	assert.Equal(t, "Built a RAG API", text)

	name, text, err = f.FetchLinkText(ctx, srv.URL+"/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "notes.md", name)
	assert.Equal(t, "# Notes\nGo services", text)

	_, _, err = f.FetchLinkText(ctx, srv.URL+"/denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Source denied automated fetch (HTTP 403)")

	_, _, err = f.FetchLinkText(ctx, srv.URL+"/missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeFetchFailed))

	_, _, err = f.FetchLinkText(ctx, srv.URL+"/big")
	require.Error(t, err)
	assert.Equal(t, "Fetched content too large. Limit is 128 bytes.", apperrors.AsAppError(err).Message)

	_, _, err = f.FetchLinkText(ctx, srv.URL+"/image")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnsupportedContentType))

	_, _, err = f.FetchLinkText(ctx, srv.URL+"/blank")
	require.Error(t, err)
	assert.Equal(t, "No extractable text from link.", apperrors.AsAppError(err).Message)
}

func TestFetcher_RevalidatesRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer target.Close()
	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, strings.Replace(target.URL, "127.0.0.1", "localhost", 1), http.StatusFound)
	}))
	defer redirector.Close()

	f := NewFetcher(URLPolicy{AllowPrivateIPs: true, BlockedHosts: []string{"localhost"}}, 5*time.Second, 1024)
	_, _, err := f.FetchLinkText(context.Background(), redirector.URL)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeURLRejected))
}

func TestFetcher_FilenameFromRequestedURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/guide.md", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/blob-7f3a", http.StatusFound)
	})
	mux.HandleFunc("/cdn/blob-7f3a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Guide body"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	name, text, err := newTestFetcher(1024).FetchLinkText(context.Background(), srv.URL+"/docs/guide.md")
	require.NoError(t, err)
	assert.Equal(t, "guide.md", name)
	assert.Equal(t, "Guide body", text)
}
