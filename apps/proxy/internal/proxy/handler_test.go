package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonebraker/provenance/apps/proxy/internal/reader"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/issue"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/verify"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type fakeFetcher struct {
	res reader.Result
	err error
	got []string
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) (reader.Result, error) {
	f.got = append(f.got, target)
	return f.res, f.err
}

func (f *fakeFetcher) URL(target string) string { return "https://r.jina.ai/" + target }

var fetchedAt = time.Now().Add(-time.Second).Truncate(time.Millisecond)

func markdown(content string) reader.Result {
	return reader.Result{Content: content, ContentType: "text/markdown; charset=utf-8", Status: 200, FetchedAt: fetchedAt}
}

func newServer(f *fakeFetcher, opts ...Option) http.Handler {
	iss := issue.New(sign.New(sign.PlaceholderPrivateKey), "")
	return New(f, iss, opts...).Router(log.Discard)
}

func get(t *testing.T, h http.Handler, path, ua string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProxy_RawMode(t *testing.T) {
	f := &fakeFetcher{res: markdown("# Title\n\nbody\n")}
	rec := get(t, newServer(f), "/https://example.com/a", "curl/8.0")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://example.com/a"}, f.got)
	assert.Equal(t, "# Title\n\nbody\n", rec.Body.String())
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Jina-Style-Proxy", rec.Header().Get("X-Proxy-By"))
	assert.Equal(t, "HS256", rec.Header().Get(wire.HeaderSignatureAlgorithm))
	assert.Empty(t, rec.Header().Get(wire.HeaderPublicKey))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	record, err := wire.DecodeRecord(rec.Header().Get(wire.HeaderSignatureWebhook))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", record.URL)
	assert.Equal(t, fetchedAt.UnixMilli(), record.Timestamp)
	assert.Equal(t, crypto.HashContent("# Title\n\nbody\n"), record.ContentHash)
	assert.Equal(t, record.SignatureToken, rec.Header().Get(wire.HeaderSignatureToken))

	out := verify.New().Run(context.Background(), verify.RawPage{
		Header: rec.Header().Get(wire.HeaderSignatureWebhook),
		Body:   rec.Body.Bytes(),
	})
	assert.True(t, out.Verified, out.Reason)
}

func TestProxy_BrowserRawFlag(t *testing.T) {
	f := &fakeFetcher{res: markdown("plain")}
	rec := get(t, newServer(f), "/proxy/https://example.com?raw", browserUA)
	assert.Equal(t, "plain", rec.Body.String())
	assert.Equal(t, []string{"https://example.com"}, f.got)
}

func TestProxy_BrowserWrapped(t *testing.T) {
	content := "# Notes\r\n<b>not html</b> & more\n"
	f := &fakeFetcher{res: markdown(content)}
	rec := get(t, newServer(f), "/proxy/https://example.com/notes", browserUA)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "data-provenance-content")
	assert.Contains(t, rec.Body.String(), "verification-badge")

	out := verify.New().Run(context.Background(), verify.HTMLPage{Source: rec.Body.String()})
	assert.True(t, out.Verified, out.Reason)
}

func TestProxy_BrowserHTML(t *testing.T) {
	doc := "<!DOCTYPE html>\n<html><head><title>T</title></head><body><p>Hi</p></body></html>"
	f := &fakeFetcher{res: reader.Result{Content: doc, ContentType: "text/html; charset=utf-8", Status: 200, FetchedAt: fetchedAt}}
	rec := get(t, newServer(f), "/https://example.com", browserUA)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "/verification/script.js")
	assert.Contains(t, body, "verification-badge")

	out := verify.New().Run(context.Background(), verify.HTMLPage{Source: body})
	assert.True(t, out.Verified, out.Reason)

	rec = get(t, newServer(f), "/https://example.com?noui", browserUA)
	assert.NotContains(t, rec.Body.String(), "verification-badge")
	out = verify.New().Run(context.Background(), verify.HTMLPage{Source: rec.Body.String()})
	assert.True(t, out.Verified, out.Reason)
}

func TestProxy_URLHandling(t *testing.T) {
	tests := []struct {
		name, path, want string
	}{
		{"collapsed slash", "/https:/example.com/x", "https://example.com/x"},
		{"http", "/proxy/http:/example.com", "http://example.com"},
		{"reserved params dropped", "/https://example.com/s?raw&highlight=word", "https://example.com/s"},
		{"other params forwarded", "/https://example.com/s?q=go&raw", "https://example.com/s?q=go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{res: markdown("x")}
			rec := get(t, newServer(f), tt.path, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.want}, f.got)
		})
	}
}

func TestProxy_BadRequests(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/proxy", msgMissingURL},
		{"/proxy/", msgMissingURL},
		{"/ftp://example.com", msgInvalidURL},
		{"/not-a-url", msgInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := &fakeFetcher{res: markdown("x")}
			rec := get(t, newServer(f), tt.path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.want+`"}`, rec.Body.String())
			assert.Empty(t, f.got)
		})
	}
}

func TestProxy_UpstreamFailures(t *testing.T) {
	f := &fakeFetcher{err: &reader.UpstreamError{Status: http.StatusNotFound, StatusText: "Not Found"}}
	rec := get(t, newServer(f), "/https://example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch: 404 Not Found"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(wire.HeaderSignatureWebhook))

	f = &fakeFetcher{err: errors.New("dial tcp: connection refused")}
	rec = get(t, newServer(f), "/https://example.com", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to proxy the content", body.Error)
	assert.Contains(t, body.Details, "connection refused")
}

func TestProxy_PublicKeyHeader(t *testing.T) {
	f := &fakeFetcher{res: markdown("x")}
	rec := get(t, newServer(f, WithPublicKey("02abcdef"), WithProxyBy("test")), "/https://example.com", "")
	assert.Equal(t, "02abcdef", rec.Header().Get(wire.HeaderPublicKey))
	assert.Equal(t, "test", rec.Header().Get("X-Proxy-By"))
}

func TestRedirect(t *testing.T) {
	h := newServer(&fakeFetcher{})

	rec := get(t, h, "/api/proxy?url=https://example.com/a", "")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://r.jina.ai/https://example.com/a", rec.Header().Get("Location"))

	rec = get(t, h, "/api/proxy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"URL parameter is required"}`, rec.Body.String())

	rec = get(t, h, "/api/proxy?url=nope", "")
	assert.JSONEq(t, `{"error":"Invalid URL provided"}`, rec.Body.String())
}

func TestHealthAndAssets(t *testing.T) {
	h := newServer(&fakeFetcher{})

	rec := get(t, h, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	rec = get(t, h, "/verification/script.js", browserUA)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "x-signature-webhook")
}

func TestLanding(t *testing.T) {
	h := newServer(&fakeFetcher{})

	rec := get(t, h, "/", browserUA)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form")

	rec = get(t, h, "/?url=https://example.com", browserUA)
	assert.Contains(t, rec.Body.String(), `href="/proxy/https://example.com"`)
}

func TestIsBrowser(t *testing.T) {
	assert.True(t, isBrowser(browserUA))
	assert.True(t, isBrowser("Mozilla/5.0 (Windows NT 10.0; rv:109.0) Gecko/20100101 Firefox/115.0"))
	assert.False(t, isBrowser("curl/8.4.0"))
	assert.False(t, isBrowser(""))
}
