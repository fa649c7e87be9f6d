// Copyright 2025 Jason Stonebraker
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package proxy serves upstream pages with a provenance record attached.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stonebraker/provenance/apps/proxy/internal/httpx"
	"github.com/stonebraker/provenance/apps/proxy/internal/page"
	"github.com/stonebraker/provenance/apps/proxy/internal/reader"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/issue"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

// Fetcher is the upstream reader service.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (reader.Result, error)
	URL(target string) string
}

type Handler struct {
	fetcher   Fetcher
	issuer    *issue.Issuer
	publicKey string
	proxyBy   string
	now       func() time.Time
}

type Option func(*Handler)

// WithPublicKey sets the X-Public-Key header value.
func WithPublicKey(key string) Option {
	return func(h *Handler) { h.publicKey = key }
}

func WithProxyBy(name string) Option {
	return func(h *Handler) { h.proxyBy = name }
}

func New(fetcher Fetcher, issuer *issue.Issuer, opts ...Option) *Handler {
	h := &Handler{fetcher: fetcher, issuer: issuer, proxyBy: "Jina-Style-Proxy", now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the full route table with middleware installed.
func (h *Handler) Router(logger log.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestID)
	r.Use(httpx.Logging(logger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", h.landing)
	r.Get("/health", h.health)
	r.Get("/api/proxy", h.redirect)
	r.Mount("/verification", httpx.NewAssetRouter())
	r.Get("/proxy", h.proxy)
	r.Get("/proxy/*", h.proxy)
	r.Get("/*", h.proxy)
	return r
}

func (h *Handler) proxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.GetLogger(ctx)
	query := r.URL.Query()

	target, err := normalizeURL(chi.URLParam(r, "*"), query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	res, err := h.fetcher.Fetch(ctx, target)
	if err != nil {
		var upstream *reader.UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, upstream.Status, upstream.Error(), "")
			return
		}
		logger.Errorf("proxy error for %s: %v", target, err)
		writeError(w, http.StatusBadGateway, "Failed to proxy the content", err.Error())
		return
	}

	prov, err := h.issuer.Issue(ctx, target, res.FetchedAt, res.Content)
	if err != nil {
		logger.Errorf("issue provenance for %s: %v", target, err)
		writeError(w, http.StatusInternalServerError, "Failed to proxy the content", err.Error())
		return
	}
	recordJSON, err := prov.Header()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to proxy the content", err.Error())
		return
	}
	if prov.Tier > 1 {
		logger.Warnf("provenance for %s signed with %s (tier %d)", target, prov.Algorithm, prov.Tier)
	}

	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Cache-Control", "public, max-age=3600")
	hdr.Set("X-Proxy-By", h.proxyBy)
	hdr.Set(wire.HeaderSignatureWebhook, recordJSON)
	hdr.Set(wire.HeaderSignatureToken, prov.Record.SignatureToken)
	hdr.Set(wire.HeaderSignatureAlgorithm, prov.Algorithm.String())
	if h.publicKey != "" {
		hdr.Set(wire.HeaderPublicKey, h.publicKey)
	}

	if !isBrowser(r.UserAgent()) || query.Has("raw") {
		hdr.Set("Content-Type", res.ContentType)
		_, _ = w.Write([]byte(res.Content))
		return
	}

	data := page.Data{Record: prov.Record, RecordJSON: recordJSON}
	showUI := !query.Has("noui")
	var body string
	if strings.Contains(res.ContentType, "text/html") {
		body, err = page.Inject(res.Content, data, showUI)
		hdr.Set("Content-Type", res.ContentType)
	} else {
		body, err = page.Wrap(res.Content, target, data, showUI)
		hdr.Set("Content-Type", "text/html; charset=utf-8")
	}
	if err != nil {
		hdr.Del("Content-Type")
		writeError(w, http.StatusInternalServerError, "Failed to proxy the content", err.Error())
		return
	}
	_, _ = w.Write([]byte(body))
}

// redirect sends the client straight to the reader service.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "URL parameter is required", "")
		return
	}
	if _, err := validateURL(target, nil); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidURL, "")
		return
	}
	http.Redirect(w, r, h.fetcher.URL(target), http.StatusTemporaryRedirect)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "provenance-proxy",
		"timestamp": h.now().Unix(),
	})
}

var landingTmpl = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Reader Reverse Proxy</title>
<link rel="stylesheet" href="/verification/styles.css">
</head>
<body>
<div class="content">
<h1>Reader Reverse Proxy</h1>
<p>Fetch any page through the reader service with a signed provenance record.</p>
<form method="get" action="/">
<input type="url" name="url" placeholder="https://example.com" required>
<button type="submit">Generate Proxy URL</button>
</form>
{{with .ProxyURL}}<p>Your Proxy URL: <a href="{{.}}">{{.}}</a></p>{{end}}
</div>
</body>
</html>
`))

func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	data := struct{ ProxyURL string }{}
	if target := r.URL.Query().Get("url"); target != "" {
		if _, err := validateURL(target, nil); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidURL, "")
			return
		}
		data.ProxyURL = "/proxy/" + target
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTmpl.Execute(w, data); err != nil {
		log.GetLogger(r.Context()).Errorf("render landing page: %v", err)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

