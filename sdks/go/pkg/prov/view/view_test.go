package view

import (
	"html"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstream = "<!DOCTYPE html>\n<HTML lang=\"en\"><head><title>T</title></head>\n<Body class=\"x\">\n<p>Hello <b>world</b> &amp; friends</p>\r\n<img src=a.png>\n</body></html>\n"

func TestCanonical_StripsInjectedUI(t *testing.T) {
	injected := "<!DOCTYPE html>\n<HTML lang=\"en\"><head><title>T</title>" +
		`<meta name="x-signature-webhook" content="{&#34;url&#34;:&#34;u&#34;}" data-provenance-ui>` +
		`<link rel="stylesheet" href="/verification/styles.css" data-provenance-ui>` +
		"</head>\n<Body class=\"x\">" +
		`<div class="verification-badge" data-provenance-ui><div class="verification-header"><svg><path d="M1"/></svg>Verifying</div><br><div id="verification-metadata"><span>token</span></div></div>` +
		`<div class="copy-btn-container" data-provenance-ui><button>Copy</button></div>` +
		"\n<p>Hello <b>world</b> &amp; friends</p>\r\n<img src=a.png>\n" +
		`<script src="/verification/script.js" data-provenance-ui></script>` +
		"</body></html>\n"

	v, err := Canonical(injected, DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, ModeHTML, v.Mode)
	assert.Equal(t, upstream, v.Content)
}

func TestCanonical_UnmodifiedPage(t *testing.T) {
	v, err := Canonical(upstream, DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, upstream, v.Content)
}

func TestCanonical_ClassesWithoutMarker(t *testing.T) {
	page := `<body><p>a</p><div class="highlight-toolbar shown"><button class="highlight-btn">H</button></div>` +
		`<div class="highlight-share-modal"><input value="x"><div><h3>Share</h3></div></div><p>b</p></body>`
	v, err := Canonical(page, DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, `<body><p>a</p><p>b</p></body>`, v.Content)
}

func TestCanonical_CustomDenyList(t *testing.T) {
	page := `<div class="ad">x</div><div class="verification-badge">y</div>`

	v, err := Canonical(page, DenyList{Classes: []string{"ad"}})
	require.NoError(t, err)
	assert.Equal(t, `<div class="verification-badge">y</div>`, v.Content)

	v, err = Canonical(page, DenyList{})
	require.NoError(t, err)
	assert.Equal(t, page, v.Content)
}

func TestCanonical_WrappedContent(t *testing.T) {
	content := "# Title\n\nSome <tags> & \"quotes\" 'single'\r\nline two\n"
	escaped := html.EscapeString(content)
	page := `<html><head><meta name="x-signature-webhook" content="{}"></head><body>` +
		`<div class="verification-badge" data-provenance-ui>b</div>` +
		"<div class=\"content\"><pre data-provenance-content data-provenance-ui>\n" + escapeCR(escaped) + "</pre></div></body></html>"

	v, err := Canonical(page, DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, ModeWrapped, v.Mode)
	assert.Equal(t, content, v.Content)
}

func TestCanonical_ContentMarkerNeedsUIAttr(t *testing.T) {
	page := "<html><body><pre data-provenance-content>upstream</pre><p>more</p></body></html>"
	v, err := Canonical(page, DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, ModeHTML, v.Mode)
	assert.Equal(t, page, v.Content)
}

func TestCanonical_WrappedLeadingNewline(t *testing.T) {
	page := "<pre data-provenance-content data-provenance-ui>\n\nstarts with newline</pre>"
	v, err := Canonical(page, DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, "\nstarts with newline", v.Content)
}

func TestCanonical_WrappedEmpty(t *testing.T) {
	v, err := Canonical("<pre data-provenance-content data-provenance-ui>\n</pre>", DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, ModeWrapped, v.Mode)
	assert.Equal(t, "", v.Content)
}

func TestCanonical_Empty(t *testing.T) {
	v, err := Canonical("", DefaultDenyList)
	require.NoError(t, err)
	assert.Equal(t, "", v.Content)
}

func TestMetadata(t *testing.T) {
	record := `{"url":"https://example.com/?a=1&b=<2>","signatureToken":"a.b.c"}`
	page := `<html><head><meta charset="utf-8"><meta name="x-signature-webhook" content="` + html.EscapeString(record) + `"></head></html>`

	got, ok := Metadata(page)
	require.True(t, ok)
	assert.Equal(t, record, got)

	_, ok = Metadata(`<html><head><meta name="other" content="x"></head></html>`)
	assert.False(t, ok)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "html", ModeHTML.String())
	assert.Equal(t, "wrapped", ModeWrapped.String())
}

func escapeCR(s string) string {
	out := ""
	for _, r := range s {
		if r == '\r' {
			out += "&#13;"
			continue
		}
		out += string(r)
	}
	return out
}
