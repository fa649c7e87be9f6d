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

// Package page assembles what a browser receives: the upstream document with
// verification UI spliced in, or non-HTML content inside the viewer page.
// Every injected element carries data-provenance-ui so that the canonical
// view of the result is exactly the upstream content.
package page

import (
	"html/template"
	"strings"

	"golang.org/x/net/html"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/badge"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const (
	StylesPath = "/verification/styles.css"
	ScriptPath = "/verification/script.js"
)

var (
	headTmpl = template.Must(template.New("head").Parse(
		`<meta name="x-signature-webhook" content="{{.Record}}" data-provenance-ui>` +
			`<link rel="stylesheet" href="{{.Styles}}" data-provenance-ui>`))

	scriptTmpl = template.Must(template.New("script").Parse(
		`<script src="{{.Script}}" data-provenance-ui></script>`))

	copyButton = template.HTML(`<div class="copy-btn-container" data-provenance-ui>` +
		`<button type="button" class="copy-btn" data-action="copy-content">Copy content</button></div>`)

	wrapperTmpl = template.Must(template.New("wrapper").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{.Head}}
</head>
<body>
{{- if .ShowUI}}
{{.Badge}}
{{- end}}
<div class="content"><pre data-provenance-content data-provenance-ui>
{{.Content}}</pre></div>
{{- if .ShowUI}}
{{.Script}}
{{- end}}
</body>
</html>
`))
)

// Data is the provenance carried by a page.
type Data struct {
	Record     wire.Record
	RecordJSON string
}

func (d Data) head() (template.HTML, error) {
	return execute(headTmpl, map[string]string{"Record": d.RecordJSON, "Styles": StylesPath})
}

func (d Data) body() template.HTML {
	return badge.New(badge.WithRecord(d.Record)).HTML() + copyButton
}

func script() (template.HTML, error) {
	return execute(scriptTmpl, map[string]string{"Script": ScriptPath})
}

// IsHTML reports whether content looks like an HTML document.
func IsHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<!doctype html") || strings.Contains(lower, "<html")
}

type insertion struct {
	at   int
	text string
}

// Inject splices the verification UI into an upstream HTML document. The
// meta tag and stylesheet go into the head, which is created when missing.
// With showUI the badge and copy button follow the body start tag and the
// script precedes the body end tag. Non-HTML content is returned unchanged.
func Inject(content string, d Data, showUI bool) (string, error) {
	if !IsHTML(content) {
		return content, nil
	}
	head, err := d.head()
	if err != nil {
		return "", err
	}
	marks := locate(content)

	var ins []insertion
	switch {
	case marks.headEnd >= 0:
		ins = append(ins, insertion{marks.headEnd, string(head)})
	case marks.headStart >= 0:
		ins = append(ins, insertion{marks.headStart, string(head)})
	case marks.htmlStart >= 0:
		ins = append(ins, insertion{marks.htmlStart, `<head data-provenance-ui>` + string(head) + `</head>`})
	default:
		ins = append(ins, insertion{marks.doctypeEnd, `<head data-provenance-ui>` + string(head) + `</head>`})
	}

	if showUI {
		if marks.bodyStart >= 0 {
			ins = append(ins, insertion{marks.bodyStart, string(d.body())})
		}
		if marks.bodyEnd >= 0 {
			s, err := script()
			if err != nil {
				return "", err
			}
			ins = append(ins, insertion{marks.bodyEnd, string(s)})
		}
	}
	return splice(content, ins), nil
}

// Wrap renders non-HTML content inside the viewer page.
func Wrap(content, title string, d Data, showUI bool) (string, error) {
	head, err := d.head()
	if err != nil {
		return "", err
	}
	s, err := script()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	err = wrapperTmpl.Execute(&sb, map[string]any{
		"Title":      title,
		"Head":       head,
		"ShowUI":     showUI,
		"Badge":      d.body(),
		"Content":    template.HTML(escapeText(content)),
		"Script":     s,
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#13;")

// escapeText escapes content so that the text the HTML parser recovers from
// a <pre> is byte-identical to content. Carriage returns are written as
// character references because the parser normalizes literal ones.
func escapeText(content string) string {
	return textEscaper.Replace(content)
}

func execute(t *template.Template, data any) (template.HTML, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return template.HTML(sb.String()), nil
}

// marks are byte offsets into the upstream document; -1 when absent.
type marks struct {
	doctypeEnd int
	htmlStart  int
	headStart  int
	headEnd    int
	bodyStart  int
	bodyEnd    int
}

// locate finds insertion points with the tokenizer, so tags inside comments,
// scripts and attribute values are never matched.
func locate(content string) marks {
	m := marks{doctypeEnd: 0, htmlStart: -1, headStart: -1, headEnd: -1, bodyStart: -1, bodyEnd: -1}
	z := html.NewTokenizer(strings.NewReader(content))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return m
		}
		start := offset
		offset += len(z.Raw())
		name, _ := z.TagName()
		tag := string(name)

		switch tt {
		case html.DoctypeToken:
			m.doctypeEnd = offset
		case html.StartTagToken:
			switch {
			case tag == "html" && m.htmlStart < 0:
				m.htmlStart = offset
			case tag == "head" && m.headStart < 0:
				m.headStart = offset
			case tag == "body" && m.bodyStart < 0:
				m.bodyStart = offset
			}
		case html.EndTagToken:
			switch {
			case tag == "head" && m.headEnd < 0:
				m.headEnd = start
			case tag == "body":
				m.bodyEnd = start
			}
		}
	}
}

// splice applies insertions to s. Insertions at the same offset keep their order.
func splice(s string, ins []insertion) string {
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for len(ins) > 0 {
		next := 0
		for i := range ins {
			if ins[i].at < ins[next].at {
				next = i
			}
		}
		at := ins[next].at
		b.WriteString(s[last:at])
		b.WriteString(ins[next].text)
		last = at
		ins = append(ins[:next], ins[next+1:]...)
	}
	b.WriteString(s[last:])
	return b.String()
}
