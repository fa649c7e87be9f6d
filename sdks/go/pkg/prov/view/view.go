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

// Package view derives the canonical content of a rendered provenance page:
// the exact content that was hashed at issuance, with every injected
// verification element removed. It works on markup alone, without a browser.
package view

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const (
	// UIAttr marks every element the proxy injects into a page.
	UIAttr = "data-provenance-ui"

	// ContentAttr marks the container that holds wrapped non-HTML content.
	ContentAttr = "data-provenance-content"
)

type Mode int

const (
	// ModeHTML is an upstream HTML document with verification UI injected.
	ModeHTML Mode = iota
	// ModeWrapped is non-HTML content shown inside the viewer page.
	ModeWrapped
)

func (m Mode) String() string {
	if m == ModeWrapped {
		return "wrapped"
	}
	return "html"
}

// DenyList names the elements excluded from the canonical view.
type DenyList struct {
	Classes    []string
	Attributes []string
	MetaNames  []string
}

// DefaultDenyList covers everything the proxy and the browser script add.
var DefaultDenyList = DenyList{
	Classes: []string{
		"verification-badge",
		"copy-btn-container",
		"highlight-toolbar",
		"highlight-share-modal",
	},
	Attributes: []string{UIAttr},
	MetaNames:  []string{wire.MetaName},
}

type View struct {
	Mode    Mode
	Content string
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Canonical computes the view of page. If an element carries both ContentAttr
// and UIAttr the view is that element's text content; otherwise it is page with all denied
// subtrees cut out, every other byte kept verbatim.
func Canonical(page string, deny DenyList) (View, error) {
	z := html.NewTokenizer(strings.NewReader(page))
	var out strings.Builder
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return View{Mode: ModeHTML, Content: out.String()}, nil
			}
			return View{}, z.Err()
		}
		// TagName lowercases the buffer in place, so copy before Token.
		raw := string(z.Raw())
		tok := z.Token()

		if skip > 0 {
			switch {
			case tt == html.StartTagToken && !voidElements[tok.Data]:
				skip++
			case tt == html.EndTagToken:
				skip--
			}
			continue
		}

		if tt == html.StartTagToken && hasAttr(tok, ContentAttr) && hasAttr(tok, UIAttr) {
			return View{Mode: ModeWrapped, Content: textContent(z, tok.Data)}, nil
		}

		if (tt == html.StartTagToken || tt == html.SelfClosingTagToken) && deny.denies(tok) {
			if tt == html.StartTagToken && !voidElements[tok.Data] {
				skip = 1
			}
			continue
		}
		out.WriteString(raw)
	}
}

// textContent collects the text of the subtree opened by the current token.
func textContent(z *html.Tokenizer, tag string) string {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		switch z.Next() {
		case html.ErrorToken:
			depth = 0
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				depth++
			}
		case html.EndTagToken:
			depth--
		}
	}
	s := b.String()
	// the HTML parser drops one newline directly after these start tags
	if tag == "pre" || tag == "textarea" || tag == "listing" {
		s = strings.TrimPrefix(s, "\n")
	}
	return s
}

// Metadata returns the content of the x-signature-webhook meta tag.
func Metadata(page string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(page))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" || !strings.EqualFold(attr(tok, "name"), wire.MetaName) {
				continue
			}
			for _, a := range tok.Attr {
				if a.Key == "content" {
					return a.Val, true
				}
			}
		}
	}
}

func (d DenyList) denies(tok html.Token) bool {
	for _, a := range d.Attributes {
		if hasAttr(tok, a) {
			return true
		}
	}
	if tok.Data == "meta" {
		name := attr(tok, "name")
		for _, m := range d.MetaNames {
			if strings.EqualFold(name, m) {
				return true
			}
		}
	}
	if len(d.Classes) == 0 {
		return false
	}
	for _, c := range strings.Fields(attr(tok, "class")) {
		for _, denied := range d.Classes {
			if c == denied {
				return true
			}
		}
	}
	return false
}

func hasAttr(tok html.Token, key string) bool {
	for _, a := range tok.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
