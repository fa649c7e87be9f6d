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

// Package badge projects a verification outcome onto the badge shown to
// readers: a header that is either affirmative or negative, and a details
// panel listing the record and any failure reasons.
package badge

import (
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sanitize"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/verify"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const (
	LabelPending  = "Verifying..."
	LabelVerified = "Verified Content"
	LabelFailed   = "Verification Failed"
)

const svgOpen = `<svg xmlns="http://www.w3.org/2000/svg" fill="none" stroke-width="2" stroke-linecap="round" stroke-linejoin="round" stroke="currentColor" viewBox="0 0 24 24">`

var icons = map[verify.State]template.HTML{
	verify.Unverified: template.HTML(svgOpen + `<circle cx="12" cy="12" r="9"/><path d="M12 7v5l3 3"/></svg>`),
	verify.Verifying:  template.HTML(svgOpen + `<circle cx="12" cy="12" r="9"/><path d="M12 7v5l3 3"/></svg>`),
	verify.Verified:   template.HTML(svgOpen + `<path d="M20 6L9 17l-5-5"/></svg>`),
	verify.Failed:     template.HTML(svgOpen + `<path d="M18 6L6 18M6 6l12 12"/></svg>`),
}

var tmpl = template.Must(template.New("badge").Parse(`
<div class="verification-badge {{.Class}}" data-provenance-ui>
<div class="verification-header">{{.Icon}}<span class="verification-label">{{.Label}}</span></div>
<button type="button" class="toggle-details" data-action="toggle-details"><span class="toggle-text">Show details</span></button>
<div id="verification-metadata">
{{- range .Errors}}
<div class="verification-error"><strong>Error:</strong> {{.}}</div>
{{- end}}
{{- with .Record}}
<div class="verification-field"><strong>URL:</strong> <span class="field-value" data-copy>{{.URL}}</span></div>
<div class="verification-field"><strong>Fetched:</strong> <span class="field-value">{{$.Fetched}}</span></div>
<div class="verification-field"><strong>Content hash:</strong> <span class="field-value" data-copy>{{.ContentHash}}</span></div>
<div class="verification-field"><strong>Signature token:</strong> <span class="field-value token" data-copy>{{.SignatureToken}}</span></div>
{{- if .PublicKey}}
<div class="verification-field"><strong>Public key:</strong> <span class="field-value" data-copy>{{.PublicKey}}</span></div>
{{- end}}
{{- end}}
</div>
</div>
`))

// Badge is safe for concurrent use. Render may be called any number of times.
type Badge struct {
	mu     sync.Mutex
	state  verify.State
	reason string
	errors []string
	record *wire.Record
}

type Option func(*Badge)

// WithRecord shows rec in the details panel.
func WithRecord(rec wire.Record) Option {
	return func(b *Badge) { b.record = &rec }
}

func New(opts ...Option) *Badge {
	b := &Badge{state: verify.Verifying}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Render applies a terminal outcome. Rendering the same outcome again is a
// no-op; outcomes that are not terminal are ignored.
func (b *Badge) Render(out verify.Outcome) {
	if !out.State.Terminal() {
		return
	}
	reason := sanitize.Text(out.Reason)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == out.State && b.reason == reason {
		return
	}
	b.state, b.reason = out.State, reason
	if out.Record != nil && b.record == nil {
		rec := *out.Record
		b.record = &rec
	}
	if out.State == verify.Failed {
		for _, e := range b.errors {
			if e == reason {
				return
			}
		}
		// newest first
		b.errors = append([]string{reason}, b.errors...)
	}
}

func (b *Badge) State() verify.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Details returns the failure reasons shown in the details panel, newest first.
func (b *Badge) Details() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

type model struct {
	Class   string
	Label   string
	Icon    template.HTML
	Errors  []string
	Record  *wire.Record
	Fetched string
}

func (b *Badge) model() model {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := model{
		Class:  b.state.String(),
		Label:  label(b.state),
		Icon:   icons[b.state],
		Errors: append([]string(nil), b.errors...),
		Record: b.record,
	}
	if b.record != nil {
		m.Fetched = time.UnixMilli(b.record.Timestamp).UTC().Format(time.RFC1123)
	}
	return m
}

// HTML renders the badge element. Every element it produces is inside a
// single root marked data-provenance-ui.
func (b *Badge) HTML() template.HTML {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, b.model()); err != nil {
		return template.HTML(`<div class="verification-badge failed" data-provenance-ui>` +
			template.HTMLEscapeString(b.Text()) + `</div>`)
	}
	return template.HTML(strings.TrimSpace(sb.String()))
}

// Text renders the badge as one terminal line.
func (b *Badge) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case verify.Verified:
		return "✅ " + LabelVerified + ": " + b.reason
	case verify.Failed:
		return "❌ " + LabelFailed + ": " + b.reason
	default:
		return "⏳ " + LabelPending
	}
}

func label(s verify.State) string {
	switch s {
	case verify.Verified:
		return LabelVerified
	case verify.Failed:
		return LabelFailed
	default:
		return LabelPending
	}
}
