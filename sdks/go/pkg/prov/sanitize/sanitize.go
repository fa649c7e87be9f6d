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

// Package sanitize cleans strings taken from untrusted pages before they are
// displayed by the verification badge or the verifier service.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()
	ugc    = newUGC()
)

func newUGC() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("hidden").OnElements("a")
	return p
}

// Text strips all markup from s and returns plain text, suitable for an
// autoescaping template.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Fragment sanitizes an HTML fragment for preview, removing scripts, event
// handlers and javascript URLs while keeping ordinary formatting.
func Fragment(b []byte) string {
	return string(ugc.SanitizeBytes(b))
}
