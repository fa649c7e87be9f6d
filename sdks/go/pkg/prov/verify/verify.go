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

// Package verify re-derives the content hash of a delivered page and checks
// it against the page's provenance record. It does not check signatures; see
// sign.Verify for that.
package verify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/view"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const (
	ReasonNoData       = "No verification data found"
	ReasonBadRecord    = "Invalid token format"
	ReasonBadToken     = "Invalid signature token format"
	ReasonVerified     = "Content verified successfully"
	reasonFailedPrefix = "Verification failed: "
	reasonErrorPrefix  = "Error during verification: "

	ClauseURL     = "URL mismatch."
	ClauseContent = "Content hash mismatch."
	ClauseExpired = "Signature expired."
)

type State int

const (
	Unverified State = iota
	Verifying
	Verified
	Failed
)

var stateNames = [...]string{"unverified", "verifying", "verified", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("verify: unknown state %q", b)
}

// Terminal reports whether s ends a verification pass.
func (s State) Terminal() bool { return s == Verified || s == Failed }

// Outcome is the result of one verification pass. Verified is true only
// when all three predicates hold.
type Outcome struct {
	URLMatches     bool         `json:"urlMatches"`
	ContentMatches bool         `json:"contentMatches"`
	NotExpired     bool         `json:"notExpired"`
	Verified       bool         `json:"verified"`
	State          State        `json:"state"`
	Reason         string       `json:"reason"`
	Record         *wire.Record `json:"record,omitempty"`
	Token          *wire.Token  `json:"-"`
}

// Page is a delivered page as seen by the verifier.
type Page interface {
	// Metadata returns the JSON provenance record, if the page carries one.
	Metadata() (string, bool)
	// Content returns the bytes the record's hash should cover.
	Content(deny view.DenyList) (string, error)
}

// HTMLPage is a page rendered by the proxy in browser mode.
type HTMLPage struct {
	Source string
}

func (p HTMLPage) Metadata() (string, bool) { return view.Metadata(p.Source) }

func (p HTMLPage) Content(deny view.DenyList) (string, error) {
	v, err := view.Canonical(p.Source, deny)
	if err != nil {
		return "", err
	}
	return v.Content, nil
}

// RawPage is a raw-mode response: the record travels in the
// X-Signature-Webhook header and the body is the upstream content unchanged.
type RawPage struct {
	Header string
	Body   []byte
}

func (p RawPage) Metadata() (string, bool) {
	return p.Header, strings.TrimSpace(p.Header) != ""
}

func (p RawPage) Content(view.DenyList) (string, error) { return string(p.Body), nil }

// Verifier runs a single verification pass. The first call to Run decides
// the outcome; later calls return it unchanged.
type Verifier struct {
	now      func() time.Time
	deny     view.DenyList
	observer func(from, to State)

	once    sync.Once
	mu      sync.Mutex
	state   State
	outcome Outcome
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func WithDenyList(deny view.DenyList) Option {
	return func(v *Verifier) { v.deny = deny }
}

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(from, to State)) Option {
	return func(v *Verifier) { v.observer = fn }
}

func New(opts ...Option) *Verifier {
	v := &Verifier{now: time.Now, deny: view.DefaultDenyList}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State returns the current state.
func (v *Verifier) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Run verifies p. It never panics; every failure is reported as a Failed outcome.
func (v *Verifier) Run(ctx context.Context, p Page) Outcome {
	v.once.Do(func() {
		v.transition(Verifying)
		out := v.run(ctx, p)
		v.outcome = out
		v.transition(out.State)
	})
	return v.outcome
}

func (v *Verifier) transition(to State) {
	v.mu.Lock()
	from := v.state
	v.state = to
	v.mu.Unlock()
	if v.observer != nil && from != to {
		v.observer(from, to)
	}
}

func (v *Verifier) run(ctx context.Context, p Page) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = errored(fmt.Errorf("%v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return errored(err)
	}

	meta, ok := p.Metadata()
	if !ok || strings.TrimSpace(meta) == "" {
		return failed(ReasonNoData)
	}
	rec, err := wire.DecodeRecord(meta)
	if err != nil {
		return failed(ReasonBadRecord)
	}
	out.Record = &rec
	tok, err := wire.ParseToken(rec.SignatureToken)
	if err != nil {
		out.State, out.Reason = Failed, ReasonBadToken
		return out
	}
	out.Token = &tok

	content, err := p.Content(v.deny)
	if err != nil {
		return errored(err)
	}
	recomputed := crypto.HashContent(content)

	out.URLMatches = rec.URL == tok.Claims.URL
	out.ContentMatches = rec.ContentHash == recomputed && tok.Claims.ContentHash == recomputed
	out.NotExpired = tok.Claims.ExpiresAt > v.now().Unix()
	out.Verified = out.URLMatches && out.ContentMatches && out.NotExpired

	if out.Verified {
		out.State, out.Reason = Verified, ReasonVerified
		return out
	}
	var clauses []string
	if !out.URLMatches {
		clauses = append(clauses, ClauseURL)
	}
	if !out.ContentMatches {
		clauses = append(clauses, ClauseContent)
	}
	if !out.NotExpired {
		clauses = append(clauses, ClauseExpired)
	}
	out.State = Failed
	out.Reason = reasonFailedPrefix + strings.Join(clauses, " ")
	return out
}

func failed(reason string) Outcome {
	return Outcome{State: Failed, Reason: reason}
}

func errored(err error) Outcome {
	return failed(reasonErrorPrefix + err.Error())
}
