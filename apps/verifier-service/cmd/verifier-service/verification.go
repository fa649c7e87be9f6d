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

package main

import (
	"context"
	"errors"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sanitize"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/verify"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/view"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

// VerificationResponse is the JSON answer of POST /verify.
type VerificationResponse struct {
	Verified       bool           `json:"verified"`
	Outcome        verify.Outcome `json:"outcome"`
	Algorithm      string         `json:"algorithm,omitempty"`
	Signature      string         `json:"signature"`
	SignatureError string         `json:"signatureError,omitempty"`
	Preview        string         `json:"preview,omitempty"`
}

type verifier struct {
	keys   sign.KeySet
	now    func() time.Time
	logger log.Logger
}

// processPageVerification verifies a submitted page. A non-empty record
// header selects raw mode; otherwise body is a rendered HTML page.
func (v *verifier) processPageVerification(ctx context.Context, body []byte, recordHeader string, preview bool) VerificationResponse {
	var page verify.Page = verify.HTMLPage{Source: string(body)}
	if recordHeader != "" {
		page = verify.RawPage{Header: recordHeader, Body: body}
	}
	outcome := verify.New(verify.WithClock(v.now)).Run(ctx, page)

	resp := VerificationResponse{Outcome: outcome, Signature: "unchecked"}
	if outcome.Token != nil {
		resp.Algorithm = outcome.Token.Header.Alg.String()
		err := sign.Verify(*outcome.Token, v.keys)
		switch {
		case err == nil && !outcome.Token.Header.Alg.Authenticated():
			resp.Signature = "unauthenticated"
		case err == nil:
			resp.Signature = "valid"
		case errors.Is(err, sign.ErrKeyMissing):
		default:
			resp.Signature = "invalid"
			resp.SignatureError = err.Error()
		}
	}
	resp.Verified = outcome.Verified && resp.Signature != "invalid"

	if preview && recordHeader == "" {
		if c, err := view.Canonical(string(body), view.DefaultDenyList); err == nil && c.Mode == view.ModeHTML {
			resp.Preview = sanitize.Fragment([]byte(c.Content))
		}
	}
	return resp
}

func recordHeader(h interface{ Get(string) string }) string {
	return h.Get(wire.HeaderSignatureWebhook)
}
