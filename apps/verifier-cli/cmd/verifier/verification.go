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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/verify"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const (
	rawUserAgent     = "provenance-verifier/1.0"
	browserUserAgent = "Mozilla/5.0 (compatible; provenance-verifier/1.0)"
	maxBodyBytes     = 10 << 20
)

// Signature check results.
const (
	SigValid           = "valid"
	SigInvalid         = "invalid"
	SigUnchecked       = "unchecked"
	SigUnauthenticated = "unauthenticated"
)

type VerificationResult struct {
	Verified       bool                 `json:"verified"`
	Outcome        verify.Outcome       `json:"outcome"`
	Signature      string               `json:"signature"`
	SignatureError string               `json:"signatureError,omitempty"`
	Algorithm      string               `json:"algorithm,omitempty"`
	Context        *VerificationContext `json:"context,omitempty"`
}

type VerificationContext struct {
	URL         string `json:"url"`
	Mode        string `json:"mode"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	VerifiedAt  int64  `json:"verifiedAt"`
}

type VerificationOptions struct {
	Timeout   time.Duration
	Raw       bool
	PublicKey string
	HMACKey   string
	Now       func() time.Time
	Client    *http.Client
}

// VerifyURL fetches a proxied page and runs the same checks the browser
// script runs. When key material is supplied the token signature is checked
// as well; a bad signature fails verification.
func VerifyURL(ctx context.Context, pageURL string, opts VerificationOptions) (*VerificationResult, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", pageURL)
	}
	mode, ua := "page", browserUserAgent
	if opts.Raw {
		mode, ua = "raw", rawUserAgent
		q := u.Query()
		q.Set("raw", "")
		u.RawQuery = q.Encode()
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ua)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: %s: %s", resp.Status, body)
	}

	var page verify.Page = verify.HTMLPage{Source: string(body)}
	if opts.Raw {
		page = verify.RawPage{Header: resp.Header.Get(wire.HeaderSignatureWebhook), Body: body}
	}
	outcome := verify.New(verify.WithClock(now)).Run(ctx, page)

	result := &VerificationResult{
		Outcome:   outcome,
		Signature: SigUnchecked,
		Context: &VerificationContext{
			URL:         u.String(),
			Mode:        mode,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			VerifiedAt:  now().Unix(),
		},
	}
	if outcome.Token != nil {
		result.Algorithm = outcome.Token.Header.Alg.String()
		result.Signature, result.SignatureError = checkSignature(*outcome.Token, sign.KeySet{
			PublicKey: opts.PublicKey,
			HMACKey:   opts.HMACKey,
		})
	}
	result.Verified = outcome.Verified && result.Signature != SigInvalid
	return result, nil
}

func checkSignature(tok wire.Token, keys sign.KeySet) (string, string) {
	err := sign.Verify(tok, keys)
	switch {
	case err == nil && !tok.Header.Alg.Authenticated():
		return SigUnauthenticated, ""
	case err == nil:
		return SigValid, ""
	case errors.Is(err, sign.ErrKeyMissing):
		return SigUnchecked, ""
	default:
		return SigInvalid, err.Error()
	}
}
