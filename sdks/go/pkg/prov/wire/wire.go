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

// Package wire defines the provenance token, its claims and the record handed
// to clients, together with their encodings.
package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/canonical"
)

// Transport names shared by the proxy and the verifiers.
const (
	HeaderSignatureWebhook   = "X-Signature-Webhook"
	HeaderSignatureToken     = "X-Signature-Token"
	HeaderPublicKey          = "X-Public-Key"
	HeaderSignatureAlgorithm = "X-Signature-Algorithm"

	MetaName = "x-signature-webhook"

	TokenType = "JWT"
)

// ErrTokenFormat is wrapped by every ParseToken failure.
var ErrTokenFormat = errors.New("invalid signature token format")

// ErrRecordFormat is wrapped by every DecodeRecord failure.
var ErrRecordFormat = errors.New("invalid token format")

// Algorithm is the header tag naming the strategy that produced a signature.
type Algorithm string

const (
	AlgRS256  Algorithm = "RS256"
	AlgBIP340 Algorithm = "BIP340"
	AlgHS256  Algorithm = "HS256"
	// AlgDigest marks a keyless SHA-256 placeholder signature.
	AlgDigest Algorithm = "DIGEST-SHA256"
)

func (a Algorithm) String() string { return string(a) }

// Authenticated reports whether a signature with this tag is bound to key material.
func (a Algorithm) Authenticated() bool {
	return a != AlgDigest && a != ""
}

// Asymmetric reports whether the tag names a public key scheme.
func (a Algorithm) Asymmetric() bool {
	return a == AlgRS256 || a == AlgBIP340
}

type Header struct {
	Alg Algorithm `json:"alg"`
	Typ string    `json:"typ"`
}

// Claims is the signed payload. ExpiresAt is always greater than IssuedAt.
type Claims struct {
	URL         string `json:"url"`
	Timestamp   int64  `json:"timestamp"`
	ContentHash string `json:"contentHash"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
}

// Record is what the client receives, either as the X-Signature-Webhook header
// or as the x-signature-webhook meta tag.
type Record struct {
	URL            string `json:"url"`
	Timestamp      int64  `json:"timestamp"`
	ContentHash    string `json:"contentHash"`
	SignatureToken string `json:"signatureToken"`
	PublicKey      string `json:"publicKey,omitempty"`
}

// Token is a decoded three-segment token. SigningInput holds the exact
// "<header>.<claims>" bytes the signature was computed over.
type Token struct {
	Header       Header
	Claims       Claims
	Signature    []byte
	SigningInput string
	Raw          string
}

// EncodeSegment returns base64url(canonical JSON of v) without padding.
func EncodeSegment(v any) (string, error) {
	b, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeSegment decodes an unpadded base64url segment. Trailing padding is tolerated.
func DecodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}

// SigningInput encodes header and claims and joins them with a dot.
func SigningInput(h Header, c Claims) (string, error) {
	eh, err := EncodeSegment(h)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	ec, err := EncodeSegment(c)
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}
	return eh + "." + ec, nil
}

// JoinToken appends the encoded signature to a signing input.
func JoinToken(signingInput string, sig []byte) string {
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// ParseToken splits and decodes a token. It never verifies the signature.
func ParseToken(s string) (Token, error) {
	var zero Token
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return zero, fmt.Errorf("%w: expected 3 segments, got %d", ErrTokenFormat, len(parts))
	}
	hb, err := DecodeSegment(parts[0])
	if err != nil {
		return zero, fmt.Errorf("%w: header: %v", ErrTokenFormat, err)
	}
	cb, err := DecodeSegment(parts[1])
	if err != nil {
		return zero, fmt.Errorf("%w: claims: %v", ErrTokenFormat, err)
	}
	sig, err := DecodeSegment(parts[2])
	if err != nil {
		return zero, fmt.Errorf("%w: signature: %v", ErrTokenFormat, err)
	}
	tok := Token{Signature: sig, SigningInput: parts[0] + "." + parts[1], Raw: s}
	if err := decodeObject(hb, &tok.Header); err != nil {
		return zero, fmt.Errorf("%w: header: %v", ErrTokenFormat, err)
	}
	if err := decodeObject(cb, &tok.Claims); err != nil {
		return zero, fmt.Errorf("%w: claims: %v", ErrTokenFormat, err)
	}
	return tok, nil
}

func decodeObject(b []byte, v any) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("not a JSON object")
	}
	return json.Unmarshal(trimmed, v)
}

// EncodeRecord returns the compact JSON form of r.
func EncodeRecord(r Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeRecord parses the JSON form of a record.
func DecodeRecord(s string) (Record, error) {
	var zero Record
	if strings.TrimSpace(s) == "" {
		return zero, fmt.Errorf("%w: empty record", ErrRecordFormat)
	}
	var r Record
	if err := decodeObject([]byte(s), &r); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrRecordFormat, err)
	}
	return r, nil
}
