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

// Package sign builds provenance tokens. A Signer holds an ordered list of
// strategies and walks it until one succeeds; the winning strategy's tag is
// written into the token header so a holder of the right key can pick the
// matching verification path.
package sign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

const (
	// PlaceholderPrivateKey is the value shipped in example configuration.
	// It is never used for asymmetric signing.
	PlaceholderPrivateKey = "your-private-key-change-me"

	// PlaceholderPublicKey pairs with PlaceholderPrivateKey.
	PlaceholderPublicKey = "your-public-key-change-me"

	// DevelopmentKey is the HMAC key used when no real key is configured.
	DevelopmentKey = "development-fallback-key"

	// DefaultValidity is the lifetime of a token.
	DefaultValidity = time.Hour

	// minKeyLength mirrors the shortest key material considered real.
	minKeyLength = 20
)

var (
	// ErrNoStrategy is returned when every configured strategy failed.
	ErrNoStrategy = errors.New("sign: no signing strategy succeeded")

	// ErrKeyMissing is returned when a strategy or verification needs key material that was not supplied.
	ErrKeyMissing = errors.New("sign: key material missing")
)

// Attempt records the outcome of one strategy.
type Attempt struct {
	Algorithm wire.Algorithm
	Err       error
}

// Result describes the token produced by Sign and how it was produced.
type Result struct {
	Token     string
	Algorithm wire.Algorithm
	Tier      int
	Claims    wire.Claims
	Attempts  []Attempt
}

// Degraded reports whether a strategy weaker than asymmetric signing won.
func (r Result) Degraded() bool { return r.Tier > 1 }

type Signer struct {
	strategies []Strategy
	now        func() time.Time
	validity   time.Duration
}

type Option func(*Signer)

// WithClock overrides the clock used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithValidity sets the token lifetime. Non-positive values are ignored.
func WithValidity(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.validity = d
		}
	}
}

// WithStrategies replaces the strategy list derived from the key.
func WithStrategies(strategies ...Strategy) Option {
	return func(s *Signer) { s.strategies = strategies }
}

// IsRealKey reports whether key is usable for asymmetric signing.
func IsRealKey(key string) bool {
	key = strings.TrimSpace(key)
	return key != PlaceholderPrivateKey && len(key) > minKeyLength
}

// New builds a Signer for privateKey. The strategy order is: asymmetric (only
// for real keys; hex keys select BIP340, anything else RS256), HMAC with the
// same key or DevelopmentKey, then the keyless digest.
func New(privateKey string, opts ...Option) *Signer {
	s := &Signer{
		strategies: Strategies(privateKey),
		now:        time.Now,
		validity:   DefaultValidity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strategies returns the default strategy list for privateKey.
func Strategies(privateKey string) []Strategy {
	var out []Strategy
	if IsRealKey(privateKey) {
		if crypto.IsHexKey(privateKey) {
			out = append(out, SchnorrStrategy{Key: privateKey})
		} else {
			out = append(out, RSAStrategy{Key: privateKey})
		}
	}
	hmacKey, dev := privateKey, false
	if strings.TrimSpace(privateKey) == "" || privateKey == PlaceholderPrivateKey {
		hmacKey, dev = DevelopmentKey, true
	}
	out = append(out, HMACStrategy{Key: []byte(hmacKey), Development: dev})
	return append(out, DigestStrategy{})
}

// Sign creates a token for the given claims values. iat is taken from the
// signer's clock at call time and exp is iat plus the validity window.
func (s *Signer) Sign(ctx context.Context, url string, timestamp int64, contentHash string) (Result, error) {
	logger := log.GetLogger(ctx)
	iat := s.now().Unix()
	claims := wire.Claims{
		URL:         url,
		Timestamp:   timestamp,
		ContentHash: contentHash,
		IssuedAt:    iat,
		ExpiresAt:   iat + int64(s.validity/time.Second),
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		claims.ExpiresAt = claims.IssuedAt + int64(DefaultValidity/time.Second)
	}

	res := Result{Claims: claims}
	for _, strategy := range s.strategies {
		alg := strategy.Algorithm()
		token, err := signWith(strategy, claims)
		res.Attempts = append(res.Attempts, Attempt{Algorithm: alg, Err: err})
		if err != nil {
			logger.Errorf("signing with %s failed, falling back: %v", alg, err)
			continue
		}
		res.Token, res.Algorithm, res.Tier = token, alg, Tier(alg)
		announce(logger, strategy)
		return res, nil
	}
	return res, ErrNoStrategy
}

func signWith(strategy Strategy, claims wire.Claims) (token string, err error) {
	// strategies wrap third-party code; a panic is treated as a failed attempt
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s strategy panicked: %v", strategy.Algorithm(), r)
		}
	}()
	input, err := wire.SigningInput(wire.Header{Alg: strategy.Algorithm(), Typ: wire.TokenType}, claims)
	if err != nil {
		return "", err
	}
	sig, err := strategy.Sign([]byte(input))
	if err != nil {
		return "", err
	}
	return wire.JoinToken(input, sig), nil
}

func announce(logger log.Logger, strategy Strategy) {
	switch st := strategy.(type) {
	case HMACStrategy:
		if st.Development {
			logger.Warn("Using HMAC-SHA256 fallback signing with the development key (less secure, for development only)")
		} else {
			logger.Warn("Using HMAC-SHA256 fallback signing (less secure, for development only)")
		}
	case DigestStrategy:
		logger.Error("Using keyless SHA-256 digest placeholder; token carries no authenticity")
	default:
		logger.Debugf("signed provenance token with %s", strategy.Algorithm())
	}
}
