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

package sign

import (
	"crypto/sha256"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

// Strategy produces a raw signature over a token signing input.
type Strategy interface {
	Algorithm() wire.Algorithm
	Sign(signingInput []byte) ([]byte, error)
}

// RSAStrategy signs with RS256. Key is PEM (or bare base64) key material and
// is parsed on every call so that malformed keys surface as a Sign error.
type RSAStrategy struct {
	Key string
}

func (s RSAStrategy) Algorithm() wire.Algorithm { return wire.AlgRS256 }

func (s RSAStrategy) Sign(signingInput []byte) ([]byte, error) {
	key, err := crypto.ParseRSAPrivateKey(s.Key)
	if err != nil {
		return nil, err
	}
	return jwt.SigningMethodRS256.Sign(string(signingInput), key)
}

// SchnorrStrategy signs the SHA-256 of the signing input with a BIP-340
// secp256k1 key given as 64 hex chars.
type SchnorrStrategy struct {
	Key string
}

func (s SchnorrStrategy) Algorithm() wire.Algorithm { return wire.AlgBIP340 }

func (s SchnorrStrategy) Sign(signingInput []byte) ([]byte, error) {
	priv, err := crypto.ParsePrivateKeyHex(s.Key)
	if err != nil {
		return nil, err
	}
	return crypto.SignSchnorr(priv, sha256.Sum256(signingInput))
}

// HMACStrategy signs with HS256. Development marks the built-in fallback key.
type HMACStrategy struct {
	Key         []byte
	Development bool
}

func (s HMACStrategy) Algorithm() wire.Algorithm { return wire.AlgHS256 }

func (s HMACStrategy) Sign(signingInput []byte) ([]byte, error) {
	if len(s.Key) == 0 {
		return nil, fmt.Errorf("hmac: %w", ErrKeyMissing)
	}
	return jwt.SigningMethodHS256.Sign(string(signingInput), s.Key)
}

// DigestStrategy emits the bare SHA-256 of the signing input. It never fails
// and provides no authenticity.
type DigestStrategy struct{}

func (DigestStrategy) Algorithm() wire.Algorithm { return wire.AlgDigest }

func (DigestStrategy) Sign(signingInput []byte) ([]byte, error) {
	sum := sha256.Sum256(signingInput)
	return sum[:], nil
}

// Tier classifies an algorithm: 1 asymmetric, 2 symmetric, 3 keyless digest.
func Tier(alg wire.Algorithm) int {
	switch {
	case alg.Asymmetric():
		return 1
	case alg == wire.AlgHS256:
		return 2
	default:
		return 3
	}
}
