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
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

var (
	// ErrSignatureInvalid is returned when a signature does not match its signing input.
	ErrSignatureInvalid = errors.New("sign: signature verification failed")

	// ErrUnsupportedAlgorithm is returned for unknown header tags.
	ErrUnsupportedAlgorithm = errors.New("sign: unsupported algorithm")
)

// KeySet is the key material available to a server-side verifier.
// PublicKey is a PEM RSA public key or a 64-hex x-only secp256k1 key.
type KeySet struct {
	PublicKey string
	HMACKey   string
}

// Verify checks tok's signature with the path named by its header tag.
// DIGEST-SHA256 tokens only prove the signing input was not re-encoded; they
// carry no authenticity.
func Verify(tok wire.Token, keys KeySet) error {
	input := tok.SigningInput
	switch tok.Header.Alg {
	case wire.AlgRS256:
		if keys.PublicKey == "" {
			return fmt.Errorf("RS256: %w", ErrKeyMissing)
		}
		pub, err := crypto.ParseRSAPublicKey(keys.PublicKey)
		if err != nil {
			return err
		}
		if err := jwt.SigningMethodRS256.Verify(input, tok.Signature, pub); err != nil {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil
	case wire.AlgBIP340:
		if keys.PublicKey == "" {
			return fmt.Errorf("BIP340: %w", ErrKeyMissing)
		}
		ok, err := crypto.VerifySchnorr(keys.PublicKey, tok.Signature, sha256.Sum256([]byte(input)))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		if !ok {
			return ErrSignatureInvalid
		}
		return nil
	case wire.AlgHS256:
		if keys.HMACKey == "" {
			return fmt.Errorf("HS256: %w", ErrKeyMissing)
		}
		if err := jwt.SigningMethodHS256.Verify(input, tok.Signature, []byte(keys.HMACKey)); err != nil {
			return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil
	case wire.AlgDigest:
		sum := sha256.Sum256([]byte(input))
		if subtle.ConstantTimeCompare(sum[:], tok.Signature) != 1 {
			return ErrSignatureInvalid
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, tok.Header.Alg)
	}
}
