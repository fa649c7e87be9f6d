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

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/opencontainers/go-digest"
)

var (
	// ErrInvalidKey is returned when key material cannot be parsed.
	ErrInvalidKey = errors.New("invalid key material")
)

// HashContent returns the lowercase hex SHA-256 digest of content.
// Empty content is valid and hashes to the digest of the empty string.
func HashContent(content string) string {
	return digest.SHA256.FromString(content).Encoded()
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	return digest.SHA256.FromBytes(data).Encoded()
}

// HashSHA256 computes the SHA-256 digest of the provided bytes and returns the 32-byte digest.
func HashSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// IsHexKey reports whether s looks like a 32-byte hex encoded secp256k1 private key.
func IsHexKey(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// GenerateKeyPair creates a new secp256k1 private key and returns it along with its x-only public key (64 hex chars).
func GenerateKeyPair() (*btcec.PrivateKey, string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, "", err
	}
	// BIP-340 x-only serialization is 32 bytes X coordinate only
	xonly := schnorr.SerializePubKey(priv.PubKey())
	return priv, hex.EncodeToString(xonly), nil
}

// ParseXOnlyPubKeyHex parses a 64-hex x-only public key into a btcec.PublicKey.
func ParseXOnlyPubKeyHex(hexKey string) (*btcec.PublicKey, error) {
	bytesKey, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(bytesKey) != 32 {
		return nil, fmt.Errorf("%w: x-only pubkey must be 32 bytes", ErrInvalidKey)
	}
	pk, err := schnorr.ParsePubKey(bytesKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pk, nil
}

// ParsePrivateKeyHex parses a 32-byte hex-encoded private key into a *btcec.PrivateKey.
func ParsePrivateKeyHex(hexKey string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes", ErrInvalidKey)
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// SignSchnorr signs the 32-byte message digest with the provided private key and returns the 64-byte signature.
func SignSchnorr(priv *btcec.PrivateKey, digest32 [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(priv, digest32[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifySchnorr verifies a raw signature against a hex x-only pubkey and 32-byte digest.
func VerifySchnorr(pubHex string, sig []byte, digest32 [32]byte) (bool, error) {
	pk, err := ParseXOnlyPubKeyHex(pubHex)
	if err != nil {
		return false, err
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, err
	}
	return parsed.Verify(digest32[:], pk), nil
}

// XOnlyPubKeyHex returns the BIP-340 public key of priv as 64 hex chars.
func XOnlyPubKeyHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}

// ParseRSAPrivateKey parses PEM encoded RSA key material. A bare base64 body
// without armor is wrapped in a PRIVATE KEY block before parsing.
func ParseRSAPrivateKey(material string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(armor(material, "PRIVATE KEY")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// ParseRSAPublicKey parses PEM encoded RSA public key material, with the same
// armor handling as ParseRSAPrivateKey.
func ParseRSAPublicKey(material string) (*rsa.PublicKey, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(armor(material, "PUBLIC KEY")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// GenerateRSAKeyPEM creates an RSA key pair and returns the PKCS#8 private key
// and PKIX public key, both PEM encoded.
func GenerateRSAKeyPEM(bits int) (privPEM string, pubPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", err
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM, nil
}

func armor(material, blockType string) string {
	material = strings.TrimSpace(material)
	// keys passed through env vars often carry literal \n sequences
	material = strings.ReplaceAll(material, `\n`, "\n")
	if strings.Contains(material, "-----BEGIN") {
		return material
	}
	return "-----BEGIN " + blockType + "-----\n" + material + "\n-----END " + blockType + "-----"
}
