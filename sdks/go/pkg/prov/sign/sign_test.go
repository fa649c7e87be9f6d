package sign

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

var fixedNow = time.Unix(1700000000, 0)

func clock() time.Time { return fixedNow }

type failingStrategy struct {
	alg wire.Algorithm
	err error
}

func (s failingStrategy) Algorithm() wire.Algorithm  { return s.alg }
func (s failingStrategy) Sign([]byte) ([]byte, error) { return nil, s.err }

type panickingStrategy struct{}

func (panickingStrategy) Algorithm() wire.Algorithm  { return wire.AlgRS256 }
func (panickingStrategy) Sign([]byte) ([]byte, error) { panic("backend exploded") }

func capture(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	return log.WithLogger(context.Background(), l), &buf
}

func signHello(t *testing.T, s *Signer) (Result, wire.Token) {
	t.Helper()
	res, err := s.Sign(context.Background(), "https://example.com", 1700000000000, crypto.HashContent("hello world"))
	require.NoError(t, err)
	require.Len(t, strings.Split(res.Token, "."), 3)
	tok, err := wire.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Algorithm, tok.Header.Alg)
	assert.Equal(t, res.Claims, tok.Claims)
	return res, tok
}

func TestSign_Claims(t *testing.T) {
	_, tok := signHello(t, New(PlaceholderPrivateKey, WithClock(clock)))
	assert.Equal(t, "https://example.com", tok.Claims.URL)
	assert.Equal(t, int64(1700000000000), tok.Claims.Timestamp)
	assert.Equal(t, crypto.HashContent("hello world"), tok.Claims.ContentHash)
	assert.Equal(t, int64(1700000000), tok.Claims.IssuedAt)
	assert.Equal(t, int64(1700003600), tok.Claims.ExpiresAt)
	assert.Equal(t, wire.TokenType, tok.Header.Typ)
}

func TestSign_Validity(t *testing.T) {
	_, tok := signHello(t, New(PlaceholderPrivateKey, WithClock(clock), WithValidity(5*time.Minute)))
	assert.Equal(t, tok.Claims.IssuedAt+300, tok.Claims.ExpiresAt)

	_, tok = signHello(t, New(PlaceholderPrivateKey, WithClock(clock), WithValidity(-time.Second)))
	assert.Greater(t, tok.Claims.ExpiresAt, tok.Claims.IssuedAt)
}

func TestSign_RS256(t *testing.T) {
	privPEM, pubPEM, err := crypto.GenerateRSAKeyPEM(2048)
	require.NoError(t, err)

	res, tok := signHello(t, New(privPEM, WithClock(clock)))
	assert.Equal(t, wire.AlgRS256, res.Algorithm)
	assert.Equal(t, 1, res.Tier)
	assert.False(t, res.Degraded())
	assert.NoError(t, Verify(tok, KeySet{PublicKey: pubPEM}))
}

func TestSign_BIP340(t *testing.T) {
	priv, pubHex, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	res, tok := signHello(t, New(hex.EncodeToString(priv.Serialize()), WithClock(clock)))
	assert.Equal(t, wire.AlgBIP340, res.Algorithm)
	assert.Equal(t, 1, res.Tier)
	assert.NoError(t, Verify(tok, KeySet{PublicKey: pubHex}))

	_, otherPub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(tok, KeySet{PublicKey: otherPub}), ErrSignatureInvalid)
}

func TestSign_PlaceholderFallsToDevelopmentHMAC(t *testing.T) {
	ctx, logs := capture(t)
	s := New(PlaceholderPrivateKey, WithClock(clock))
	res, err := s.Sign(ctx, "https://example.com", 1, "h")
	require.NoError(t, err)

	assert.Equal(t, wire.AlgHS256, res.Algorithm)
	assert.Equal(t, 2, res.Tier)
	assert.True(t, res.Degraded())
	assert.Len(t, res.Attempts, 1)
	assert.Contains(t, logs.String(), "development key")

	tok, err := wire.ParseToken(res.Token)
	require.NoError(t, err)
	assert.NoError(t, Verify(tok, KeySet{HMACKey: DevelopmentKey}))
	assert.ErrorIs(t, Verify(tok, KeySet{HMACKey: "wrong"}), ErrSignatureInvalid)
}

func TestSign_EmptyKeyUsesDevelopmentHMAC(t *testing.T) {
	res, tok := signHello(t, New("", WithClock(clock)))
	assert.Equal(t, wire.AlgHS256, res.Algorithm)
	assert.NoError(t, Verify(tok, KeySet{HMACKey: DevelopmentKey}))
}

func TestSign_MalformedKeyFallsThrough(t *testing.T) {
	ctx, logs := capture(t)
	key := "this-is-long-but-not-a-valid-pem-key"
	res, err := New(key, WithClock(clock)).Sign(ctx, "https://example.com", 1, "h")
	require.NoError(t, err)

	assert.Equal(t, wire.AlgHS256, res.Algorithm)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, wire.AlgRS256, res.Attempts[0].Algorithm)
	assert.ErrorIs(t, res.Attempts[0].Err, crypto.ErrInvalidKey)
	assert.NoError(t, res.Attempts[1].Err)
	assert.Contains(t, logs.String(), "signing with RS256 failed")

	tok, err := wire.ParseToken(res.Token)
	require.NoError(t, err)
	// the configured key doubles as the HMAC key
	assert.NoError(t, Verify(tok, KeySet{HMACKey: key}))
}

func TestSign_ShortKeyIsNotAsymmetric(t *testing.T) {
	assert.False(t, IsRealKey("short-key"))
	assert.False(t, IsRealKey(PlaceholderPrivateKey))
	assert.True(t, IsRealKey(strings.Repeat("k", 21)))
	strategies := Strategies("short-key")
	require.Len(t, strategies, 2)
	assert.Equal(t, wire.AlgHS256, strategies[0].Algorithm())
	assert.Equal(t, wire.AlgDigest, strategies[1].Algorithm())
}

func TestSign_DigestLastResort(t *testing.T) {
	ctx, logs := capture(t)
	s := New("", WithClock(clock), WithStrategies(
		failingStrategy{alg: wire.AlgRS256, err: errors.New("bad key")},
		failingStrategy{alg: wire.AlgHS256, err: errors.New("hmac backend")},
		DigestStrategy{},
	))
	res, err := s.Sign(ctx, "https://example.com", 1, "h")
	require.NoError(t, err)

	assert.Equal(t, wire.AlgDigest, res.Algorithm)
	assert.Equal(t, 3, res.Tier)
	assert.Len(t, res.Attempts, 3)
	assert.Contains(t, logs.String(), "no authenticity")

	tok, err := wire.ParseToken(res.Token)
	require.NoError(t, err)
	assert.False(t, tok.Header.Alg.Authenticated())
	assert.NoError(t, Verify(tok, KeySet{}))
}

func TestSign_PanicIsFailedAttempt(t *testing.T) {
	res, err := New("", WithClock(clock), WithStrategies(panickingStrategy{}, DigestStrategy{})).
		Sign(context.Background(), "u", 1, "h")
	require.NoError(t, err)
	assert.Equal(t, wire.AlgDigest, res.Algorithm)
	assert.ErrorContains(t, res.Attempts[0].Err, "backend exploded")
}

func TestSign_AllStrategiesFail(t *testing.T) {
	_, err := New("", WithStrategies(failingStrategy{alg: wire.AlgHS256, err: errors.New("x")})).
		Sign(context.Background(), "u", 1, "h")
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestHMACStrategy_EmptyKey(t *testing.T) {
	_, err := HMACStrategy{}.Sign([]byte("a.b"))
	assert.ErrorIs(t, err, ErrKeyMissing)
}

func TestVerify_Errors(t *testing.T) {
	_, tok := signHello(t, New(PlaceholderPrivateKey, WithClock(clock)))

	assert.ErrorIs(t, Verify(tok, KeySet{}), ErrKeyMissing)

	tampered := tok
	tampered.SigningInput += "x"
	assert.ErrorIs(t, Verify(tampered, KeySet{HMACKey: DevelopmentKey}), ErrSignatureInvalid)

	unknown := tok
	unknown.Header.Alg = "none"
	assert.ErrorIs(t, Verify(unknown, KeySet{}), ErrUnsupportedAlgorithm)

	rs := tok
	rs.Header.Alg = wire.AlgRS256
	assert.ErrorIs(t, Verify(rs, KeySet{}), ErrKeyMissing)
}
