// Package issue turns one upstream fetch into a provenance record.
package issue

import (
	"context"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

// Provenance is the record for one fetch plus the strategy that signed it.
type Provenance struct {
	Record    wire.Record
	Algorithm wire.Algorithm
	Tier      int
}

// Header returns the JSON form of the record for the X-Signature-Webhook header
// and the meta tag.
func (p Provenance) Header() (string, error) {
	return wire.EncodeRecord(p.Record)
}

type Issuer struct {
	signer    *sign.Signer
	publicKey string
}

// New returns an Issuer. publicKey is copied into every record; pass "" to omit it.
func New(signer *sign.Signer, publicKey string) *Issuer {
	return &Issuer{signer: signer, publicKey: publicKey}
}

// Issue hashes content and signs the result. fetchedAt must be the moment the
// upstream response was received. It performs no I/O.
func (i *Issuer) Issue(ctx context.Context, url string, fetchedAt time.Time, content string) (Provenance, error) {
	contentHash := crypto.HashContent(content)
	timestamp := fetchedAt.UnixMilli()
	res, err := i.signer.Sign(ctx, url, timestamp, contentHash)
	if err != nil {
		return Provenance{}, err
	}
	return Provenance{
		Record: wire.Record{
			URL:            url,
			Timestamp:      timestamp,
			ContentHash:    contentHash,
			SignatureToken: res.Token,
			PublicKey:      i.publicKey,
		},
		Algorithm: res.Algorithm,
		Tier:      res.Tier,
	}, nil
}
