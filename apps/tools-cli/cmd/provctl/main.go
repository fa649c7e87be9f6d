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
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/crypto"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/issue"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/wire"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = keygenCmd(os.Args[2:], os.Stdout)
	case "hash":
		err = hashCmd(os.Args[2:], os.Stdin, os.Stdout)
	case "issue":
		err = issueCmd(os.Args[2:], os.Stdin, os.Stdout)
	case "inspect":
		err = inspectCmd(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", exe)
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  keygen    Generate a secp256k1 or RSA keypair and print or append to .env\n")
	fmt.Fprintf(os.Stderr, "  hash      Print the content hash of a file\n")
	fmt.Fprintf(os.Stderr, "  issue     Create a provenance record for a file\n")
	fmt.Fprintf(os.Stderr, "  inspect   Decode a signature token or record and optionally check its signature\n")
}

func keygenCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	typ := fs.String("type", "secp256k1", "key type: secp256k1 or rsa")
	bits := fs.Int("bits", 2048, "RSA modulus size")
	prefix := fs.String("prefix", "", "optional env var prefix (e.g. STAGING)")
	out := fs.String("out", "", "optional path to append env lines to (e.g. .env)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var privKey, pubKey string
	switch *typ {
	case "secp256k1":
		priv, pubHex, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		privKey, pubKey = hex.EncodeToString(priv.Serialize()), pubHex
	case "rsa":
		privPEM, pubPEM, err := crypto.GenerateRSAKeyPEM(*bits)
		if err != nil {
			return err
		}
		// one line per key; the proxy config expands literal \n
		privKey, pubKey = escapeNewlines(privPEM), escapeNewlines(pubPEM)
	default:
		return fmt.Errorf("unknown key type %q", *typ)
	}

	lines := fmt.Sprintf("%s=%s\n%s=%s\n", envKey(*prefix, "PRIVATE_KEY"), privKey, envKey(*prefix, "PUBLIC_KEY"), pubKey)
	if *out == "" {
		_, err := io.WriteString(stdout, lines)
		return err
	}
	f, err := os.OpenFile(*out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", *out, err)
	}
	defer f.Close()
	if _, err := f.WriteString(lines); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Fprintf(stdout, "wrote %s keypair to %s\n", *typ, *out)
	return nil
}

func hashCmd(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	in := fs.String("in", "-", "input file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	content, err := readInput(*in, stdin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, crypto.HashBytes(content))
	return err
}

func issueCmd(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	target := fs.String("url", "", "target URL the content was fetched from (required)")
	in := fs.String("in", "-", "content file, - for stdin")
	key := fs.String("key", os.Getenv("PRIVATE_KEY"), "private key (hex secp256k1 or PEM RSA); defaults to $PRIVATE_KEY")
	pub := fs.String("pubkey", "", "public key to embed in the record")
	at := fs.String("at", "", "fetch time as RFC3339 (default now)")
	validity := fs.Duration("validity", sign.DefaultValidity, "token validity")
	out := fs.String("out", "", "optional output file (written with 0600)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("-url is required")
	}
	if *key == "" {
		*key = sign.PlaceholderPrivateKey
	}

	fetchedAt := time.Now()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("invalid -at: %w", err)
		}
		fetchedAt = t
	}
	content, err := readInput(*in, stdin)
	if err != nil {
		return err
	}

	signer := sign.New(strings.TrimSpace(*key), sign.WithClock(func() time.Time { return fetchedAt }), sign.WithValidity(*validity))
	p, err := issue.New(signer, *pub).Issue(context.Background(), *target, fetchedAt, string(content))
	if err != nil {
		return err
	}
	if *out != "" {
		if err := writeJSON0600(*out, p.Record); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s record (tier %d) to %s\n", p.Algorithm, p.Tier, *out)
		return nil
	}
	return writeIndented(stdout, p.Record)
}

type inspection struct {
	Header    wire.Header  `json:"header"`
	Claims    wire.Claims  `json:"claims"`
	IssuedAt  string       `json:"issuedAt"`
	ExpiresAt string       `json:"expiresAt"`
	Record    *wire.Record `json:"record,omitempty"`
	Signature string       `json:"signature"`
}

func inspectCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	token := fs.String("token", "", "signature token")
	record := fs.String("record", "", "record JSON (X-Signature-Webhook value) or @file")
	pub := fs.String("pubkey", "", "trusted public key for RS256/BIP340 checks (the record's own key is reported as self-asserted)")
	hmacKey := fs.String("hmac-key", "", "shared key for HS256 checks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rec *wire.Record
	selfAsserted := false
	if *record != "" {
		raw := *record
		if strings.HasPrefix(raw, "@") {
			b, err := os.ReadFile(raw[1:])
			if err != nil {
				return err
			}
			raw = string(b)
		}
		r, err := wire.DecodeRecord(raw)
		if err != nil {
			return err
		}
		rec = &r
		*token = r.SignatureToken
		if *pub == "" && r.PublicKey != "" {
			*pub = r.PublicKey
			selfAsserted = true
		}
	}
	if *token == "" {
		return errors.New("-token or -record is required")
	}
	tok, err := wire.ParseToken(*token)
	if err != nil {
		return err
	}

	res := inspection{
		Header:    tok.Header,
		Claims:    tok.Claims,
		IssuedAt:  time.Unix(tok.Claims.IssuedAt, 0).UTC().Format(time.RFC3339),
		ExpiresAt: time.Unix(tok.Claims.ExpiresAt, 0).UTC().Format(time.RFC3339),
		Record:    rec,
	}
	switch err := sign.Verify(tok, sign.KeySet{PublicKey: *pub, HMACKey: *hmacKey}); {
	case err == nil && !tok.Header.Alg.Authenticated():
		res.Signature = "unauthenticated"
	case err == nil && selfAsserted && tok.Header.Alg.Asymmetric():
		// a record can carry any key, so this only shows the token is consistent
		res.Signature = "valid (self-asserted key)"
	case err == nil:
		res.Signature = "valid"
	case errors.Is(err, sign.ErrKeyMissing):
		res.Signature = "unchecked"
	default:
		res.Signature = "invalid: " + err.Error()
	}
	return writeIndented(stdout, res)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeJSON0600(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(b, '\n'), 0600)
}

func envKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.ToUpper(prefix) + "_" + key
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", `\n`)
}
