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
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/badge"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage()
	case "verify":
		verifyCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", exe)
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  verify      Verify a page served by the provenance proxy\n")
	fmt.Fprintf(os.Stderr, "\nChecks performed:\n")
	fmt.Fprintf(os.Stderr, "  1. URL match - record URL equals the signed claims URL\n")
	fmt.Fprintf(os.Stderr, "  2. Content hash - recomputed hash equals the record and claims\n")
	fmt.Fprintf(os.Stderr, "  3. Expiry - the token has not expired\n")
	fmt.Fprintf(os.Stderr, "  Signature - checked only when -pubkey or -hmac-key is given\n")
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	urlFlag := fs.String("url", "", "proxied page URL to verify")
	raw := fs.Bool("raw", false, "request raw content and read the record from the response header")
	timeout := fs.Duration("timeout", 10*time.Second, "HTTP timeout")
	verbose := fs.Bool("v", false, "verbose output")
	jsonOutput := fs.Bool("json", false, "output the result as JSON")
	pubKey := fs.String("pubkey", "", "public key for signature checks (PEM RSA or hex secp256k1)")
	hmacKey := fs.String("hmac-key", "", "shared key for HS256 signature checks")
	_ = fs.Parse(args)

	if *urlFlag == "" {
		fmt.Fprintln(os.Stderr, "verify requires -url")
		fs.Usage()
		os.Exit(2)
	}

	opts := VerificationOptions{
		Timeout:   *timeout,
		Raw:       *raw,
		PublicKey: *pubKey,
		HMACKey:   *hmacKey,
	}
	result, err := VerifyURL(context.Background(), *urlFlag, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification error: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "json marshal error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(output))
	} else {
		b := badge.New()
		b.Render(result.Outcome)
		fmt.Println(b.Text())
		fmt.Printf("  URL match: %t\n", result.Outcome.URLMatches)
		fmt.Printf("  Content hash: %t\n", result.Outcome.ContentMatches)
		fmt.Printf("  Not expired: %t\n", result.Outcome.NotExpired)
		fmt.Printf("  Signature: %s", result.Signature)
		if result.Algorithm != "" {
			fmt.Printf(" (%s)", result.Algorithm)
		}
		fmt.Println()
		if result.SignatureError != "" {
			fmt.Printf("  Signature error: %s\n", result.SignatureError)
		}
		if result.Outcome.Verified && !result.Verified {
			fmt.Printf("❌ Signature check failed\n")
		}

		if *verbose && result.Context != nil {
			fmt.Printf("\nContext:\n")
			fmt.Printf("  Fetched URL: %s\n", result.Context.URL)
			fmt.Printf("  Mode: %s\n", result.Context.Mode)
			fmt.Printf("  Content-Type: %s\n", result.Context.ContentType)
			fmt.Printf("  Verified At: %d\n", result.Context.VerifiedAt)
			if rec := result.Outcome.Record; rec != nil {
				fmt.Printf("  Record URL: %s\n", rec.URL)
				fmt.Printf("  Content Hash: %s\n", rec.ContentHash)
				fmt.Printf("  Fetched At: %s\n", time.UnixMilli(rec.Timestamp).UTC().Format(time.RFC3339))
			}
		}
	}

	if result.Verified {
		os.Exit(0)
	}
	os.Exit(1)
}
