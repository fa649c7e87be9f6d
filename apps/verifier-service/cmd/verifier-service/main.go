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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/badge"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
)

const maxBodyBytes = 10 << 20

func main() {
	var port, pubKey, hmacKey, logLevel string
	flag.StringVar(&port, "port", "8082", "port to listen on")
	flag.StringVar(&pubKey, "pubkey", "", "trusted public key for signature checks (PEM RSA or hex secp256k1)")
	flag.StringVar(&hmacKey, "hmac-key", "", "shared key for HS256 signature checks")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()

	logger := log.New(logLevel, "text")
	v := &verifier{keys: sign.KeySet{PublicKey: pubKey, HMACKey: hmacKey}, now: time.Now, logger: logger}

	addr := ":" + port
	logger.Infof("Verifier Service starting on %s", addr)
	logger.Fatal(http.ListenAndServe(addr, newRouter(v)))
}

func newRouter(v *verifier) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Signature-Webhook")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Routes
	r.Get("/health", v.healthHandler)
	r.Post("/verify", v.verifyHandler)
	return r
}

// healthHandler provides a simple health check endpoint
func (v *verifier) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"service":   "verifier-service",
		"timestamp": v.now().Unix(),
	}
	v.writeJSON(w, http.StatusOK, response)
}

// verifyHandler verifies a submitted page. ?format=html answers with the
// rendered badge instead of JSON; ?preview adds sanitized page content.
func (v *verifier) verifyHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		v.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(body) == 0 {
		v.writeError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	q := r.URL.Query()
	result := v.processPageVerification(r.Context(), body, recordHeader(r.Header), q.Has("preview"))

	if q.Get("format") == "html" {
		b := badge.New()
		b.Render(result.Outcome)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, b.HTML())
		return
	}

	v.writeJSON(w, http.StatusOK, result)
}

func (v *verifier) writeError(w http.ResponseWriter, status int, msg string) {
	v.writeJSON(w, status, map[string]interface{}{
		"verified": false,
		"error":    msg,
	})
}

func (v *verifier) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && v.logger != nil {
		v.logger.Errorf("write response: %v", err)
	}
}
