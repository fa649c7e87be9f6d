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
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stonebraker/provenance/apps/proxy/internal/config"
	"github.com/stonebraker/provenance/apps/proxy/internal/proxy"
	"github.com/stonebraker/provenance/apps/proxy/internal/reader"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/issue"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/log"
	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
)

func main() {
	addr := flag.String("addr", "", "address to listen on (overrides config)")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	ctx := log.WithLogger(context.Background(), logger)

	signer := sign.New(cfg.PrivateKey)
	if !sign.IsRealKey(cfg.PrivateKey) {
		logger.Warn("no private key configured; tokens will be signed with the HMAC development key")
	}
	issuer := issue.New(signer, cfg.PublishedPublicKey())
	fetcher := reader.New(cfg.ReaderBaseURL,
		reader.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
		reader.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	h := proxy.New(fetcher, issuer,
		proxy.WithPublicKey(cfg.PublishedPublicKey()),
		proxy.WithProxyBy(cfg.ProxyBy),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Router(logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Infof("proxy listening on %s, reader %s", cfg.Addr, cfg.ReaderBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
