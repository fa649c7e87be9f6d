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

// Package config loads proxy settings from defaults, an optional YAML file,
// and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stonebraker/provenance/sdks/go/pkg/prov/sign"
)

const (
	DefaultAddr          = ":3000"
	DefaultReaderBaseURL = "https://r.jina.ai/"
	DefaultProxyBy       = "Jina-Style-Proxy"
	DefaultMaxBodyBytes  = 10 << 20
	DefaultTimeout       = 30 * time.Second
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ReaderBaseURL   string        `yaml:"readerBaseURL"`
	UpstreamTimeout time.Duration `yaml:"upstreamTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	ProxyBy         string        `yaml:"proxyBy"`

	PrivateKey     string `yaml:"privateKey"`
	PublicKey      string `yaml:"publicKey"`
	PrivateKeyFile string `yaml:"privateKeyFile"`
	PublicKeyFile  string `yaml:"publicKeyFile"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

func Default() Config {
	return Config{
		Addr:            DefaultAddr,
		ReaderBaseURL:   DefaultReaderBaseURL,
		UpstreamTimeout: DefaultTimeout,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		ProxyBy:         DefaultProxyBy,
		PrivateKey:      sign.PlaceholderPrivateKey,
		PublicKey:       sign.PlaceholderPublicKey,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds a Config. path may be empty. getenv is usually os.Getenv.
// Missing or placeholder keys are valid and select the HMAC fallback.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	setString(&cfg.PrivateKey, getenv("PRIVATE_KEY"))
	setString(&cfg.PublicKey, getenv("PUBLIC_KEY"))
	setString(&cfg.PrivateKeyFile, getenv("PRIVATE_KEY_FILE"))
	setString(&cfg.PublicKeyFile, getenv("PUBLIC_KEY_FILE"))
	setString(&cfg.Addr, getenv("PROXY_ADDR"))
	setString(&cfg.ReaderBaseURL, getenv("READER_BASE_URL"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.LogFormat, getenv("LOG_FORMAT"))
	if v := getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("UPSTREAM_TIMEOUT: %w", err)
		}
		cfg.UpstreamTimeout = d
	}
	if v := getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		cfg.MaxBodyBytes = n
	}

	if cfg.PrivateKeyFile != "" {
		b, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
		cfg.PrivateKey = string(b)
	}
	if cfg.PublicKeyFile != "" {
		b, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read public key: %w", err)
		}
		cfg.PublicKey = string(b)
	}
	cfg.PrivateKey = normalizeKey(cfg.PrivateKey)
	cfg.PublicKey = normalizeKey(cfg.PublicKey)

	if !strings.HasSuffix(cfg.ReaderBaseURL, "/") {
		cfg.ReaderBaseURL += "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultTimeout
	}
	return cfg, nil
}

// PublishedPublicKey is the key copied into records and the X-Public-Key
// header. The placeholder is never published.
func (c Config) PublishedPublicKey() string {
	if c.PublicKey == sign.PlaceholderPublicKey {
		return ""
	}
	return c.PublicKey
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// normalizeKey expands literal \n sequences, as found in single-line env files.
func normalizeKey(k string) string {
	return strings.TrimSpace(strings.ReplaceAll(k, `\n`, "\n"))
}
