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

// Package reader fetches pages through the upstream reader service, which
// takes the target URL appended to its base URL.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultContentType = "text/markdown"

// ErrBodyTooLarge is returned when the upstream body exceeds the limit.
var ErrBodyTooLarge = errors.New("reader: upstream body too large")

// UpstreamError is a non-200 answer from the reader service.
type UpstreamError struct {
	Status     int
	StatusText string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Failed to fetch: %d %s", e.Status, e.StatusText)
}

// Result is one successful fetch. FetchedAt is when the response arrived.
type Result struct {
	Content     string
	ContentType string
	Status      int
	StatusText  string
	FetchedAt   time.Time
}

type Client struct {
	base    string
	http    *http.Client
	maxBody int64
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(base string, opts ...Option) *Client {
	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: 30 * time.Second},
		maxBody: 10 << 20,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the reader URL for target.
func (c *Client) URL(target string) string {
	return c.base + target
}

// Fetch performs a single GET. Non-200 answers are returned as *UpstreamError
// and are not retried.
func (c *Client) Fetch(ctx context.Context, target string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(target), nil)
	if err != nil {
		return Result{}, fmt.Errorf("reader: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("reader: %w", err)
	}
	defer resp.Body.Close()
	fetchedAt := c.now()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, &UpstreamError{Status: resp.StatusCode, StatusText: statusText(resp)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return Result{}, fmt.Errorf("reader: read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return Result{}, ErrBodyTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = defaultContentType
	}
	return Result{
		Content:     string(body),
		ContentType: ct,
		Status:      resp.StatusCode,
		StatusText:  statusText(resp),
		FetchedAt:   fetchedAt,
	}, nil
}

// statusText is the reason phrase the server sent, falling back to the
// standard text for the code.
func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != "" && text != resp.Status {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
