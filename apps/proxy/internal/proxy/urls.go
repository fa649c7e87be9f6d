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

package proxy

import (
	"errors"
	"net/url"
	"strings"
)

const (
	msgMissingURL = "URL is required in the path (e.g., /proxy/https://example.com)"
	msgInvalidURL = "Invalid URL provided"
)

var (
	errMissingURL = errors.New(msgMissingURL)
	errInvalidURL = errors.New(msgInvalidURL)
)

// reservedParams control the proxy and are not forwarded to the target.
var reservedParams = []string{"raw", "signature", "noui", "highlight"}

var browserMarkers = []string{"Mozilla/", "Chrome/", "Safari/", "Edge/", "Firefox/"}

// normalizeURL rebuilds the target from the path remainder. Some clients
// collapse the double slash after the scheme, so "https:/x" is repaired.
func normalizeURL(rest string, query url.Values) (string, error) {
	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		return "", errMissingURL
	}
	for _, scheme := range []string{"https:/", "http:/"} {
		if strings.HasPrefix(rest, scheme) && !strings.HasPrefix(rest, scheme+"/") {
			rest = scheme + "/" + rest[len(scheme):]
		}
	}
	return validateURL(rest, query)
}

func validateURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errInvalidURL
	}
	forward := url.Values{}
	for k, v := range query {
		if !isReserved(k) {
			forward[k] = v
		}
	}
	if len(forward) > 0 {
		if u.RawQuery != "" {
			u.RawQuery += "&" + forward.Encode()
		} else {
			u.RawQuery = forward.Encode()
		}
		return u.String(), nil
	}
	return raw, nil
}

func isReserved(k string) bool {
	for _, r := range reservedParams {
		if k == r {
			return true
		}
	}
	return false
}

// isBrowser reports whether the user agent looks like a web browser.
func isBrowser(userAgent string) bool {
	for _, m := range browserMarkers {
		if strings.Contains(userAgent, m) {
			return true
		}
	}
	return false
}
