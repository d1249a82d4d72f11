// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"regexp"
	"strings"
)

const completionsPath = "/chat/completions"

// aggregatorPrefix inserts an API path prefix after a host that serves its
// OpenAI-compatible API below one.
type aggregatorPrefix struct {
	host   string
	prefix string
}

// aggregatorPrefixes lists hosts whose users commonly paste the bare site
// URL. Only entries observed in practice belong here.
var aggregatorPrefixes = []aggregatorPrefix{
	{host: "openrouter.ai", prefix: "/api"},
}

// repeatedSlashes matches runs of slashes not preceded by a scheme colon.
var repeatedSlashes = regexp.MustCompile(`([^:]/)/+`)

// NormalizeEndpoint turns a user-entered base URL into the full chat
// completions URL:
//
//   - surrounding whitespace and one trailing slash are removed
//   - known aggregator hosts get their API prefix when it is missing
//   - /chat/completions is appended (with /v1 unless the URL ends in /v1)
//   - duplicate slashes outside the scheme separator are collapsed
func NormalizeEndpoint(baseURL string) string {
	u := strings.TrimSpace(baseURL)
	u = strings.TrimSuffix(u, "/")

	for _, a := range aggregatorPrefixes {
		if strings.Contains(u, a.host) && !strings.Contains(u, a.prefix) {
			u = strings.Replace(u, a.host, a.host+a.prefix, 1)
		}
	}

	if !strings.HasSuffix(u, completionsPath) {
		if strings.HasSuffix(u, "/v1") {
			u += completionsPath
		} else {
			u += "/v1" + completionsPath
		}
	}

	return repeatedSlashes.ReplaceAllString(u, "${1}")
}
