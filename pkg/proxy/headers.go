// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"net/http"
	"strings"
)

// hopHeaders are meaningful for a single connection only and never cross the gateway.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// IsHopHeader reports whether name is a hop-by-hop header, case-insensitively.
func IsHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// copyHeaders copies src into dst without hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if IsHopHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// rewriteSetCookie forces SameSite=Lax, and Secure when secure is set, on a Set-Cookie value.
// Name, value and every other attribute are kept as sent by the backend. Values that do not
// parse as a cookie are returned unchanged.
func rewriteSetCookie(value string, secure bool) string {
	if _, err := http.ParseSetCookie(value); err != nil {
		return value
	}

	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts)+2)
	out = append(out, strings.TrimSpace(parts[0]))

	hasSecure := false
	for _, p := range parts[1:] {
		attr := strings.TrimSpace(p)
		if attr == "" {
			continue
		}
		name, _, _ := strings.Cut(attr, "=")
		name = strings.TrimSpace(name)
		switch {
		case strings.EqualFold(name, "SameSite"):
			continue
		case strings.EqualFold(name, "Secure"):
			hasSecure = true
		}
		out = append(out, attr)
	}

	if secure && !hasSecure {
		out = append(out, "Secure")
	}
	out = append(out, "SameSite=Lax")
	return strings.Join(out, "; ")
}

// rewriteLocation upgrades a plain http redirect target to https.
func rewriteLocation(value string) string {
	if strings.HasPrefix(value, "http://") {
		return "https://" + strings.TrimPrefix(value, "http://")
	}
	return value
}
