// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net/http"
	"time"
)

// CookieName is the session cookie carrying the raw access token.
const CookieName = "authy_session"

// IssueCookie builds the session cookie. It has no expiry, so it lives for the browser session;
// the token's own exp bounds its validity.
func IssueCookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie builds a cookie that makes the browser drop the session cookie.
func ClearCookie(secure bool) *http.Cookie {
	c := IssueCookie("", secure)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}
