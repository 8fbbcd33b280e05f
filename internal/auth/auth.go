// Package auth implements the single shared admin password.
//
// The browser hashes the password before sending it; the login cookie holds
// the same SHA-256 hex digest, so the cleartext password never travels and
// nothing needs to be stored server side.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"os"
)

const (
	CookieName      = "authentication"
	DefaultPassword = "pass"
	PasswordEnv     = "SB_PASSWORD"
)

// Hash returns the lowercase hex SHA-256 digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Password returns SB_PASSWORD, or DefaultPassword when unset.
func Password(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if p := getenv(PasswordEnv); p != "" {
		return p
	}
	return DefaultPassword
}

// Checker compares login hashes and cookies against the current password.
// The password is read on every call so a restart is not needed after the
// environment changes.
type Checker struct {
	Getenv func(string) string
}

func (c Checker) Expected() string {
	return Hash(Password(c.Getenv))
}

// Valid reports whether v (a login hash or a cookie value) matches.
func (c Checker) Valid(v string) bool {
	if v == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v), []byte(c.Expected())) == 1
}

func Cookie(value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the login cookie.
func ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
