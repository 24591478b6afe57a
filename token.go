package bilichat

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	cookieDedeUserID = "DedeUserID="
	cookieSessData   = "SESSDATA="
	cookieBiliJCT    = "bili_jct="
)

// SessionToken is the authenticated identity captured from a completed QR
// login: the user id, the session cookie, and the CSRF token required by
// the write-action REST endpoints.
type SessionToken struct {
	UID      string
	SessData string
	CSRF     string
}

// ParseCookieString extracts a SessionToken from a semicolon-joined cookie
// string such as a browser's Cookie header. Each prefix is matched against
// its own length, not borrowed from another cookie's length: an earlier
// draft of this extraction reused SESSDATA's prefix length to slice
// bili_jct, which truncates the csrf token whenever the two names differ
// in length.
func ParseCookieString(raw string) (SessionToken, error) {
	var tok SessionToken
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, cookieDedeUserID):
			tok.UID = part[len(cookieDedeUserID):]
		case strings.HasPrefix(part, cookieSessData):
			tok.SessData = part[len(cookieSessData):]
		case strings.HasPrefix(part, cookieBiliJCT):
			tok.CSRF = part[len(cookieBiliJCT):]
		}
	}
	if tok.UID == "" || tok.SessData == "" || tok.CSRF == "" {
		return SessionToken{}, &AuthError{Reason: "cookie string is missing DedeUserID, SESSDATA, or bili_jct"}
	}
	return tok, nil
}

// TokenStore persists the raw Set-Cookie lines captured from a successful
// QR login to a flat file, one cookie per line, so future process starts
// can skip the login flow.
type TokenStore struct {
	path string
}

// NewTokenStore returns a TokenStore backed by the file at path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the stored cookie lines and builds both a SessionToken and an
// http.CookieJar pre-populated for domain, so a RestClient can reuse the
// exact cookies the server issued. A missing file is reported as an
// *AuthError so callers can fall back to the QR login flow.
func (s *TokenStore) Load(domain string) (SessionToken, http.CookieJar, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return SessionToken{}, nil, &AuthError{Reason: fmt.Sprintf("no stored token: %v", err)}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return SessionToken{}, nil, &ConfigError{Path: s.path, Err: err}
	}
	if len(lines) == 0 {
		return SessionToken{}, nil, &AuthError{Reason: "token file is empty"}
	}

	tok, err := ParseCookieString(strings.Join(lines, "; "))
	if err != nil {
		return SessionToken{}, nil, err
	}

	jar, err := buildJar(domain, lines)
	if err != nil {
		return SessionToken{}, nil, err
	}

	return tok, jar, nil
}

// Save atomically writes rawCookieLines (the Set-Cookie header values
// captured from a login response) to the store, replacing any prior
// content.
func (s *TokenStore) Save(rawCookieLines []string) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return &ConfigError{Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()

	for _, line := range rawCookieLines {
		if _, err := fmt.Fprintln(tmp, line); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return &ConfigError{Path: s.path, Err: err}
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &ConfigError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &ConfigError{Path: s.path, Err: err}
	}
	return nil
}

func buildJar(domain string, rawCookieLines []string) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}

	header := http.Header{}
	for _, line := range rawCookieLines {
		header.Add("Set-Cookie", line)
	}
	resp := http.Response{Header: header}
	cookies := resp.Cookies()

	u := &url.URL{Scheme: "https", Host: domain}
	jar.SetCookies(u, cookies)
	return jar, nil
}
