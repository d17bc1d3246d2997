package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultCookiesFile is the session-cookie file the CI job removes after each run.
const DefaultCookiesFile = "YOUTUBE_COOKIES.txt"

const httpOnlyPrefix = "#HttpOnly_"

// CookieStore is an http.CookieJar that remembers every cookie it receives so the
// session can be written back to a Netscape-format cookies file.
type CookieStore struct {
	jar *cookiejar.Jar

	mu      sync.Mutex
	cookies map[string]*http.Cookie // domain|path|name → cookie
}

// NewCookieStore returns an empty store.
func NewCookieStore() *CookieStore {
	jar, _ := cookiejar.New(nil) // never errors with nil options
	return &CookieStore{jar: jar, cookies: make(map[string]*http.Cookie)}
}

// SetCookies implements http.CookieJar.
func (s *CookieStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		cc := *c
		if cc.Domain == "" {
			cc.Domain = u.Hostname()
		}
		if cc.Path == "" {
			cc.Path = "/"
		}
		key := cc.Domain + "|" + cc.Path + "|" + cc.Name
		if cc.MaxAge < 0 || (!cc.Expires.IsZero() && cc.Expires.Before(time.Now())) {
			delete(s.cookies, key)
			continue
		}
		s.cookies[key] = &cc
	}
}

// Cookies implements http.CookieJar.
func (s *CookieStore) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// Len returns the number of remembered cookies.
func (s *CookieStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies)
}

// LoadCookies reads a Netscape-format cookies file into a new store.
// A missing file yields an empty store.
func LoadCookies(path string) (*CookieStore, error) {
	s := NewCookieStore()
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cookies: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("cookies %s:%d: expected 7 fields, got %d", path, lineNo, len(fields))
		}
		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		host := strings.TrimPrefix(c.Domain, ".")
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		s.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: c.Path}, []*http.Cookie{c})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return s, nil
}

// Save writes the remembered cookies to path in Netscape format.
func (s *CookieStore) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("# Netscape HTTP Cookie File\n")
	for _, c := range s.cookies {
		domain := c.Domain
		includeSub := "FALSE"
		if strings.HasPrefix(domain, ".") {
			includeSub = "TRUE"
		}
		var exp int64
		if !c.Expires.IsZero() {
			exp = c.Expires.Unix()
		}
		if c.HttpOnly {
			sb.WriteString(httpOnlyPrefix)
		}
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, includeSub, c.Path, strings.ToUpper(strconv.FormatBool(c.Secure)), exp, c.Name, c.Value)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}

// RemoveCookies deletes the session-cookie file. A missing file is not an error,
// so cleanup is idempotent.
func RemoveCookies(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove cookies: %w", err)
}
