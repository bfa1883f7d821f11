package confluence

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Credentials is what a SessionRefresher hands back.  Empty fields leave the current value alone.
type Credentials struct {
	Username string
	Token    string
	Cookies  []*http.Cookie
}

// SessionRefresher obtains fresh credentials after the server rejected ours, or started serving
// bot challenges.  It is called at most once per request.
type SessionRefresher func(ctx context.Context) (Credentials, error)

func (api *API) refresh(ctx context.Context) error {
	if api.refresher == nil {
		return fmt.Errorf("confluence: no session refresher configured")
	}

	creds, err := api.refresher(ctx)
	if err != nil {
		return fmt.Errorf("confluence: session refresh failed: %w", err)
	}

	if creds.Username != "" {
		api.username = creds.Username
	}
	if creds.Token != "" {
		api.token = creds.Token
	}
	if len(creds.Cookies) > 0 && api.Client.Jar != nil {
		api.Client.Jar.SetCookies(api.BaseURI, creds.Cookies)
	}

	api.Logger.Printf("session refreshed (%d cookie(s))", len(creds.Cookies))
	return nil
}

// SetCookies seeds the session with browser cookies, e.g. to get past SSO.
func (api *API) SetCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 || api.Client.Jar == nil {
		return
	}
	api.Client.Jar.SetCookies(api.BaseURI, cookies)
}

// LoadCookieFile reads cookies in the format of a browser's Cookie request header, i.e.
// "name=value; other=value".  Blank lines and lines starting with # are skipped, and several
// lines are merged.
func LoadCookieFile(path string) ([]*http.Cookie, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't expand cookie file path: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't open cookie file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "Cookie:")
		cookies = append(cookies, ParseCookieHeader(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("confluence: couldn't read cookie file: %w", err)
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("confluence: no cookies found in %s", path)
	}

	return cookies, nil
}

// ParseCookieHeader splits a Cookie header value.  Malformed pairs are dropped.
func ParseCookieHeader(header string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, pair := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}
