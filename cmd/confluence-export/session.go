/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/dnaeon/go-vcr.v3/cassette"
	"gopkg.in/dnaeon/go-vcr.v3/recorder"

	"github.com/toothbrush/confluence-export/confluence"
)

const tokenEnv = "CONFLUENCE_API_TOKEN"

// readToken runs --auth-token-cmd and returns the first line of its output, or falls back to
// $CONFLUENCE_API_TOKEN.
func readToken(ctx context.Context) (string, error) {
	if len(AuthTokenCmd) == 0 {
		if token := strings.TrimSpace(os.Getenv(tokenEnv)); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("cmd: please provide --auth-token-cmd or set $%s", tokenEnv)
	}

	out, err := exec.CommandContext(ctx, AuthTokenCmd[0], AuthTokenCmd[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("cmd: couldn't execute auth-token-cmd '%v': %w", AuthTokenCmd, err)
	}

	token := strings.TrimSpace(strings.Split(string(out), "\n")[0])
	if token == "" {
		return "", fmt.Errorf("cmd: auth-token-cmd '%v' printed nothing", AuthTokenCmd)
	}
	return token, nil
}

func readCookies() ([]*http.Cookie, error) {
	if CookieFile == "" {
		return nil, nil
	}
	return confluence.LoadCookieFile(CookieFile)
}

// refreshSession re-reads the token and the cookie file.  Someone (or a cron job) may have
// updated either since we started.
func refreshSession(ctx context.Context) (confluence.Credentials, error) {
	token, err := readToken(ctx)
	if err != nil {
		return confluence.Credentials{}, err
	}
	cookies, err := readCookies()
	if err != nil {
		return confluence.Credentials{}, err
	}
	return confluence.Credentials{Token: token, Cookies: cookies}, nil
}

// newAPI builds the session every subcommand talks to Confluence through.  The returned function
// must be called when done; it flushes the VCR cassette if there is one.
func newAPI(ctx context.Context, logger *log.Logger, withVCR bool) (*confluence.API, func(), error) {
	token, err := readToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	stop := func() {}

	if withVCR {
		// set up VCR recordings.
		opts := &recorder.Options{
			CassetteName:       "fixtures/confluence-export",
			Mode:               recorder.ModeReplayWithNewEpisodes,
			SkipRequestLatency: true,
			RealTransport:      http.DefaultTransport,
		}
		r, err := recorder.NewWithOptions(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("cmd: couldn't set up go-vcr recording: %w", err)
		}

		// Keep credentials out of the cassette.
		hook := func(i *cassette.Interaction) error {
			delete(i.Request.Headers, "Authorization")
			delete(i.Request.Headers, "Cookie")
			delete(i.Response.Headers, "Set-Cookie")
			return nil
		}
		r.AddHook(hook, recorder.AfterCaptureHook)
		r.SetReplayableInteractions(true)

		// Not r.GetDefaultClient(): we want our own timeout and a cookie jar.
		client.Transport = r
		stop = func() {
			if err := r.Stop(); err != nil {
				logger.Printf("couldn't save VCR cassette: %v", err)
			}
		}
	}

	api, err := confluence.NewAPI(confluence.Options{
		BaseURL:    ConfluenceURL,
		Username:   AuthUsername,
		Token:      token,
		PageLimit:  PageLimit,
		MaxRetries: MaxRetries,
		NoRetries:  MaxRetries == 0,
		BaseDelay:  time.Duration(BaseDelayMS) * time.Millisecond,
		Throttle:   time.Duration(ThrottleMS) * time.Millisecond,
		NoThrottle: ThrottleMS == 0,
		Refresher:  refreshSession,
		Client:     client,
		Logger:     logger,
	})
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("cmd: couldn't instantiate Confluence API: %w", err)
	}

	cookies, err := readCookies()
	if err != nil {
		stop()
		return nil, nil, err
	}
	api.SetCookies(cookies)
	debugLog("Loaded %d cookie(s) from %q.\n", len(cookies), CookieFile)

	return api, stop, nil
}

func expandPath(flag, value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("cmd: no --%s set.  Use the flag or set it in your config file", flag)
	}
	p, err := homedir.Expand(value)
	if err != nil {
		return "", fmt.Errorf("cmd: couldn't expand homedir in %s: %w", value, err)
	}
	return p, nil
}

// isTerminal decides about colours and progress bars.  /dev/null is a character device too, so
// looking at the file mode isn't enough.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
