package confluence

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultPageLimit           = 100
	DefaultMaxRetries          = 3
	DefaultBaseDelay           = time.Second
	DefaultMaxDelay            = 30 * time.Second
	DefaultRateLimitMultiplier = 5
	DefaultMaxRateLimitRetries = 50
	DefaultThrottle            = 500 * time.Millisecond
)

// Options configures an API.  Zero values fall back to the Default* constants; set NoRetries or
// NoThrottle to turn retries of transient errors or the inter-call delay off entirely.
type Options struct {
	// Wiki root, e.g. https://ORG.atlassian.net/wiki or https://wiki.example.com.  For Atlassian
	// Cloud hosts the /wiki suffix is added if missing.
	BaseURL string

	Username string
	Token    string

	PageLimit  int
	MaxRetries int
	NoRetries  bool
	BaseDelay  time.Duration
	// Cap on a single backoff sleep, Retry-After excluded.
	MaxDelay            time.Duration
	RateLimitMultiplier int
	MaxRateLimitRetries int

	// Minimum gap between two consecutive calls.  Confluence Cloud starts serving bot
	// challenges if we hammer it.
	Throttle   time.Duration
	NoThrottle bool

	// Called on 401/403 and on bot challenges.  May be nil, in which case those are terminal.
	Refresher SessionRefresher

	// An HTTP client - you can substitute VCR or whatnot.  A cookie jar is attached if it has
	// none.
	Client *http.Client

	Logger *log.Logger
}

func NewAPI(opts Options) (*API, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("confluence: configure your Confluence URL with --confluence-url")
	}
	if opts.Token == "" && opts.Refresher == nil {
		return nil, fmt.Errorf("confluence: auth token is empty, please check auth-token-cmd")
	}

	u, err := normaliseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("confluence: couldn't create cookie jar: %w", err)
		}
		client.Jar = jar
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	a := &API{
		BaseURI:             u,
		Client:              client,
		Logger:              logger,
		username:            opts.Username,
		token:               opts.Token,
		refresher:           opts.Refresher,
		pageLimit:           orDefault(opts.PageLimit, DefaultPageLimit),
		maxRetries:          orDefault(opts.MaxRetries, DefaultMaxRetries),
		rateLimitMultiplier: orDefault(opts.RateLimitMultiplier, DefaultRateLimitMultiplier),
		maxRateLimitRetries: orDefault(opts.MaxRateLimitRetries, DefaultMaxRateLimitRetries),
		baseDelay:           opts.BaseDelay,
		throttle:            opts.Throttle,
	}
	if a.baseDelay <= 0 {
		a.baseDelay = DefaultBaseDelay
	}
	a.maxDelay = opts.MaxDelay
	if a.maxDelay <= 0 {
		a.maxDelay = max(DefaultMaxDelay, a.baseDelay)
	}
	if opts.NoRetries {
		a.maxRetries = 0
	}
	if opts.NoThrottle {
		a.throttle = 0
	} else if a.throttle <= 0 {
		a.throttle = DefaultThrottle
	}

	return a, nil
}

// API is the one live session against a Confluence instance.  It is built once per run and
// handed to whoever needs remote content; it owns the credentials and cookies.
type API struct {
	// Wiki root, e.g. https://INSTANCE.atlassian.net/wiki
	BaseURI *url.URL

	// An HTTP client - you can substitute VCR or whatnot.
	Client *http.Client

	Logger *log.Logger

	// Auth info
	username, token string
	refresher       SessionRefresher

	pageLimit           int
	maxRetries          int
	baseDelay           time.Duration
	maxDelay            time.Duration
	rateLimitMultiplier int
	maxRateLimitRetries int
	throttle            time.Duration

	lastCall time.Time
}

// PageLimit is the page size used for paginated listings.
func (api *API) PageLimit() int {
	return api.pageLimit
}

func normaliseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't parse REST API URL: %w", err)
	}

	// Cloud serves everything under /wiki, Server/Data Center at the root.
	if strings.HasSuffix(u.Hostname(), ".atlassian.net") && !strings.HasSuffix(u.Path, "/wiki") {
		u.Path = strings.TrimRight(u.Path, "/") + "/wiki"
	}

	return u, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
