package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Bodies of interstitial pages served instead of content when Confluence (or the CDN in front
// of it) thinks we're a bot.
var challengeSignatures = []string{
	"captcha",
	"verify you are human",
	"are you a robot",
	"challenge-platform",
	"cf-chl",
	"checking your browser",
}

const maxErrorBody = 512

func (api *API) GetPageByID(ctx context.Context, opts GetPageByIDQuery) (*Page, error) {
	if opts.Expand == nil {
		opts.Expand = DefaultExpand
	}

	ep, err := api.getPageByIDEndpoint(opts)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't get single page endpoint: %w", err)
	}

	var page Page
	if err := api.getJSON(ctx, ep, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

func (api *API) getContent(ctx context.Context, opts ContentQuery) (*PageList, error) {
	ep, err := api.getContentEndpoint(opts)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't get content endpoint: %w", err)
	}

	var pageList PageList
	if err := api.getJSON(ctx, ep, &pageList); err != nil {
		return nil, err
	}

	return &pageList, nil
}

func (api *API) search(ctx context.Context, opts SearchQuery) (*PageList, error) {
	ep, err := api.getSearchEndpoint(opts)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't get search endpoint: %w", err)
	}

	var pageList PageList
	if err := api.getJSON(ctx, ep, &pageList); err != nil {
		return nil, err
	}

	return &pageList, nil
}

func (api *API) getSpaces(ctx context.Context, opts SpacesQuery) (*SpaceList, error) {
	ep, err := api.getSpaceEndpoint(opts)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't get spaces endpoint: %w", err)
	}

	var allSpaces SpaceList
	if err := api.getJSON(ctx, ep, &allSpaces); err != nil {
		return nil, err
	}

	return &allSpaces, nil
}

// CurrentUser return current user information
func (api *API) CurrentUser(ctx context.Context) (*User, error) {
	ep, err := api.getCurrentUserEndpoint()
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't get current user endpoint: %w", err)
	}

	var user User
	if err := api.getJSON(ctx, ep, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// DownloadAttachment fetches the raw bytes of an attachment, with the same retry policy as
// everything else.
func (api *API) DownloadAttachment(ctx context.Context, pageID, filename string) ([]byte, error) {
	ep, err := api.getAttachmentEndpoint(pageID, filename)
	if err != nil {
		return nil, err
	}

	return api.fetch(ctx, ep, true)
}

func (api *API) getJSON(ctx context.Context, ep *url.URL, v any) error {
	body, err := api.Fetch(ctx, ep)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("confluence: couldn't parse json response: %w", err)
	}

	return nil
}

// Fetch GETs a JSON endpoint, applying the throttle, retry and session-refresh policy:
//
//   - 5xx, 408 and transport errors are retried up to MaxRetries times, with exponential
//     backoff plus jitter.
//   - 429 is always retried after BaseDelay*RateLimitMultiplier (or Retry-After, if longer).
//     These don't count against MaxRetries; MaxRateLimitRetries is only a safety net.
//   - 401, 403 and bot challenges call the session refresher once, then retry.
//   - Any other 4xx is returned straight away as a *StatusError.
//
// When the budget runs out the error is a *RequestFailed.
func (api *API) Fetch(ctx context.Context, ep *url.URL) ([]byte, error) {
	return api.fetch(ctx, ep, false)
}

func (api *API) fetch(ctx context.Context, ep *url.URL, raw bool) ([]byte, error) {
	var (
		failures    int
		rateLimited int
		refreshed   bool
	)
	attempts := func() int { return failures + rateLimited + 1 }

	for {
		if err := api.wait(ctx); err != nil {
			return nil, err
		}

		body, err := api.request(ctx, ep, raw)
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var se *StatusError
		if !errors.As(err, &se) {
			// Connection reset, timeout, DNS hiccup...
			if failures >= api.maxRetries {
				return nil, &RequestFailed{URL: ep.String(), Attempts: attempts(), Last: err}
			}
			failures++
			if err := api.backoff(ctx, ep, failures, err); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case se.rateLimited():
			if rateLimited >= api.maxRateLimitRetries {
				return nil, &RequestFailed{URL: ep.String(), Attempts: attempts(), Last: err}
			}
			rateLimited++
			delay := api.baseDelay * time.Duration(api.rateLimitMultiplier)
			if se.RetryAfter > delay {
				delay = se.RetryAfter
			}
			api.Logger.Printf("rate limited on %s, waiting %s", ep.Path, delay)
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}

		case se.sessionProblem():
			if refreshed || api.refresher == nil {
				return nil, &RequestFailed{URL: ep.String(), Attempts: attempts(), Last: err}
			}
			refreshed = true
			api.Logger.Printf("%v; refreshing session", err)
			if rerr := api.refresh(ctx); rerr != nil {
				return nil, &RequestFailed{URL: ep.String(), Attempts: attempts(), Last: errors.Join(err, rerr)}
			}

		case se.transient():
			if failures >= api.maxRetries {
				return nil, &RequestFailed{URL: ep.String(), Attempts: attempts(), Last: err}
			}
			failures++
			if err := api.backoff(ctx, ep, failures, err); err != nil {
				return nil, err
			}

		default:
			return nil, se
		}
	}
}

// backoff sleeps base*2^(n-1), capped at maxDelay, plus up to one base delay of jitter.
func (api *API) backoff(ctx context.Context, ep *url.URL, n int, cause error) error {
	delay := api.backoffDelay(n)
	if api.baseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(api.baseDelay)))
	}
	api.Logger.Printf("attempt %d/%d on %s failed (%v), retrying in %s", n, api.maxRetries+1, ep.Path, cause, delay.Round(time.Millisecond))
	return sleepContext(ctx, delay)
}

func (api *API) backoffDelay(n int) time.Duration {
	delay := api.baseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= api.maxDelay {
			return api.maxDelay
		}
	}
	return min(delay, api.maxDelay)
}

// wait enforces the minimum gap between two calls.
func (api *API) wait(ctx context.Context) error {
	if api.throttle > 0 && !api.lastCall.IsZero() {
		if gap := api.throttle - time.Since(api.lastCall); gap > 0 {
			if err := sleepContext(ctx, gap); err != nil {
				return err
			}
		}
	}
	api.lastCall = time.Now()
	return nil
}

// Request implements the basic Request function
func (api *API) request(ctx context.Context, ep *url.URL, raw bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't instantiate http request: %w", err)
	}

	if raw {
		req.Header.Add("Accept", "*/*")
	} else {
		req.Header.Add("Accept", "application/json, */*")
	}

	// if user & token are not set, do not add authorization header
	if api.username != "" && api.token != "" {
		req.SetBasicAuth(api.username, api.token)
	} else if api.token != "" {
		req.Header.Set("Authorization", "Bearer "+api.token)
	}

	response, err := api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't perform http request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't read http response body: %w", err)
	}

	challenge := !raw && looksLikeChallenge(response.Header.Get("Content-Type"), body)

	if response.StatusCode >= 200 && response.StatusCode < 300 && !challenge {
		return body, nil
	}

	se := &StatusError{
		Method:     req.Method,
		URL:        ep.String(),
		StatusCode: response.StatusCode,
		Challenge:  challenge,
		RetryAfter: parseRetryAfter(response.Header.Get("Retry-After")),
	}
	if !challenge {
		se.Body = snippet(body)
	}
	return nil, se
}

func looksLikeChallenge(contentType string, body []byte) bool {
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// parseRetryAfter understands both delta-seconds and HTTP-date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
