package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"

	"github.com/thawbot/thawbot/telemetry"
)

// Version is stamped into the User-Agent so platform operators can tell who
// is crawling them and where to complain.
const Version = "0.2"

// Client fetches chat platform pages with a proper User-Agent and bounded
// retry on rate limiting. One Client is shared across all rooms of a run;
// retry state is per request chain, so sharing is safe.
type Client struct {
	// HTTPClient is the underlying transport. Nil means a default client
	// with a 30s timeout.
	HTTPClient *http.Client

	// Scheme is the URL scheme used for platform requests. Defaults to
	// https; tests point it at plain-http fixtures.
	Scheme string

	// UserAgent overrides the default bot identification header.
	UserAgent string

	// MaxAttempts is the total number of HTTP attempts per request,
	// including the first. Defaults to 5.
	MaxAttempts int

	// BackoffBase is the initial retry interval after a 429 or 5xx.
	// Defaults to 1s, doubling per attempt.
	BackoffBase time.Duration

	// PageDelay is the pause before fetching each older transcript page.
	// The platform rate-limits impatient crawlers and the freeze monitor is
	// in no hurry, so this is never skipped. Defaults to 1s.
	PageDelay time.Duration

	// SearchDelay is the pause between successive search queries.
	// Defaults to 1s.
	SearchDelay time.Duration
}

// NewClient returns a Client with production defaults.
func NewClient() *Client {
	return &Client{
		MaxAttempts: 5,
		BackoffBase: time.Second,
		PageDelay:   time.Second,
		SearchDelay: time.Second,
	}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) scheme() string {
	if c.Scheme != "" {
		return c.Scheme
	}
	return "https"
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return fmt.Sprintf("Thawbot/%s (+https://github.com/thawbot/thawbot) Go/%s",
		Version, runtime.Version())
}

func (c *Client) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return 5
}

func (c *Client) backoffBase() time.Duration {
	if c.BackoffBase > 0 {
		return c.BackoffBase
	}
	return time.Second
}

// document fetches url and returns its parsed document. 429 and 5xx
// responses are retried with exponential backoff up to the attempt budget;
// other failure statuses surface immediately as a non-retryable
// NetworkError.
func (c *Client) document(ctx context.Context, url string) (*goquery.Document, error) {
	op := func() (*goquery.Document, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(&NetworkError{URL: url, Err: err})
		}
		req.Header.Set("User-Agent", c.userAgent())

		resp, err := c.http().Do(req)
		if err != nil {
			return nil, &NetworkError{URL: url, Retryable: true, Err: err}
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", slog.Any("err", err))
			}
		}()

		switch {
		case resp.StatusCode == http.StatusOK:
			doc, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return nil, backoff.Permanent(&MalformedPageError{URL: url, Reason: err.Error()})
			}
			return doc, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, &NetworkError{URL: url, Status: resp.StatusCode, Retryable: true}
		default:
			return nil, backoff.Permanent(&NetworkError{URL: url, Status: resp.StatusCode})
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffBase()

	doc, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxAttempts())),
		backoff.WithNotify(func(err error, wait time.Duration) {
			telemetry.FetchRetries.Inc()
			slog.Warn("fetch retry", slog.String("url", url), slog.Duration("wait", wait), slog.Any("err", err))
		}),
	)
	if err != nil {
		var ne *NetworkError
		if errors.As(err, &ne) {
			return nil, err
		}
		var me *MalformedPageError
		if errors.As(err, &me) {
			return nil, err
		}
		return nil, &NetworkError{URL: url, Err: err}
	}
	return doc, nil
}

// pause sleeps for d, or returns early with the context's error.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
