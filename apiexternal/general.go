package apiexternal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"

	"github.com/Fenrix23/watchlist_compare/logger"
	"github.com/Fenrix23/watchlist_compare/slidingwindow"
)

// RLHTTPClient is a rate limited HTTP client struct.
// It contains fields for the underlying http.Client, name, timeout
// and the per-request rate limiter.
type RLHTTPClient struct {
	Clientname  string               // The name of the client
	Timeout     time.Duration        // The timeout duration
	client      *http.Client         // The underlying HTTP client
	Ratelimiter *slidingwindow.Limiter // The per-request rate limiter
}

const (
	// Retry/backoff parameters for transient failures.
	baseBackoffMs   = 200
	maxBackoffShift = 5
	retryJitterMaxMs = 150

	// browserUserAgent is sent on every outbound request. Letterboxd
	// serves a reduced page to unknown agents.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	maxRedirects = 5
)

var (
	ErrToWait   = errors.New("please wait")
	ErrNotFound = errors.New("not found")
	ErrInsecureScheme = errors.New("only https urls are allowed")
)

// NewClient creates a new HTTP client for making external requests. It
// configures redirect limits, timeouts and connection pooling; the optional
// rate limiter is consulted before every request.
func NewClient(clientname string, rl *slidingwindow.Limiter, timeoutseconds uint16) RLHTTPClient {
	if timeoutseconds == 0 {
		timeoutseconds = 30
	}
	return RLHTTPClient{
		Timeout:    time.Duration(timeoutseconds) * time.Second,
		Clientname: clientname,
		client: &http.Client{
			Timeout: time.Duration(timeoutseconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("stopped after too many redirects")
				}
				return nil
			},
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          50,
				MaxConnsPerHost:       50,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConnsPerHost:   runtime.GOMAXPROCS(0) + 1,
				ResponseHeaderTimeout: time.Duration(timeoutseconds) * time.Second,
			},
		},
		Ratelimiter: rl,
	}
}

// NewClientCustom wraps an existing http.Client with the rate limiting and
// retry behavior. Useful when the transport is managed elsewhere.
func NewClientCustom(clientname string, rl *slidingwindow.Limiter, hc *http.Client) RLHTTPClient {
	return RLHTTPClient{
		Clientname:  clientname,
		Timeout:     hc.Timeout,
		client:      hc,
		Ratelimiter: rl,
	}
}

// waitLimiter blocks until the client's rate limiter admits a request or
// the context is cancelled. Clients without a limiter pass immediately.
func (c *RLHTTPClient) waitLimiter(ctx context.Context) error {
	if c.Ratelimiter == nil {
		return nil
	}
	for attempt := 0; attempt < 20; attempt++ {
		ok, waitfor := c.Ratelimiter.Allow()
		if ok {
			return nil
		}
		if waitfor > 20*time.Second {
			return ErrToWait
		}
		if waitfor == 0 {
			waitfor = time.Second
		}
		waitfor += time.Duration(rand.Intn(retryJitterMaxMs)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitfor):
		}
	}
	logger.Logtype("warn", 1).
		Str("client", c.Clientname).
		Msg("Hit rate limit - retrys failed")
	return ErrToWait
}

// retryWait computes the backoff before the given attempt (0-based):
// exponential with base 200ms capped at shift 5, plus up to 150ms jitter.
func retryWait(attempt int) time.Duration {
	shift := attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	base := time.Duration(baseBackoffMs<<shift) * time.Millisecond
	return base + time.Duration(rand.Intn(retryJitterMaxMs))*time.Millisecond
}

// retryableStatus reports whether the response status warrants a retry.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// sanitizeErr strips the request URL from transport errors. URLs of scraped
// pages embed usernames and must not surface in errors or logs.
func sanitizeErr(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

// GetWithRetries issues a GET with up to maxRetries additional attempts on
// transient failures (connect/timeout errors, 429 and 5xx responses).
// Retry-After headers (seconds) override the computed backoff. Terminal
// statuses and the last unsuccessful response after exhaustion are returned
// to the caller, who decides whether a non-2xx response is an error.
func (c *RLHTTPClient) GetWithRetries(ctx context.Context, urlv string, maxRetries int) (*http.Response, error) {
	if err := checkHTTPS(urlv); err != nil {
		return nil, err
	}
	attempt := 0
	for {
		if err := c.waitLimiter(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlv, http.NoBody)
		if err != nil {
			return nil, sanitizeErr(err)
		}
		req.Header.Set("User-Agent", browserUserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt >= maxRetries {
				return nil, sanitizeErr(err)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryWait(attempt)):
			}
			attempt++
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if !retryableStatus(resp.StatusCode) || attempt >= maxRetries {
			// Caller owns the decision on terminal statuses and on the
			// last response after retries are exhausted.
			return resp, nil
		}
		wait := retryWait(attempt)
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, serr := strconv.Atoi(s); serr == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
				if c.Ratelimiter != nil {
					c.Ratelimiter.WaitTill(time.Now().Add(wait))
				}
			}
		}
		resp.Body.Close()
		logger.Logtype("debug", 0).
			Str("client", c.Clientname).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Msg("retrying transient response")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		attempt++
	}
}

func checkHTTPS(urlv string) error {
	u, err := url.Parse(urlv)
	if err != nil {
		return errors.New("invalid url")
	}
	if u.Scheme != "https" {
		return ErrInsecureScheme
	}
	return nil
}

// DoJSONType issues a rate-limited GET and decodes the JSON response body
// into T. Non-200 responses become errors carrying the status only.
func DoJSONType[T any](c *RLHTTPClient, ctx context.Context, urlv string) (T, error) {
	var result T
	resp, err := c.GetWithRetries(ctx, urlv, 3)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return result, ErrNotFound
		}
		return result, fmt.Errorf("http status error %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}
