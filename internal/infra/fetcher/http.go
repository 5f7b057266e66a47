package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"sonde-catalog/internal/domain/entity"
	"sonde-catalog/internal/resilience/circuitbreaker"
	"sonde-catalog/internal/resilience/retry"
)

// HTTPFetcher retrieves raw report and listing documents over HTTP(S).
//
// Features:
//   - SSRF prevention via URL validation, including redirect targets
//   - One circuit breaker per archive host; only host failures count
//   - Token bucket rate limiting towards archive hosts
//   - Size limiting to prevent memory exhaustion
//
// Thread safety: HTTPFetcher is safe for concurrent use.
type HTTPFetcher struct {
	client   *http.Client
	breakers *circuitbreaker.Group
	limiter  *rate.Limiter
	config   Config
}

type fetchResult struct {
	data        []byte
	contentType string
}

// NewHTTPFetcher creates a fetcher for individual reports.
func NewHTTPFetcher(config Config) *HTTPFetcher {
	return NewHTTPFetcherWithBreaker(config, circuitbreaker.ReportFetchConfig())
}

// NewHTTPFetcherWithBreaker creates a fetcher whose per-host breakers are
// built from cbConfig. The listing fetcher is created with
// circuitbreaker.ListingFetchConfig so a broken archive index and the
// reports behind it are tracked apart. cbConfig.IsFailure is replaced by
// the fetcher's own classification.
func NewHTTPFetcherWithBreaker(config Config, cbConfig circuitbreaker.Config) *HTTPFetcher {
	cbConfig.IsFailure = hostFailure

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	f := &HTTPFetcher{
		breakers: circuitbreaker.NewGroup(cbConfig),
		limiter:  rate.NewLimiter(limit, burst),
		config:   config,
	}

	f.client = &http.Client{
		Timeout: config.Timeout + 5*time.Second, // per-request context fires first
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.config.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			if err := validateURL(req.URL.String(), f.config.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}

	return f
}

// Fetch retrieves the document at urlStr.
//
// A URL that is not a well-formed http(s) URL yields an error wrapping
// entity.ErrInvalidInput. Every other failure, including non-200 statuses,
// an empty body or an open circuit, is returned as *entity.FetchError. Status
// failures set FetchError.StatusCode and wrap ErrUnexpectedStatus.
func (f *HTTPFetcher) Fetch(ctx context.Context, urlStr string) (entity.RawContent, error) {
	u, err := ValidateSourceURL(urlStr)
	if err != nil {
		return entity.RawContent{}, fmt.Errorf("%w: %w", entity.ErrInvalidInput, err)
	}
	if err := validateURL(urlStr, f.config.DenyPrivateIPs); err != nil {
		return entity.RawContent{}, &entity.FetchError{URL: urlStr, Err: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return entity.RawContent{}, &entity.FetchError{URL: urlStr, Err: err}
	}

	res, err := circuitbreaker.Do(f.breakers.Get(u.Host), func() (fetchResult, error) {
		return f.doFetch(ctx, urlStr)
	})
	if err != nil {
		var fetchErr *entity.FetchError
		if errors.As(err, &fetchErr) {
			return entity.RawContent{}, err
		}
		return entity.RawContent{}, &entity.FetchError{URL: urlStr, Err: err}
	}

	return entity.RawContent{
		URL:         urlStr,
		Filename:    filenameFromPath(u),
		ContentType: res.contentType,
		Data:        res.data,
	}, nil
}

func (f *HTTPFetcher) doFetch(ctx context.Context, urlStr string) (fetchResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fetchResult{}, fmt.Errorf("%w: failed to create request: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && reqCtx.Err() == context.DeadlineExceeded {
			return fetchResult{}, fmt.Errorf("%w: request exceeded %v: %w", ErrTimeout, f.config.Timeout, context.DeadlineExceeded)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			return fetchResult{}, urlErr.Err
		}
		return fetchResult{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fetchResult{}, &entity.FetchError{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrUnexpectedStatus, http.StatusText(resp.StatusCode)),
		}
	}

	limitedReader := io.LimitReader(resp.Body, f.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return fetchResult{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodySize {
		return fetchResult{}, fmt.Errorf("%w: response size exceeds limit %d bytes", ErrBodyTooLarge, f.config.MaxBodySize)
	}
	if len(body) == 0 {
		return fetchResult{}, ErrEmptyBody
	}

	return fetchResult{data: body, contentType: resp.Header.Get("Content-Type")}, nil
}

// hostFailure reports whether err says the archive host is unhealthy.
// A missing report, a body that is empty or too large and a rejected
// redirect are answers from a working host and leave its breaker alone.
func hostFailure(err error) bool {
	var fetchErr *entity.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode > 0 {
		return retry.RetryableStatus(fetchErr.StatusCode)
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrBodyTooLarge),
		errors.Is(err, ErrTooManyRedirects),
		errors.Is(err, ErrPrivateIP),
		errors.Is(err, ErrInvalidURL):
		return false
	}
	return true
}

// FilenameFromURL returns the last path segment of a report URL, or "" when
// the URL has no file component.
func FilenameFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return filenameFromPath(u)
}

func filenameFromPath(u *url.URL) string {
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}
	return path.Base(u.Path)
}
