package fetcher

import "errors"

// Sentinel errors for fetch failures. They are carried inside
// *entity.FetchError so callers can match on either.
var (
	// ErrInvalidURL indicates the URL format is invalid or uses an unsupported scheme.
	ErrInvalidURL = errors.New("invalid URL or unsupported scheme")

	// ErrPrivateIP indicates the URL resolves to a private IP address.
	ErrPrivateIP = errors.New("private IP access denied (SSRF prevention)")

	// ErrTooManyRedirects indicates the redirect chain exceeded the configured maximum.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge indicates the response body exceeded the size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrTimeout indicates the request exceeded the configured timeout.
	ErrTimeout = errors.New("request timeout")

	// ErrUnexpectedStatus indicates the server answered with a status other
	// than 200. FetchError.StatusCode carries the code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrEmptyBody indicates the server answered 200 with no content.
	ErrEmptyBody = errors.New("empty response body")
)
