package homeconnect

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken means no credentials are available at all. For physical
	// appliances a refresh token has to be configured before the client
	// can talk to the API.
	ErrNoToken = errors.New("homeconnect: no refresh token configured")

	// ErrAuthorization means the API rejected our token and a refresh did
	// not help. The refresh token has likely been revoked.
	ErrAuthorization = errors.New("homeconnect: authorization failed")

	// ErrNotFound covers 404s, including the vendor's way of saying no
	// program is active or selected right now.
	ErrNotFound = errors.New("homeconnect: resource not found")

	// ErrRateLimited means the API returned 429. Callers should back off.
	ErrRateLimited = errors.New("homeconnect: rate limited")
)

// APIError carries the error body the Home Connect API returns alongside
// non-2xx status codes. RetryAfter holds the Retry-After header in seconds
// when the API rate limits.
type APIError struct {
	StatusCode  int    `json:"-"`
	RetryAfter  int    `json:"-"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("homeconnect: api error %d %s: %s", e.StatusCode, e.Key, e.Description)
	}
	return fmt.Sprintf("homeconnect: api error %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401, 403:
		return ErrAuthorization
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	}
	return nil
}

func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
