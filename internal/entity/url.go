// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL that lives for
// a fixed time-to-live, and the error values shared by every layer.
package entity

import (
	"errors"
	"time"
)

// DefaultTTL is how long a shortened URL stays live after its creation.
const DefaultTTL = 24 * time.Hour

var (
	// ErrShortCodeExists is returned when attempting to save a URL with a short code that is already taken.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrURLNotFound is returned when no live URL matches the lookup.
	ErrURLNotFound = errors.New("url not found")
	// ErrEmptyOriginalURL is returned when a URL is shortened without an original URL.
	ErrEmptyOriginalURL = errors.New("original url is empty")
	// ErrStorage wraps failures of the underlying store (connectivity, query or decoding errors).
	ErrStorage = errors.New("storage error")
)

// URL represents a shortened URL.
type URL struct {
	ShortCode   string    // ShortCode is the generated code used to shorten the original URL.
	OriginalURL string    // OriginalURL is the full URL that the short code resolves to.
	Clicks      int64     // Clicks is the number of successful redirects through the short code.
	CreatedAt   time.Time // CreatedAt is the timestamp when the URL was created.
}

// ExpiresAt reports when the URL stops being live for the given ttl.
func (u *URL) ExpiresAt(ttl time.Duration) time.Time {
	return u.CreatedAt.Add(ttl)
}

// IsLive reports whether the URL has not yet expired at now.
// A URL expires once now - CreatedAt >= ttl.
func (u *URL) IsLive(now time.Time, ttl time.Duration) bool {
	return now.Before(u.ExpiresAt(ttl))
}

// Cutoff returns the creation time at or before which URLs are expired at now.
func Cutoff(now time.Time, ttl time.Duration) time.Time {
	return now.Add(-ttl)
}
