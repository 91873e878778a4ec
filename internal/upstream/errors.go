package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSignedIn means the userinfo cookie is missing or unreadable
	ErrNotSignedIn = errors.New("upstream: not signed in")

	// ErrMalformedPage means a category response did not have the expected shape
	ErrMalformedPage = errors.New("upstream: malformed category page")

	// ErrNoSession is returned by FetchCategoryPage before ResolveSession succeeded
	ErrNoSession = errors.New("upstream: session not established")
)

// ParseError is returned when the bootstrap data on the light page cannot be read
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse session bootstrap: %s", e.Reason)
}
