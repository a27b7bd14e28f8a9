// Package source holds the REST collaborators of the engine: the ticket
// listing, the chat API and the persisted local channel lists.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/hrnotify/internal/model"
)

// AuthError indicates that authentication has failed or expired.
// It is returned by the client when a 401 or 403 response is received.
type AuthError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%d) on %s: %s", e.Status, e.Endpoint, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is a non-2xx answer other than an auth failure.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.Status, e.Method, e.Path, e.Message)
}

// Source produces the current items of one channel.
type Source interface {
	// Channel returns the channel the items belong to.
	Channel() model.ChannelType

	// Fetch returns every item the source currently holds.
	Fetch(ctx context.Context) ([]model.NotificationItem, error)
}
