package roster

import (
	"context"
	"errors"
)

// ErrLinkNotFound is returned for unknown, expired or disabled links.
var ErrLinkNotFound = errors.New("one-time link not found")

// linkSource is the part of the roster a LinkRegistry needs.
type linkSource interface {
	FindOneTimeLink(ctx context.Context, token string) (ClientID, bool, error)
	EraseOneTimeLink(ctx context.Context, id ClientID) error
}

// LinkRegistry resolves and consumes single-use config links. Resolve and
// Consume are separate steps; two concurrent redemptions of one token may
// both succeed.
type LinkRegistry struct {
	enabled bool
	source  linkSource
}

// NewLinkRegistry returns a registry over source. When enabled is false,
// every token reports not found.
func NewLinkRegistry(enabled bool, source linkSource) *LinkRegistry {
	return &LinkRegistry{enabled: enabled, source: source}
}

// Enabled reports whether one-time links are switched on.
func (l *LinkRegistry) Enabled() bool { return l.enabled }

// Resolve returns the client that owns token.
func (l *LinkRegistry) Resolve(ctx context.Context, token string) (ClientID, error) {
	if !l.enabled {
		return "", ErrLinkNotFound
	}
	id, ok, err := l.source.FindOneTimeLink(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLinkNotFound
	}
	return id, nil
}

// Consume erases the client's link. Consuming twice, or consuming a link of
// a client that has since been deleted, is not an error.
func (l *LinkRegistry) Consume(ctx context.Context, id ClientID) error {
	if err := l.source.EraseOneTimeLink(ctx, id); err != nil && !errors.Is(err, ErrClientNotFound) {
		return err
	}
	return nil
}
