package queueaccess

import (
	"context"
	"fmt"

	"reelforge/internal/api"
	"reelforge/internal/queue"
)

// Session represents a job access handle and its cleanup function.
type Session struct {
	Access Access
	// Remote is true when calls go to a running daemon.
	Remote bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries the daemon API first, then falls back to direct
// store access. A daemon counts as present only if its status endpoint
// answers.
func OpenWithFallback(
	ctx context.Context,
	dial func() (*api.Client, error),
	openStore func() (queue.Store, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			if _, err := client.Status(ctx); err == nil {
				return Session{Access: NewAPIAccess(client), Remote: true}, nil
			}
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open job store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open job store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}
