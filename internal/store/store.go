// Package store persists the small amount of state the commuter keeps between
// runs: the active reminder, the remembered station and the last known position.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Keys used by the application.
const (
	KeyActiveReminder    = "active_reminder"
	KeyRememberedStation = "remembered_station"
	KeyLastLocation      = "last_location"
)

// Store is a string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
