// Package store provides the persistence layer for LicenseLock. Every
// entity collection is held as one serialized blob under a fixed key,
// and all mutations are whole-collection read-modify-write. The Update
// operation serializes those cycles per key, so two concurrent writers
// cannot silently clobber each other.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection keys. These mirror the original storage layout; there is no
// schema versioning, consumers read the whole blob and write it back.
const (
	KeyLicenses    = "licenselock_licenses"
	KeyDevices     = "licenselock_devices"
	KeyAlerts      = "licenselock_alerts"
	KeyAuditLog    = "licenselock_audit_log"
	KeyUsers       = "licenselock_users_db"
	KeyResetTokens = "licenselock_reset_tokens"
	KeySessions    = "licenselock_sessions"
	KeyAPIKeys     = "licenselock_api_keys"
	KeyTwoFactor   = "licenselock_2fa"
	KeyBackup      = "licenselock_backup"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store: closed")

// Store is the blob repository injected into every registry. Implementations
// must be safe for concurrent use, and Update must be atomic per key: the
// callback runs with that key locked from other Update/Put calls.
type Store interface {
	// Get returns the blob stored under key, or found=false if absent.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)

	// Put replaces the blob stored under key.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the blob stored under key. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Update atomically applies fn to the current blob under key and
	// stores the result. Returning nil data deletes the key. An error
	// from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, key string, fn func(data []byte, found bool) ([]byte, error)) error

	// Close releases any resources held by the store.
	Close() error
}

// GetJSON reads the collection stored under key into a value of type T.
// A missing blob yields the zero value, matching the original's
// "empty array if unset" reads.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	data, found, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if !found || len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return v, nil
}

// PutJSON serializes v and stores it under key.
func PutJSON[T any](ctx context.Context, s Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// UpdateJSON atomically transforms the collection stored under key. The
// callback receives the decoded value (zero value when absent) and
// returns its replacement.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(v T) (T, error)) error {
	return s.Update(ctx, key, func(data []byte, found bool) ([]byte, error) {
		var v T
		if found && len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("store: decode %s: %w", key, err)
			}
		}
		next, err := fn(v)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("store: encode %s: %w", key, err)
		}
		return out, nil
	})
}
