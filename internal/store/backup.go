package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoBackup is returned by Restore when no snapshot exists.
var ErrNoBackup = errors.New("store: no backup snapshot")

// snapshotKeys lists the collections covered by Backup and Restore.
// Account and session data is deliberately excluded; a restore must not
// log anyone out or resurrect deleted accounts.
var snapshotKeys = []string{KeyLicenses, KeyDevices, KeyAlerts}

// Snapshot is one point-in-time copy of the licensing collections.
type Snapshot struct {
	CreatedAt   time.Time                  `json:"createdAt"`
	Collections map[string]json.RawMessage `json:"collections"`
}

// Backup copies the license, device and alert collections into the
// backup key, replacing any previous snapshot.
func Backup(ctx context.Context, s Store) (*Snapshot, error) {
	snap := Snapshot{
		CreatedAt:   time.Now().UTC(),
		Collections: make(map[string]json.RawMessage, len(snapshotKeys)),
	}
	for _, key := range snapshotKeys {
		data, found, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found || len(data) == 0 {
			data = []byte("null")
		}
		snap.Collections[key] = json.RawMessage(data)
	}
	if err := PutJSON(ctx, s, KeyBackup, snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Restore overwrites the licensing collections with the stored
// snapshot. Collections absent from the snapshot are deleted.
func Restore(ctx context.Context, s Store) (*Snapshot, error) {
	snap, err := GetJSON[*Snapshot](ctx, s, KeyBackup)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNoBackup
	}
	for _, key := range snapshotKeys {
		data, ok := snap.Collections[key]
		if !ok || string(data) == "null" {
			if err := s.Delete(ctx, key); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.Put(ctx, key, data); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
