package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, PutJSON(ctx, s, KeyLicenses, []string{"lic-1", "lic-2"}))
	require.NoError(t, PutJSON(ctx, s, KeyDevices, []string{"dev-1"}))

	snap, err := Backup(ctx, s)
	require.NoError(t, err)
	assert.False(t, snap.CreatedAt.IsZero())

	// Mutate after the snapshot, then restore.
	require.NoError(t, PutJSON(ctx, s, KeyLicenses, []string{"lic-3"}))
	require.NoError(t, PutJSON(ctx, s, KeyAlerts, []string{"alert-1"}))

	_, err = Restore(ctx, s)
	require.NoError(t, err)

	licenses, err := GetJSON[[]string](ctx, s, KeyLicenses)
	require.NoError(t, err)
	assert.Equal(t, []string{"lic-1", "lic-2"}, licenses)

	// Alerts were empty at snapshot time, so restore clears them.
	alerts, err := GetJSON[[]string](ctx, s, KeyAlerts)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// Non-snapshot keys are untouched.
	require.NoError(t, PutJSON(ctx, s, KeyUsers, map[string]string{"a": "b"}))
	_, err = Backup(ctx, s)
	require.NoError(t, err)
	_, err = Restore(ctx, s)
	require.NoError(t, err)
	users, err := GetJSON[map[string]string](ctx, s, KeyUsers)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "b"}, users)
}

func TestRestore_NoSnapshot(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := Restore(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoBackup)
}
