package license

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licenselock/internal/alerts"
	"licenselock/internal/audit"
	"licenselock/internal/store"
)

type testEnv struct {
	store    store.Store
	registry *Registry
	devices  *DeviceRegistry
	alerts   *alerts.Engine
	audit    *audit.Log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := alerts.NewEngine(s, logger, nil)
	auditLog := audit.NewLog(s, logger, nil)

	return &testEnv{
		store:    s,
		registry: NewRegistry(s, auditLog, engine, logger),
		devices:  NewDeviceRegistry(s, engine, logger),
		alerts:   engine,
		audit:    auditLog,
	}
}

func TestCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro Plan", 3, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, lic.ID)
	assert.Len(t, lic.Key, 23)
	assert.Equal(t, "Pro Plan", lic.Name)
	assert.Equal(t, 3, lic.MaxActivations)
	assert.Equal(t, 0, lic.Activations)
	assert.Equal(t, StatusActive, lic.Status)
	assert.Nil(t, lic.ExpiresAt)
	assert.Equal(t, "user-1", lic.UserID)

	stored, err := env.registry.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.Key, stored.Key)

	entries, err := env.audit.Entries(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CREATE", entries[0].Action)
	assert.Equal(t, lic.ID, entries[0].ResourceID)
}

func TestCreateRejectsZeroActivationBudget(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Create(context.Background(), "user-1", "Bad", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxActivations)

	_, err = env.registry.Create(context.Background(), "user-1", "Worse", -5, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxActivations)
}

func TestListIsScopedToUserNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.registry.Create(ctx, "user-1", "First", 1, nil)
	require.NoError(t, err)
	second, err := env.registry.Create(ctx, "user-1", "Second", 1, nil)
	require.NoError(t, err)
	_, err = env.registry.Create(ctx, "user-2", "Other", 1, nil)
	require.NoError(t, err)

	licenses, err := env.registry.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, licenses, 2)
	assert.Equal(t, second.ID, licenses[0].ID)
	assert.Equal(t, first.ID, licenses[1].ID)
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)

	active, err := env.registry.Create(ctx, "user-1", "Active", 1, &future)
	require.NoError(t, err)
	forever, err := env.registry.Create(ctx, "user-1", "Forever", 1, nil)
	require.NoError(t, err)
	lapsed, err := env.registry.Create(ctx, "user-1", "Lapsed", 1, &past)
	require.NoError(t, err)
	suspended, err := env.registry.Create(ctx, "user-1", "Suspended", 1, nil)
	require.NoError(t, err)
	_, err = env.registry.UpdateStatus(ctx, "user-1", suspended.ID, StatusSuspended)
	require.NoError(t, err)
	marked, err := env.registry.Create(ctx, "user-1", "Marked", 1, &future)
	require.NoError(t, err)
	_, err = env.registry.UpdateStatus(ctx, "user-1", marked.ID, StatusExpired)
	require.NoError(t, err)

	tests := []struct {
		name   string
		key    string
		valid  bool
		status VerifyStatus
	}{
		{"unknown key", "AAAAA-BBBBB-CCCCC-DDDDD", false, VerifyInvalid},
		{"active with future expiry", active.Key, true, VerifyValid},
		{"active without expiry", forever.Key, true, VerifyValid},
		{"past expiry date", lapsed.Key, false, VerifyExpired},
		{"expired status wins over date", marked.Key, false, VerifyExpired},
		{"suspended", suspended.Key, false, VerifyInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.registry.Verify(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestRenewExtendsFromCurrentExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expiry := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	lic, err := env.registry.Create(ctx, "user-1", "Pro", 1, &expiry)
	require.NoError(t, err)

	env.registry.now = func() time.Time {
		return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	}
	renewed, err := env.registry.Renew(ctx, "user-1", lic.ID, 3)
	require.NoError(t, err)

	want := time.Date(2027, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NotNil(t, renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.Equal(want), "got %v, want %v", renewed.ExpiresAt, want)
	assert.Equal(t, StatusActive, renewed.Status)
}

func TestRenewLapsedLicenseStartsFromNow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lic, err := env.registry.Create(ctx, "user-1", "Lapsed", 1, &expiry)
	require.NoError(t, err)
	_, err = env.registry.UpdateStatus(ctx, "user-1", lic.ID, StatusExpired)
	require.NoError(t, err)

	now := time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC)
	env.registry.now = func() time.Time { return now }

	renewed, err := env.registry.Renew(ctx, "user-1", lic.ID, 1)
	require.NoError(t, err)

	want := now.AddDate(0, 1, 0)
	require.NotNil(t, renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.Equal(want))
	assert.Equal(t, StatusActive, renewed.Status)

	res, err := env.registry.Verify(ctx, lic.Key)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestRenewPerpetualLicenseStartsFromNow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Perpetual", 1, nil)
	require.NoError(t, err)

	now := time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC)
	env.registry.now = func() time.Time { return now }

	renewed, err := env.registry.Renew(ctx, "user-1", lic.ID, 12)
	require.NoError(t, err)
	require.NotNil(t, renewed.ExpiresAt)
	assert.True(t, renewed.ExpiresAt.Equal(now.AddDate(0, 12, 0)))
}

func TestRenewUnknownLicense(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.Renew(context.Background(), "user-1", "nope", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro", 1, nil)
	require.NoError(t, err)

	updated, err := env.registry.UpdateStatus(ctx, "user-1", lic.ID, StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, updated.Status)

	_, err = env.registry.UpdateStatus(ctx, "user-1", lic.ID, Status("bogus"))
	assert.Error(t, err)

	_, err = env.registry.UpdateStatus(ctx, "user-1", "missing", StatusActive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascadesToOwnDevicesOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doomed, err := env.registry.Create(ctx, "user-1", "Doomed", 5, nil)
	require.NoError(t, err)
	kept, err := env.registry.Create(ctx, "user-1", "Kept", 5, nil)
	require.NoError(t, err)

	_, err = env.devices.Activate(ctx, doomed.ID, "hwid-a", "Laptop")
	require.NoError(t, err)
	_, err = env.devices.Activate(ctx, doomed.ID, "hwid-b", "Desktop")
	require.NoError(t, err)
	survivor, err := env.devices.Activate(ctx, kept.ID, "hwid-c", "Tablet")
	require.NoError(t, err)

	require.NoError(t, env.registry.Delete(ctx, "user-1", doomed.ID))

	_, err = env.registry.Get(ctx, doomed.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	orphans, err := env.devices.ListForLicense(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	remaining, err := env.devices.ListForLicense(ctx, kept.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, survivor.ID, remaining[0].ID)

	assert.ErrorIs(t, env.registry.Delete(ctx, "user-1", "missing"), ErrNotFound)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.registry.Create(ctx, "user-1", "A", 5, nil)
	require.NoError(t, err)
	b, err := env.registry.Create(ctx, "user-1", "B", 5, nil)
	require.NoError(t, err)
	other, err := env.registry.Create(ctx, "user-2", "Other", 5, nil)
	require.NoError(t, err)

	_, err = env.devices.Activate(ctx, a.ID, "hwid-1", "One")
	require.NoError(t, err)
	_, err = env.devices.Activate(ctx, a.ID, "hwid-2", "Two")
	require.NoError(t, err)
	_, err = env.devices.Activate(ctx, b.ID, "hwid-3", "Three")
	require.NoError(t, err)
	_, err = env.devices.Activate(ctx, other.ID, "hwid-4", "Theirs")
	require.NoError(t, err)

	_, err = env.alerts.Create(ctx, a.ID, alerts.TypeRapidActivation, "test", alerts.SeverityMedium)
	require.NoError(t, err)
	_, err = env.alerts.Create(ctx, other.ID, alerts.TypeRapidActivation, "test", alerts.SeverityMedium)
	require.NoError(t, err)

	stats, err := env.registry.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalActivations)
	assert.Equal(t, 3, stats.ActiveDevices)
	assert.Equal(t, 1, stats.AlertsCount)
}
