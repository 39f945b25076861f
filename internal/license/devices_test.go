package license

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licenselock/internal/alerts"
	"licenselock/internal/store"
)

func TestActivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro", 2, nil)
	require.NoError(t, err)

	dev, err := env.devices.Activate(ctx, lic.ID, "hwid-1", "Work Laptop")
	require.NoError(t, err)
	assert.NotEmpty(t, dev.ID)
	assert.Equal(t, lic.ID, dev.LicenseID)
	assert.Equal(t, "hwid-1", dev.HWID)
	assert.Equal(t, "Work Laptop", dev.DeviceName)
	assert.False(t, dev.Trusted)
	assert.True(t, strings.HasPrefix(dev.IPAddress, "192.168."))

	stored, err := env.registry.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Activations)
}

func TestActivateUnknownLicense(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.devices.Activate(context.Background(), "missing", "hwid-1", "Laptop")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivateRefusesInactiveLicense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro", 2, nil)
	require.NoError(t, err)
	_, err = env.registry.UpdateStatus(ctx, "user-1", lic.ID, StatusSuspended)
	require.NoError(t, err)

	_, err = env.devices.Activate(ctx, lic.ID, "hwid-1", "Laptop")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestActivateSameHWIDIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro", 1, nil)
	require.NoError(t, err)

	first, err := env.devices.Activate(ctx, lic.ID, "hwid-1", "Laptop")
	require.NoError(t, err)

	env.devices.now = func() time.Time {
		return first.LastSeen.Add(time.Hour)
	}
	second, err := env.devices.Activate(ctx, lic.ID, "hwid-1", "Laptop")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LastSeen.After(first.LastSeen))

	stored, err := env.registry.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Activations)

	devices, err := env.devices.ListForLicense(ctx, lic.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestActivateAtLimitRaisesOneHighAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Solo", 1, nil)
	require.NoError(t, err)

	_, err = env.devices.Activate(ctx, lic.ID, "hwid-1", "Laptop")
	require.NoError(t, err)

	_, err = env.devices.Activate(ctx, lic.ID, "hwid-2", "Desktop")
	assert.ErrorIs(t, err, ErrActivationLimit)

	stored, err := env.registry.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Activations)

	raised, err := env.alerts.ListForLicense(ctx, lic.ID)
	require.NoError(t, err)
	require.Len(t, raised, 1)
	assert.Equal(t, alerts.TypeMaxActivationsExceeded, raised[0].Type)
	assert.Equal(t, alerts.SeverityHigh, raised[0].Severity)
	assert.False(t, raised[0].Resolved)
}

func TestDeactivateRecomputesActivationCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro", 3, nil)
	require.NoError(t, err)

	one, err := env.devices.Activate(ctx, lic.ID, "hwid-1", "One")
	require.NoError(t, err)
	_, err = env.devices.Activate(ctx, lic.ID, "hwid-2", "Two")
	require.NoError(t, err)

	require.NoError(t, env.devices.Deactivate(ctx, one.ID))

	stored, err := env.registry.Get(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Activations)

	devices, err := env.devices.ListForLicense(ctx, lic.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "hwid-2", devices[0].HWID)

	// Freed slot is immediately reusable.
	_, err = env.devices.Activate(ctx, lic.ID, "hwid-3", "Three")
	require.NoError(t, err)

	assert.ErrorIs(t, env.devices.Deactivate(ctx, "missing"), ErrDeviceNotFound)
}

func TestToggleTrust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Pro", 1, nil)
	require.NoError(t, err)
	dev, err := env.devices.Activate(ctx, lic.ID, "hwid-1", "Laptop")
	require.NoError(t, err)

	toggled, err := env.devices.ToggleTrust(ctx, dev.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Trusted)

	toggled, err = env.devices.ToggleTrust(ctx, dev.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Trusted)

	_, err = env.devices.ToggleTrust(ctx, "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestListForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mine, err := env.registry.Create(ctx, "user-1", "Mine", 2, nil)
	require.NoError(t, err)
	theirs, err := env.registry.Create(ctx, "user-2", "Theirs", 2, nil)
	require.NoError(t, err)

	_, err = env.devices.Activate(ctx, mine.ID, "hwid-1", "Laptop")
	require.NoError(t, err)
	_, err = env.devices.Activate(ctx, theirs.ID, "hwid-2", "Other")
	require.NoError(t, err)

	devices, err := env.devices.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, mine.ID, devices[0].LicenseID)
}

// seedDevices writes device records directly so tests can control
// timestamps and IPs without going through the activation ladder.
func seedDevices(t *testing.T, s store.Store, devices []Device) {
	t.Helper()
	require.NoError(t, store.PutJSON(context.Background(), s, store.KeyDevices, devices))
}

func TestDetectAnomaliesConcurrentUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Solo", 1, nil)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	seedDevices(t, env.store, []Device{
		{ID: "d1", LicenseID: lic.ID, HWID: "h1", ActivatedAt: old, IPAddress: "10.0.0.1"},
		{ID: "d2", LicenseID: lic.ID, HWID: "h2", ActivatedAt: old, IPAddress: "10.0.0.1"},
	})

	raised, err := env.devices.DetectAnomalies(ctx, lic.ID, "d1", "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, raised, 1)
	assert.Equal(t, alerts.TypeMaxActivationsExceeded, raised[0].Type)
	assert.Equal(t, alerts.SeverityHigh, raised[0].Severity)
}

func TestDetectAnomaliesRapidActivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Team", 10, nil)
	require.NoError(t, err)

	now := time.Now()
	seedDevices(t, env.store, []Device{
		{ID: "d1", LicenseID: lic.ID, ActivatedAt: now.Add(-10 * time.Second), IPAddress: "10.0.0.1"},
		{ID: "d2", LicenseID: lic.ID, ActivatedAt: now.Add(-20 * time.Second), IPAddress: "10.0.0.1"},
		{ID: "d3", LicenseID: lic.ID, ActivatedAt: now.Add(-30 * time.Second), IPAddress: "10.0.0.1"},
		{ID: "d4", LicenseID: lic.ID, ActivatedAt: now.Add(-40 * time.Second), IPAddress: "10.0.0.1"},
	})

	raised, err := env.devices.DetectAnomalies(ctx, lic.ID, "", "")
	require.NoError(t, err)
	require.Len(t, raised, 1)
	assert.Equal(t, alerts.TypeRapidActivation, raised[0].Type)
	assert.Equal(t, alerts.SeverityMedium, raised[0].Severity)
}

func TestDetectAnomaliesOldActivationsAreQuiet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Team", 10, nil)
	require.NoError(t, err)

	old := time.Now().Add(-5 * time.Minute)
	seedDevices(t, env.store, []Device{
		{ID: "d1", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.1"},
		{ID: "d2", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.1"},
		{ID: "d3", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.1"},
		{ID: "d4", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.1"},
	})

	raised, err := env.devices.DetectAnomalies(ctx, lic.ID, "", "")
	require.NoError(t, err)
	assert.Empty(t, raised)
}

func TestDetectAnomaliesMultipleLocations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lic, err := env.registry.Create(ctx, "user-1", "Team", 2, nil)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	seedDevices(t, env.store, []Device{
		{ID: "d1", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.1"},
		{ID: "d2", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.2"},
		{ID: "d3", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.3"},
		{ID: "d4", LicenseID: lic.ID, ActivatedAt: old, IPAddress: "10.0.0.4"},
	})

	// Four known IPs plus the caller's fifth exceeds twice the budget.
	raised, err := env.devices.DetectAnomalies(ctx, lic.ID, "", "10.0.0.5")
	require.NoError(t, err)

	var types []alerts.Type
	for _, a := range raised {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, alerts.TypeMultipleLocations)
	assert.NotContains(t, types, alerts.TypeRapidActivation)
}

func TestDetectAnomaliesUnknownLicense(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.devices.DetectAnomalies(context.Background(), "missing", "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}
