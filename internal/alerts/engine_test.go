package alerts

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licenselock/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePublisher) Publish(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func newTestEngine(t *testing.T) (*Engine, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store.NewMemoryStore(), logger, pub), pub
}

func TestCreateAppendsUnresolved(t *testing.T) {
	ctx := context.Background()
	engine, pub := newTestEngine(t)

	alert, err := engine.Create(ctx, "lic-1", TypeMaxActivationsExceeded, "over the cap", SeverityHigh)
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.False(t, alert.Resolved)
	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.WithinDuration(t, time.Now(), alert.Timestamp, time.Minute)

	list, err := engine.ListForLicense(ctx, "lic-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alert.ID, list[0].ID)

	assert.Equal(t, []string{EventAlertCreated}, pub.events)
}

func TestCreateNeverDeduplicates(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	for i := 0; i < 3; i++ {
		_, err := engine.Create(ctx, "lic-1", TypeRapidActivation, "burst", SeverityMedium)
		require.NoError(t, err)
	}

	list, err := engine.ListForLicense(ctx, "lic-1")
	require.NoError(t, err)
	assert.Len(t, list, 3, "identical conditions must produce repeated records")
}

func TestResolveIsOneWayAndIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	alert, err := engine.Create(ctx, "lic-1", TypeMultipleLocations, "spread out", SeverityMedium)
	require.NoError(t, err)

	require.NoError(t, engine.Resolve(ctx, alert.ID))

	list, err := engine.ListForLicense(ctx, "lic-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Resolved)

	// Resolving again, or resolving something unknown, is a no-op.
	require.NoError(t, engine.Resolve(ctx, alert.ID))
	require.NoError(t, engine.Resolve(ctx, "no-such-alert"))

	list, err = engine.ListForLicense(ctx, "lic-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Resolved)
}

func TestListFiltersByLicense(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	_, err := engine.Create(ctx, "lic-1", TypeRapidActivation, "a", SeverityMedium)
	require.NoError(t, err)
	_, err = engine.Create(ctx, "lic-2", TypeSuspiciousActivity, "b", SeverityLow)
	require.NoError(t, err)
	_, err = engine.Create(ctx, "lic-3", TypeMaxActivationsExceeded, "c", SeverityHigh)
	require.NoError(t, err)

	list, err := engine.List(ctx, []string{"lic-1", "lic-3"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "lic-1", list[0].LicenseID)
	assert.Equal(t, "lic-3", list[1].LicenseID)

	empty, err := engine.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUnresolvedCount(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	first, err := engine.Create(ctx, "lic-1", TypeRapidActivation, "a", SeverityMedium)
	require.NoError(t, err)
	_, err = engine.Create(ctx, "lic-1", TypeRapidActivation, "b", SeverityMedium)
	require.NoError(t, err)

	require.NoError(t, engine.Resolve(ctx, first.ID))

	n, err := engine.UnresolvedCount(ctx, []string{"lic-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
