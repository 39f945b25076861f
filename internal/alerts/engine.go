// Package alerts derives and tracks piracy alerts. Alerts are raised by
// the device registry (limit breaches, rapid activation, multi-location
// use) and only ever mutate in one direction: unresolved to resolved.
package alerts

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// Type classifies what a piracy alert is about.
type Type string

const (
	TypeMaxActivationsExceeded Type = "max_activations_exceeded"
	TypeSuspiciousActivity     Type = "suspicious_activity"
	TypeMultipleLocations      Type = "multiple_locations"
	TypeRapidActivation        Type = "rapid_activation"
)

// Severity grades an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is one recorded piracy signal. Repeated triggering of the same
// condition produces repeated records; there is no deduplication.
type Alert struct {
	ID          string    `json:"id"`
	LicenseID   string    `json:"licenseId"`
	Type        Type      `json:"type"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	Resolved    bool      `json:"resolved"`
}

// Publisher receives alert lifecycle events for live feeds. The events
// hub implements it; a nil publisher disables publishing.
type Publisher interface {
	Publish(event string, payload any)
}

// EventAlertCreated is the feed event emitted for every new alert.
const EventAlertCreated = "alert.created"

// Engine owns the alert collection.
type Engine struct {
	store     store.Store
	logger    *slog.Logger
	publisher Publisher
	now       func() time.Time

	raised metric.Int64Counter
}

// NewEngine creates an alert engine on top of the given store. publisher
// may be nil.
func NewEngine(s store.Store, logger *slog.Logger, publisher Publisher) *Engine {
	meter := otel.Meter("licenselock")
	raised, _ := meter.Int64Counter("licenselock.alerts.raised",
		metric.WithDescription("Piracy alerts raised, by type and severity"))

	return &Engine{
		store:     s,
		logger:    logger.With(slog.String("component", "alert_engine")),
		publisher: publisher,
		now:       time.Now,
		raised:    raised,
	}
}

// Create appends a new unresolved alert for the license.
func (e *Engine) Create(ctx context.Context, licenseID string, typ Type, description string, severity Severity) (*Alert, error) {
	alert := Alert{
		ID:          keygen.ID(),
		LicenseID:   licenseID,
		Type:        typ,
		Description: description,
		Severity:    severity,
		Timestamp:   e.now().UTC(),
		Resolved:    false,
	}

	err := store.UpdateJSON(ctx, e.store, store.KeyAlerts, func(all []Alert) ([]Alert, error) {
		return append(all, alert), nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WarnContext(ctx, "piracy alert raised",
		slog.String("alert_id", alert.ID),
		slog.String("license_id", licenseID),
		slog.String("type", string(typ)),
		slog.String("severity", string(severity)),
	)
	if e.raised != nil {
		e.raised.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("type", string(typ)),
				attribute.String("severity", string(severity)),
			))
	}
	if e.publisher != nil {
		e.publisher.Publish(EventAlertCreated, alert)
	}

	return &alert, nil
}

// Resolve marks the alert resolved. Resolving an unknown or already
// resolved alert is a silent no-op; the transition is one-way.
func (e *Engine) Resolve(ctx context.Context, alertID string) error {
	return store.UpdateJSON(ctx, e.store, store.KeyAlerts, func(all []Alert) ([]Alert, error) {
		for i := range all {
			if all[i].ID == alertID {
				all[i].Resolved = true
				break
			}
		}
		return all, nil
	})
}

// ListForLicense returns every alert recorded against the license.
func (e *Engine) ListForLicense(ctx context.Context, licenseID string) ([]Alert, error) {
	return e.list(ctx, map[string]struct{}{licenseID: {}})
}

// List returns every alert belonging to any of the given licenses, in
// insertion order.
func (e *Engine) List(ctx context.Context, licenseIDs []string) ([]Alert, error) {
	wanted := make(map[string]struct{}, len(licenseIDs))
	for _, id := range licenseIDs {
		wanted[id] = struct{}{}
	}
	return e.list(ctx, wanted)
}

// UnresolvedCount counts open alerts across the given licenses.
func (e *Engine) UnresolvedCount(ctx context.Context, licenseIDs []string) (int, error) {
	list, err := e.List(ctx, licenseIDs)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range list {
		if !a.Resolved {
			n++
		}
	}
	return n, nil
}

func (e *Engine) list(ctx context.Context, wanted map[string]struct{}) ([]Alert, error) {
	all, err := store.GetJSON[[]Alert](ctx, e.store, store.KeyAlerts)
	if err != nil {
		return nil, err
	}
	out := make([]Alert, 0, len(all))
	for _, a := range all {
		if _, ok := wanted[a.LicenseID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
