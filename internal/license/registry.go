package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"licenselock/internal/alerts"
	"licenselock/internal/audit"
	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// Registry manages the license collection. All mutations go through
// store.UpdateJSON so concurrent writers never lose each other's changes.
type Registry struct {
	store  store.Store
	audit  *audit.Log
	alerts *alerts.Engine
	logger *slog.Logger

	now func() time.Time
}

// NewRegistry builds a Registry on top of the given store. The audit log
// and alert engine are required; the registry records every mutation and
// reads unresolved alert counts for usage stats.
func NewRegistry(s store.Store, auditLog *audit.Log, engine *alerts.Engine, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  s,
		audit:  auditLog,
		alerts: engine,
		logger: logger,
		now:    time.Now,
	}
}

// Create issues a new license for userID with a freshly generated key.
// The key is regenerated until it does not collide with an existing one.
func (r *Registry) Create(ctx context.Context, userID, name string, maxActivations int, expiresAt *time.Time) (*License, error) {
	if maxActivations < 1 {
		return nil, ErrInvalidMaxActivations
	}

	lic := &License{
		ID:             keygen.ID(),
		Name:           name,
		MaxActivations: maxActivations,
		Activations:    0,
		Status:         StatusActive,
		CreatedAt:      r.now().UTC(),
		ExpiresAt:      expiresAt,
		UserID:         userID,
	}

	err := store.UpdateJSON(ctx, r.store, store.KeyLicenses, func(licenses []License) ([]License, error) {
		lic.Key = keygen.LicenseKey()
		for taken := true; taken; {
			taken = false
			for i := range licenses {
				if licenses[i].Key == lic.Key {
					lic.Key = keygen.LicenseKey()
					taken = true
					break
				}
			}
		}
		return append(licenses, *lic), nil
	})
	if err != nil {
		return nil, fmt.Errorf("create license: %w", err)
	}

	r.logger.InfoContext(ctx, "license created",
		slog.String("license_id", lic.ID),
		slog.String("user_id", userID),
		slog.Int("max_activations", maxActivations))
	r.audit.Record(ctx, userID, "CREATE", "license", lic.ID,
		fmt.Sprintf("Created license: %s", name), audit.SeverityInfo)

	return lic, nil
}

// Get returns the license with the given ID.
func (r *Registry) Get(ctx context.Context, id string) (*License, error) {
	licenses, err := store.GetJSON[[]License](ctx, r.store, store.KeyLicenses)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	for i := range licenses {
		if licenses[i].ID == id {
			lic := licenses[i]
			return &lic, nil
		}
	}
	return nil, ErrNotFound
}

// GetByKey returns the license with the given key string.
func (r *Registry) GetByKey(ctx context.Context, key string) (*License, error) {
	licenses, err := store.GetJSON[[]License](ctx, r.store, store.KeyLicenses)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	for i := range licenses {
		if licenses[i].Key == key {
			lic := licenses[i]
			return &lic, nil
		}
	}
	return nil, ErrNotFound
}

// List returns all licenses owned by userID, newest first.
func (r *Registry) List(ctx context.Context, userID string) ([]License, error) {
	licenses, err := store.GetJSON[[]License](ctx, r.store, store.KeyLicenses)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	out := make([]License, 0, len(licenses))
	for i := len(licenses) - 1; i >= 0; i-- {
		if licenses[i].UserID == userID {
			out = append(out, licenses[i])
		}
	}
	return out, nil
}

// Verify classifies a license key without mutating anything. An unknown
// key is invalid, not an error.
func (r *Registry) Verify(ctx context.Context, key string) (*VerifyResult, error) {
	lic, err := r.GetByKey(ctx, key)
	if err == ErrNotFound {
		return &VerifyResult{Valid: false, Status: VerifyInvalid, Reason: "License key not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if lic.Status == StatusExpired || (lic.ExpiresAt != nil && lic.ExpiresAt.Before(r.now())) {
		return &VerifyResult{Valid: false, Status: VerifyExpired, Reason: "License has expired"}, nil
	}
	if lic.Status != StatusActive {
		return &VerifyResult{Valid: false, Status: VerifyInvalid, Reason: "License is not active"}, nil
	}
	return &VerifyResult{Valid: true, Status: VerifyValid}, nil
}

// Renew extends a license by the given number of calendar months,
// counted from the current expiry or from now, whichever is later.
// Licenses without an expiry start the clock at now. Renewal always
// forces the status back to active.
func (r *Registry) Renew(ctx context.Context, userID, id string, months int) (*License, error) {
	if months < 1 {
		return nil, fmt.Errorf("renew license: months must be at least 1")
	}

	var renewed *License
	err := store.UpdateJSON(ctx, r.store, store.KeyLicenses, func(licenses []License) ([]License, error) {
		for i := range licenses {
			if licenses[i].ID != id {
				continue
			}
			base := r.now().UTC()
			if licenses[i].ExpiresAt != nil && licenses[i].ExpiresAt.After(base) {
				base = *licenses[i].ExpiresAt
			}
			expiry := base.AddDate(0, months, 0)
			licenses[i].ExpiresAt = &expiry
			licenses[i].Status = StatusActive
			lic := licenses[i]
			renewed = &lic
			return licenses, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}

	r.audit.Record(ctx, userID, "RENEW", "license", id,
		fmt.Sprintf("Renewed license for %d months", months), audit.SeverityInfo)
	return renewed, nil
}

// UpdateStatus overwrites a license's status, typically to suspend or
// reinstate it.
func (r *Registry) UpdateStatus(ctx context.Context, userID, id string, status Status) (*License, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update status: unknown status %q", status)
	}

	var updated *License
	err := store.UpdateJSON(ctx, r.store, store.KeyLicenses, func(licenses []License) ([]License, error) {
		for i := range licenses {
			if licenses[i].ID != id {
				continue
			}
			licenses[i].Status = status
			lic := licenses[i]
			updated = &lic
			return licenses, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}

	r.audit.Record(ctx, userID, "UPDATE", "license", id,
		fmt.Sprintf("Changed status to: %s", status), audit.SeverityInfo)
	return updated, nil
}

// Delete removes a license and cascades to every device bound to it.
// Devices of other licenses are untouched.
func (r *Registry) Delete(ctx context.Context, userID, id string) error {
	var name string
	err := store.UpdateJSON(ctx, r.store, store.KeyLicenses, func(licenses []License) ([]License, error) {
		for i := range licenses {
			if licenses[i].ID == id {
				name = licenses[i].Name
				return append(licenses[:i], licenses[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return err
	}

	err = store.UpdateJSON(ctx, r.store, store.KeyDevices, func(devices []Device) ([]Device, error) {
		kept := devices[:0]
		for _, d := range devices {
			if d.LicenseID != id {
				kept = append(kept, d)
			}
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("cascade device delete: %w", err)
	}

	r.logger.InfoContext(ctx, "license deleted",
		slog.String("license_id", id),
		slog.String("user_id", userID))
	r.audit.Record(ctx, userID, "DELETE", "license", id,
		fmt.Sprintf("Deleted license: %s", name), audit.SeverityWarning)
	return nil
}

// Stats aggregates activation and alert totals across all of a user's
// licenses.
func (r *Registry) Stats(ctx context.Context, userID string) (*UsageStats, error) {
	licenses, err := r.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(licenses))
	stats := &UsageStats{}
	for _, lic := range licenses {
		ids = append(ids, lic.ID)
		stats.TotalActivations += lic.Activations
	}

	devices, err := store.GetJSON[[]Device](ctx, r.store, store.KeyDevices)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	owned := make(map[string]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}
	for _, d := range devices {
		if owned[d.LicenseID] {
			stats.ActiveDevices++
		}
	}

	stats.AlertsCount, err = r.alerts.UnresolvedCount(ctx, ids)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
