package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"licenselock/internal/alerts"
	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// Piracy detection thresholds. These mirror the heuristics the alert
// review workflow is tuned for; changing them changes alert volume.
const (
	// rapidActivationWindow is how far back the rapid-activation check looks.
	rapidActivationWindow = 60 * time.Second
	// rapidActivationMax is the most activations allowed inside the window
	// before a rapid_activation alert is raised.
	rapidActivationMax = 3
	// multiLocationFactor scales maxActivations into the distinct-IP budget
	// for the multiple_locations check.
	multiLocationFactor = 2
)

// DeviceRegistry manages device activations. The activation ladder and
// the recomputed-count invariant both live here: a license's Activations
// field is derived from the device collection after every change.
type DeviceRegistry struct {
	store  store.Store
	alerts *alerts.Engine
	logger *slog.Logger

	now func() time.Time
}

// NewDeviceRegistry builds a DeviceRegistry. The alert engine receives
// the high-severity alert raised when an activation is refused at the
// limit, plus everything DetectAnomalies finds.
func NewDeviceRegistry(s store.Store, engine *alerts.Engine, logger *slog.Logger) *DeviceRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceRegistry{
		store:  s,
		alerts: engine,
		logger: logger,
		now:    time.Now,
	}
}

// Activate binds a hardware fingerprint to a license. Re-activating a
// HWID already bound to the license is idempotent and only refreshes
// lastSeen. A fingerprint beyond the activation budget is refused with
// ErrActivationLimit and raises a high-severity alert.
func (dr *DeviceRegistry) Activate(ctx context.Context, licenseID, hwid, deviceName string) (*Device, error) {
	lic, err := dr.getLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	if lic.Status != StatusActive {
		return nil, ErrNotActive
	}

	var (
		device      *Device
		count       int
		reactivated bool
		atLimit     bool
	)
	err = store.UpdateJSON(ctx, dr.store, store.KeyDevices, func(devices []Device) ([]Device, error) {
		for i := range devices {
			if devices[i].LicenseID == licenseID && devices[i].HWID == hwid {
				devices[i].LastSeen = dr.now().UTC()
				d := devices[i]
				device = &d
				reactivated = true
				return devices, nil
			}
		}

		for i := range devices {
			if devices[i].LicenseID == licenseID {
				count++
			}
		}
		if count >= lic.MaxActivations {
			atLimit = true
			return nil, ErrActivationLimit
		}

		nowUTC := dr.now().UTC()
		d := Device{
			ID:          keygen.ID(),
			LicenseID:   licenseID,
			HWID:        hwid,
			DeviceName:  deviceName,
			ActivatedAt: nowUTC,
			LastSeen:    nowUTC,
			IPAddress:   keygen.MockIP(),
			Trusted:     false,
		}
		device = &d
		count++
		return append(devices, d), nil
	})
	if atLimit {
		if _, aerr := dr.alerts.Create(ctx, licenseID, alerts.TypeMaxActivationsExceeded,
			fmt.Sprintf("Attempted activation beyond limit (%d max)", lic.MaxActivations),
			alerts.SeverityHigh); aerr != nil {
			dr.logger.ErrorContext(ctx, "failed to raise activation limit alert",
				slog.String("license_id", licenseID), slog.String("error", aerr.Error()))
		}
		return nil, ErrActivationLimit
	}
	if err != nil {
		return nil, fmt.Errorf("activate device: %w", err)
	}

	if !reactivated {
		if err := dr.setActivationCount(ctx, licenseID, count); err != nil {
			return nil, err
		}
		dr.logger.InfoContext(ctx, "device activated",
			slog.String("license_id", licenseID),
			slog.String("device_id", device.ID),
			slog.Int("activations", count))
	}
	return device, nil
}

// Deactivate removes a device and recomputes its license's activation
// count from the remaining devices.
func (dr *DeviceRegistry) Deactivate(ctx context.Context, deviceID string) error {
	var (
		licenseID string
		remaining int
	)
	err := store.UpdateJSON(ctx, dr.store, store.KeyDevices, func(devices []Device) ([]Device, error) {
		idx := -1
		for i := range devices {
			if devices[i].ID == deviceID {
				idx = i
				licenseID = devices[i].LicenseID
				break
			}
		}
		if idx < 0 {
			return nil, ErrDeviceNotFound
		}
		devices = append(devices[:idx], devices[idx+1:]...)
		for _, d := range devices {
			if d.LicenseID == licenseID {
				remaining++
			}
		}
		return devices, nil
	})
	if err != nil {
		return err
	}

	if err := dr.setActivationCount(ctx, licenseID, remaining); err != nil {
		return err
	}
	dr.logger.InfoContext(ctx, "device deactivated",
		slog.String("license_id", licenseID),
		slog.String("device_id", deviceID),
		slog.Int("activations", remaining))
	return nil
}

// ToggleTrust flips a device's trusted flag and returns the new state.
func (dr *DeviceRegistry) ToggleTrust(ctx context.Context, deviceID string) (*Device, error) {
	var toggled *Device
	err := store.UpdateJSON(ctx, dr.store, store.KeyDevices, func(devices []Device) ([]Device, error) {
		for i := range devices {
			if devices[i].ID == deviceID {
				devices[i].Trusted = !devices[i].Trusted
				d := devices[i]
				toggled = &d
				return devices, nil
			}
		}
		return nil, ErrDeviceNotFound
	})
	if err != nil {
		return nil, err
	}
	return toggled, nil
}

// ListForLicense returns every device bound to the license.
func (dr *DeviceRegistry) ListForLicense(ctx context.Context, licenseID string) ([]Device, error) {
	devices, err := store.GetJSON[[]Device](ctx, dr.store, store.KeyDevices)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.LicenseID == licenseID {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListForUser returns every device across all licenses owned by userID.
func (dr *DeviceRegistry) ListForUser(ctx context.Context, userID string) ([]Device, error) {
	licenses, err := store.GetJSON[[]License](ctx, dr.store, store.KeyLicenses)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	owned := make(map[string]bool)
	for _, lic := range licenses {
		if lic.UserID == userID {
			owned[lic.ID] = true
		}
	}

	devices, err := store.GetJSON[[]Device](ctx, dr.store, store.KeyDevices)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if owned[d.LicenseID] {
			out = append(out, d)
		}
	}
	return out, nil
}

// DetectAnomalies sweeps a license's devices for piracy signals and
// raises one alert per triggered heuristic:
//
//   - more devices than the activation budget allows (excluding the
//     device that initiated the sweep) raises max_activations_exceeded;
//   - more than rapidActivationMax activations inside the window raises
//     rapid_activation;
//   - distinct IPs beyond multiLocationFactor times the budget raises
//     multiple_locations.
func (dr *DeviceRegistry) DetectAnomalies(ctx context.Context, licenseID, excludeDeviceID, ipAddress string) ([]alerts.Alert, error) {
	lic, err := dr.getLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	devices, err := dr.ListForLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	var raised []alerts.Alert
	raise := func(typ alerts.Type, description string, severity alerts.Severity) error {
		a, err := dr.alerts.Create(ctx, licenseID, typ, description, severity)
		if err != nil {
			return err
		}
		raised = append(raised, *a)
		return nil
	}

	others := 0
	for _, d := range devices {
		if d.ID != excludeDeviceID {
			others++
		}
	}
	if others >= lic.MaxActivations {
		if err := raise(alerts.TypeMaxActivationsExceeded,
			"Multiple concurrent logins detected", alerts.SeverityHigh); err != nil {
			return raised, err
		}
	}

	cutoff := dr.now().Add(-rapidActivationWindow)
	recent := 0
	for _, d := range devices {
		if d.ActivatedAt.After(cutoff) {
			recent++
		}
	}
	if recent > rapidActivationMax {
		if err := raise(alerts.TypeRapidActivation,
			"Rapid activation attempts detected", alerts.SeverityMedium); err != nil {
			return raised, err
		}
	}

	ips := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.IPAddress != "" {
			ips[d.IPAddress] = true
		}
	}
	if ipAddress != "" {
		ips[ipAddress] = true
	}
	if len(ips) > multiLocationFactor*lic.MaxActivations {
		if err := raise(alerts.TypeMultipleLocations,
			"License used in multiple locations", alerts.SeverityMedium); err != nil {
			return raised, err
		}
	}

	if len(raised) > 0 {
		dr.logger.WarnContext(ctx, "piracy anomalies detected",
			slog.String("license_id", licenseID),
			slog.Int("alerts", len(raised)))
	}
	return raised, nil
}

func (dr *DeviceRegistry) getLicense(ctx context.Context, licenseID string) (*License, error) {
	licenses, err := store.GetJSON[[]License](ctx, dr.store, store.KeyLicenses)
	if err != nil {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	for i := range licenses {
		if licenses[i].ID == licenseID {
			lic := licenses[i]
			return &lic, nil
		}
	}
	return nil, ErrNotFound
}

func (dr *DeviceRegistry) setActivationCount(ctx context.Context, licenseID string, count int) error {
	err := store.UpdateJSON(ctx, dr.store, store.KeyLicenses, func(licenses []License) ([]License, error) {
		for i := range licenses {
			if licenses[i].ID == licenseID {
				licenses[i].Activations = count
				return licenses, nil
			}
		}
		// License deleted mid-flight; the cascade already removed devices.
		return licenses, nil
	})
	if err != nil {
		return fmt.Errorf("update activation count: %w", err)
	}
	return nil
}
