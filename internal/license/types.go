// Package license owns the license and device-activation lifecycles:
// creation, verification, renewal, status changes, cascade deletion,
// activation-limit enforcement and the piracy detection sweeps.
package license

import "time"

// Status is the lifecycle state of a license.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is one of the closed status values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired:
		return true
	}
	return false
}

// License is one issued license key and its activation budget.
//
// Invariant: Activations always equals the number of Device records
// bound to this license; it is recomputed from the device collection on
// every change, never adjusted in place.
type License struct {
	ID             string     `json:"id"`
	Key            string     `json:"key"`
	Name           string     `json:"name"`
	MaxActivations int        `json:"maxActivations"`
	Activations    int        `json:"activations"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	UserID         string     `json:"userId"`
}

// Device is one activation of a license on a machine, keyed by the
// hardware fingerprint. HWIDs are unique per license.
type Device struct {
	ID          string    `json:"id"`
	LicenseID   string    `json:"licenseId"`
	HWID        string    `json:"hwid"`
	DeviceName  string    `json:"deviceName"`
	ActivatedAt time.Time `json:"activatedAt"`
	LastSeen    time.Time `json:"lastSeen"`
	IPAddress   string    `json:"ipAddress"`
	Trusted     bool      `json:"trusted"`
}

// VerifyStatus classifies the outcome of a key verification.
type VerifyStatus string

const (
	VerifyValid   VerifyStatus = "valid"
	VerifyExpired VerifyStatus = "expired"
	VerifyInvalid VerifyStatus = "invalid"
)

// VerifyResult is the outcome of Registry.Verify.
type VerifyResult struct {
	Valid  bool         `json:"valid"`
	Status VerifyStatus `json:"status"`
	Reason string       `json:"error,omitempty"`
}

// UsageStats summarizes a user's licensing activity for the dashboard.
type UsageStats struct {
	TotalActivations int `json:"totalActivations"`
	ActiveDevices    int `json:"activeDevices"`
	AlertsCount      int `json:"alertsCount"`
}
