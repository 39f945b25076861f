package license

import "errors"

var (
	// ErrNotFound means no license exists with the given ID or key.
	ErrNotFound = errors.New("license not found")

	// ErrDeviceNotFound means no device activation exists with the given ID.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNotActive means the license exists but is suspended or expired,
	// so device activations are refused.
	ErrNotActive = errors.New("license is not active")

	// ErrActivationLimit means the license already has maxActivations
	// devices bound and a new hardware fingerprint was refused.
	ErrActivationLimit = errors.New("maximum activations reached")

	// ErrInvalidMaxActivations means a create request asked for an
	// activation budget below one.
	ErrInvalidMaxActivations = errors.New("maxActivations must be at least 1")
)
