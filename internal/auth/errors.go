package auth

import "errors"

var (
	// ErrEmailTaken means registration was attempted with an email that
	// already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidLicenseKey means the registration license key failed the
	// format check.
	ErrInvalidLicenseKey = errors.New("invalid license key")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionInvalid means the session token is unknown, absolutely
	// expired or idle-expired.
	ErrSessionInvalid = errors.New("session invalid or expired")

	// ErrResetTokenInvalid means no matching reset token exists for the
	// email.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")

	// ErrResetTokenExpired means the token matched but its hour is up.
	ErrResetTokenExpired = errors.New("reset token has expired")

	// ErrUserNotFound means no account exists for the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrTwoFactorNotSetup means a code was verified before enrollment.
	ErrTwoFactorNotSetup = errors.New("two-factor authentication not set up")

	// ErrTwoFactorCode means the supplied code was neither a well-formed
	// TOTP code nor an unused backup code.
	ErrTwoFactorCode = errors.New("invalid two-factor code")

	// ErrAPIKeyInvalid means no key matches the presented credential.
	ErrAPIKeyInvalid = errors.New("invalid API key")

	// ErrAPIKeyRevoked means the key exists but has been revoked.
	ErrAPIKeyRevoked = errors.New("API key has been revoked")

	// ErrAPIKeyExpired means the key exists but is past its expiry.
	ErrAPIKeyExpired = errors.New("API key has expired")

	// ErrAPIKeyNotFound means no key with the given ID belongs to the user.
	ErrAPIKeyNotFound = errors.New("API key not found")
)
