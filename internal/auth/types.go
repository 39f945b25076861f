// Package auth owns accounts, sessions, password resets, two-factor
// enrollment and API keys. Credentials are stored and compared as
// plain text, matching the account data model this service fronts.
package auth

import "time"

// Session lifetimes.
const (
	// sessionDuration is the absolute lifetime of a session token.
	sessionDuration = 7 * 24 * time.Hour
	// idleTimeout invalidates a session with no heartbeat activity.
	idleTimeout = 30 * time.Minute
	// resetTokenTTL is how long a password reset token stays usable.
	resetTokenTTL = time.Hour
)

// User is the public view of an account. Password and license key stay
// in the stored record and never leave this package.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// userRecord is the stored account, keyed by email in the users blob.
type userRecord struct {
	User
	Password   string `json:"password"`
	LicenseKey string `json:"licenseKey"`
}

// Session is one issued login token. Expiry is both absolute
// (sessionDuration from creation) and idle (idleTimeout since the last
// heartbeat).
type Session struct {
	Token        string    `json:"token"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// LoginResult reports a credential check. When the account has
// two-factor enabled and no code was supplied, RequiresTwoFactor is set
// and no session is issued.
type LoginResult struct {
	User              *User    `json:"user,omitempty"`
	Session           *Session `json:"session,omitempty"`
	RequiresTwoFactor bool     `json:"requiresTwoFactor,omitempty"`
}

// resetRecord is a pending password reset, keyed by email. Requesting a
// new reset replaces any outstanding token for that email.
type resetRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// twoFactorRecord is per-email enrollment state. Setup writes it
// disabled; the first successful code verification enables it.
type twoFactorRecord struct {
	Secret      string   `json:"secret"`
	BackupCodes []string `json:"backupCodes"`
	Enabled     bool     `json:"enabled"`
	Verified    bool     `json:"verified"`
}

// TwoFactorSetup is returned from enrollment so the client can render
// the QR code and show the backup codes once.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	OtpauthURL  string   `json:"otpauthUrl"`
	BackupCodes []string `json:"backupCodes"`
}

// TwoFactorStatus reports whether an account has two-factor enabled.
type TwoFactorStatus struct {
	Enabled  bool `json:"enabled"`
	Verified bool `json:"verified"`
}

// APIKeyStatus is the lifecycle state of an API key.
type APIKeyStatus string

const (
	APIKeyActive  APIKeyStatus = "active"
	APIKeyRevoked APIKeyStatus = "revoked"
)

// APIKey is a programmatic credential. The full key string is stored
// and returned on every read, matching the original data model.
type APIKey struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Key         string       `json:"key"`
	UserID      string       `json:"userId"`
	CreatedAt   time.Time    `json:"createdAt"`
	LastUsed    *time.Time   `json:"lastUsed,omitempty"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
	Permissions []string     `json:"permissions"`
	Status      APIKeyStatus `json:"status"`
}
