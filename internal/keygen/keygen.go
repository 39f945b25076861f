// Package keygen produces the random identifiers and secrets used across
// LicenseLock: license keys, API keys, TOTP secrets, backup codes and
// hardware fingerprints. All generators draw from crypto/rand.
package keygen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// License keys: 4 groups of 5 characters from a 36-character alphabet,
	// e.g. A1B2C-D3E4F-G5H6I-J7K8L.
	licenseKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseKeyGroups   = 4
	licenseGroupLen    = 5

	// LicenseKeyLen is the full formatted length including dashes.
	LicenseKeyLen = licenseKeyGroups*licenseGroupLen + licenseKeyGroups - 1

	// APIKeyPrefix is the literal prefix carried by every issued API key.
	APIKeyPrefix = "llp_"

	apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	apiKeyLen      = 48

	// TOTP secrets use the base32 alphabet expected by authenticator apps.
	totpAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	totpLen      = 32

	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	backupCodeLen      = 8
	backupCodeCount    = 10

	hwidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	hwidLen      = 32
)

// LicenseKey generates a new license key in XXXXX-XXXXX-XXXXX-XXXXX form.
func LicenseKey() string {
	groups := make([]string, licenseKeyGroups)
	for i := range groups {
		groups[i] = randomString(licenseKeyAlphabet, licenseGroupLen)
	}
	return strings.Join(groups, "-")
}

// ValidLicenseKey reports whether s matches the XXXXX-XXXXX-XXXXX-XXXXX
// format. It checks shape only; existence is the registry's concern.
func ValidLicenseKey(s string) bool {
	if len(s) != LicenseKeyLen {
		return false
	}
	parts := strings.Split(s, "-")
	if len(parts) != licenseKeyGroups {
		return false
	}
	for _, p := range parts {
		if len(p) != licenseGroupLen {
			return false
		}
		for _, ch := range p {
			if !strings.ContainsRune(licenseKeyAlphabet, ch) {
				return false
			}
		}
	}
	return true
}

// APIKey generates a new API key: the llp_ prefix followed by 48 random
// alphanumeric characters.
func APIKey() string {
	return APIKeyPrefix + randomString(apiKeyAlphabet, apiKeyLen)
}

// TOTPSecret generates a 32-character base32 secret for 2FA enrollment.
func TOTPSecret() string {
	return randomString(totpAlphabet, totpLen)
}

// BackupCodes generates the set of single-use 2FA fallback codes.
func BackupCodes() []string {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		codes[i] = randomString(backupCodeAlphabet, backupCodeLen)
	}
	return codes
}

// HWID generates an opaque hardware-fingerprint stand-in for a device.
func HWID() string {
	return randomString(hwidAlphabet, hwidLen)
}

// SessionToken generates an opaque session token.
func SessionToken() string {
	return uuid.New().String()
}

// ResetToken generates a single-use password reset token.
func ResetToken() string {
	return uuid.New().String()
}

// ID generates a new entity identifier.
func ID() string {
	return uuid.New().String()
}

// MockIP fabricates a private-range address for mock device records. A
// real deployment would record the caller's observed address instead.
func MockIP() string {
	return fmt.Sprintf("192.168.%d.%d", randomInt(256), randomInt(256))
}

func randomString(alphabet string, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[randomInt(len(alphabet))])
	}
	return b.String()
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken, which is not recoverable here.
		panic(fmt.Sprintf("keygen: entropy source unavailable: %v", err))
	}
	return int(v.Int64())
}
