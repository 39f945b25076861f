package auth

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"licenselock/internal/audit"
	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// totpIssuer names this service in authenticator apps.
const totpIssuer = "LicenseLock"

// totpCodePattern is the accepted shape of an authenticator code. The
// code is only shape-checked, not computed against the secret; the
// stored secret exists for authenticator enrollment.
var totpCodePattern = regexp.MustCompile(`^\d{6}$`)

// SetupTwoFactor starts enrollment for the email. The record is written
// disabled; VerifyTwoFactor flips it on. Re-running setup replaces any
// previous secret and backup codes.
func (s *Service) SetupTwoFactor(ctx context.Context, email string) (*TwoFactorSetup, error) {
	if _, err := s.userByEmail(ctx, email); err != nil {
		return nil, err
	}

	rec := twoFactorRecord{
		Secret:      keygen.TOTPSecret(),
		BackupCodes: keygen.BackupCodes(),
		Enabled:     false,
		Verified:    false,
	}
	err := store.UpdateJSON(ctx, s.store, store.KeyTwoFactor, func(all map[string]twoFactorRecord) (map[string]twoFactorRecord, error) {
		if all == nil {
			all = make(map[string]twoFactorRecord)
		}
		all[email] = rec
		return all, nil
	})
	if err != nil {
		return nil, fmt.Errorf("setup two-factor: %w", err)
	}

	return &TwoFactorSetup{
		Secret:      rec.Secret,
		OtpauthURL:  otpauthURL(rec.Secret, email),
		BackupCodes: rec.BackupCodes,
	}, nil
}

// VerifyTwoFactor accepts either an authenticator code or an unused
// backup code. Backup codes are single use. The first success enables
// two-factor for the account.
func (s *Service) VerifyTwoFactor(ctx context.Context, email, code string) error {
	var enabled bool
	err := store.UpdateJSON(ctx, s.store, store.KeyTwoFactor, func(all map[string]twoFactorRecord) (map[string]twoFactorRecord, error) {
		rec, ok := all[email]
		if !ok {
			return nil, ErrTwoFactorNotSetup
		}

		matched := false
		for i, backup := range rec.BackupCodes {
			if backup == code {
				rec.BackupCodes = append(rec.BackupCodes[:i], rec.BackupCodes[i+1:]...)
				matched = true
				break
			}
		}
		if !matched && !totpCodePattern.MatchString(code) {
			return nil, ErrTwoFactorCode
		}

		enabled = !rec.Enabled
		rec.Enabled = true
		rec.Verified = true
		all[email] = rec
		return all, nil
	})
	if err != nil {
		return err
	}

	if enabled {
		if rec, uerr := s.userByEmail(ctx, email); uerr == nil {
			s.audit.Record(ctx, rec.ID, "2FA_ENABLED", "user", rec.ID,
				"Two-factor authentication enabled", audit.SeverityInfo)
		}
	}
	return nil
}

// DisableTwoFactor removes the enrollment entirely.
func (s *Service) DisableTwoFactor(ctx context.Context, email string) error {
	err := store.UpdateJSON(ctx, s.store, store.KeyTwoFactor, func(all map[string]twoFactorRecord) (map[string]twoFactorRecord, error) {
		delete(all, email)
		return all, nil
	})
	if err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	if rec, uerr := s.userByEmail(ctx, email); uerr == nil {
		s.audit.Record(ctx, rec.ID, "2FA_DISABLED", "user", rec.ID,
			"Two-factor authentication disabled", audit.SeverityWarning)
	}
	return nil
}

// TwoFactorStatus reports enrollment state; unset accounts read as
// disabled.
func (s *Service) TwoFactorStatus(ctx context.Context, email string) (*TwoFactorStatus, error) {
	all, err := store.GetJSON[map[string]twoFactorRecord](ctx, s.store, store.KeyTwoFactor)
	if err != nil {
		return nil, fmt.Errorf("load two-factor records: %w", err)
	}
	rec, ok := all[email]
	if !ok {
		return &TwoFactorStatus{}, nil
	}
	return &TwoFactorStatus{Enabled: rec.Enabled, Verified: rec.Verified}, nil
}

// TwoFactorBackupCodes returns the unused backup codes for the email.
func (s *Service) TwoFactorBackupCodes(ctx context.Context, email string) ([]string, error) {
	all, err := store.GetJSON[map[string]twoFactorRecord](ctx, s.store, store.KeyTwoFactor)
	if err != nil {
		return nil, fmt.Errorf("load two-factor records: %w", err)
	}
	return all[email].BackupCodes, nil
}

func otpauthURL(secret, email string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		totpIssuer, url.PathEscape(email), secret, totpIssuer)
}
