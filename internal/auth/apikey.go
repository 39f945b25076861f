package auth

import (
	"context"
	"fmt"

	"licenselock/internal/audit"
	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// CreateAPIKey issues a new key for the user. expiresInDays of zero
// means the key never expires.
func (s *Service) CreateAPIKey(ctx context.Context, userID, name string, permissions []string, expiresInDays int) (*APIKey, error) {
	nowUTC := s.now().UTC()
	key := APIKey{
		ID:          keygen.ID(),
		Name:        name,
		Key:         keygen.APIKey(),
		UserID:      userID,
		CreatedAt:   nowUTC,
		Permissions: permissions,
		Status:      APIKeyActive,
	}
	if key.Permissions == nil {
		key.Permissions = []string{}
	}
	if expiresInDays > 0 {
		expiry := nowUTC.AddDate(0, 0, expiresInDays)
		key.ExpiresAt = &expiry
	}

	err := store.UpdateJSON(ctx, s.store, store.KeyAPIKeys, func(all []APIKey) ([]APIKey, error) {
		return append(all, key), nil
	})
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.audit.Record(ctx, userID, "CREATE", "api_key", key.ID,
		fmt.Sprintf("Created API key: %s", name), audit.SeverityInfo)
	return &key, nil
}

// ListAPIKeys returns the user's keys in creation order.
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	all, err := store.GetJSON[[]APIKey](ctx, s.store, store.KeyAPIKeys)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}
	out := make([]APIKey, 0, len(all))
	for _, k := range all {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

// RevokeAPIKey flips a key to revoked. It stays listed until deleted.
func (s *Service) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	err := store.UpdateJSON(ctx, s.store, store.KeyAPIKeys, func(all []APIKey) ([]APIKey, error) {
		for i := range all {
			if all[i].ID == keyID && all[i].UserID == userID {
				all[i].Status = APIKeyRevoked
				return all, nil
			}
		}
		return nil, ErrAPIKeyNotFound
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, userID, "REVOKE", "api_key", keyID, "Revoked API key", audit.SeverityWarning)
	return nil
}

// DeleteAPIKey removes a key entirely.
func (s *Service) DeleteAPIKey(ctx context.Context, userID, keyID string) error {
	err := store.UpdateJSON(ctx, s.store, store.KeyAPIKeys, func(all []APIKey) ([]APIKey, error) {
		for i := range all {
			if all[i].ID == keyID && all[i].UserID == userID {
				return append(all[:i], all[i+1:]...), nil
			}
		}
		return nil, ErrAPIKeyNotFound
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, userID, "DELETE", "api_key", keyID, "Deleted API key", audit.SeverityWarning)
	return nil
}

// VerifyAPIKey authenticates a presented key string. Valid keys get
// their lastUsed timestamp refreshed.
func (s *Service) VerifyAPIKey(ctx context.Context, key string) (*APIKey, error) {
	var verified *APIKey
	err := store.UpdateJSON(ctx, s.store, store.KeyAPIKeys, func(all []APIKey) ([]APIKey, error) {
		for i := range all {
			if all[i].Key != key {
				continue
			}
			if all[i].Status == APIKeyRevoked {
				return nil, ErrAPIKeyRevoked
			}
			if all[i].ExpiresAt != nil && all[i].ExpiresAt.Before(s.now()) {
				return nil, ErrAPIKeyExpired
			}
			used := s.now().UTC()
			all[i].LastUsed = &used
			k := all[i]
			verified = &k
			return all, nil
		}
		return nil, ErrAPIKeyInvalid
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}
