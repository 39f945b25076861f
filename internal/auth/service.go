package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"licenselock/internal/audit"
	"licenselock/internal/infrastructure"
	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// Service implements account and session management on top of the blob
// store. It is safe for concurrent use; all mutations go through the
// store's atomic Update.
type Service struct {
	store  store.Store
	audit  *audit.Log
	logger *slog.Logger

	now func() time.Time
}

// NewService builds the auth service. The audit log receives a trail of
// every security-relevant action.
func NewService(s store.Store, auditLog *audit.Log, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		audit:  auditLog,
		logger: logger.With(slog.String("component", "auth")),
		now:    time.Now,
	}
}

// Register creates an account. The license key is only format-checked
// here; binding it to a license record happens at first verification.
func (s *Service) Register(ctx context.Context, email, password, name, licenseKey string) (*User, error) {
	if !keygen.ValidLicenseKey(licenseKey) {
		return nil, ErrInvalidLicenseKey
	}

	rec := userRecord{
		User: User{
			ID:        keygen.ID(),
			Email:     email,
			Name:      name,
			CreatedAt: s.now().UTC(),
		},
		Password:   password,
		LicenseKey: licenseKey,
	}

	err := store.UpdateJSON(ctx, s.store, store.KeyUsers, func(users map[string]userRecord) (map[string]userRecord, error) {
		if users == nil {
			users = make(map[string]userRecord)
		}
		if _, taken := users[email]; taken {
			return nil, ErrEmailTaken
		}
		users[email] = rec
		return users, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", rec.ID))
	s.audit.Record(ctx, rec.ID, "REGISTER", "user", rec.ID, "Account created", audit.SeverityInfo)

	user := rec.User
	return &user, nil
}

// Login checks credentials and issues a session. Accounts with
// two-factor enabled get no session until a code is supplied; the
// result then only carries RequiresTwoFactor.
func (s *Service) Login(ctx context.Context, email, password, totpCode string) (*LoginResult, error) {
	rec, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if rec.Password != password {
		s.audit.Record(ctx, rec.ID, "LOGIN_FAILED", "user", rec.ID, "Wrong password", audit.SeverityWarning)
		return nil, ErrInvalidCredentials
	}

	status, err := s.TwoFactorStatus(ctx, email)
	if err != nil {
		return nil, err
	}
	if status.Enabled {
		if totpCode == "" {
			return &LoginResult{RequiresTwoFactor: true}, nil
		}
		if err := s.VerifyTwoFactor(ctx, email, totpCode); err != nil {
			return nil, err
		}
	}

	session, err := s.createSession(ctx, rec)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", rec.ID))
	s.audit.Record(ctx, rec.ID, "LOGIN", "user", rec.ID, "Signed in", audit.SeverityInfo)

	user := rec.User
	return &LoginResult{User: &user, Session: session}, nil
}

// Logout deletes the session. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	var userID string
	err := store.UpdateJSON(ctx, s.store, store.KeySessions, func(sessions map[string]Session) (map[string]Session, error) {
		if sess, ok := sessions[token]; ok {
			userID = sess.UserID
			delete(sessions, token)
		}
		return sessions, nil
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if userID != "" {
		s.audit.Record(ctx, userID, "LOGOUT", "user", userID, "Signed out", audit.SeverityInfo)
	}
	return nil
}

// CurrentUser resolves a session token to its account. Expired sessions
// (absolute or idle) are removed on sight and reported as invalid.
func (s *Service) CurrentUser(ctx context.Context, token string) (*User, error) {
	sess, err := s.validSession(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, err := s.userByEmail(ctx, sess.Email)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	user := rec.User
	return &user, nil
}

// Heartbeat marks the session active, resetting its idle clock.
func (s *Service) Heartbeat(ctx context.Context, token string) error {
	if _, err := s.validSession(ctx, token); err != nil {
		return err
	}
	return store.UpdateJSON(ctx, s.store, store.KeySessions, func(sessions map[string]Session) (map[string]Session, error) {
		if sess, ok := sessions[token]; ok {
			sess.LastActivity = s.now().UTC()
			sessions[token] = sess
		}
		return sessions, nil
	})
}

// ReapSessions removes every expired session and returns how many were
// dropped. The app runs this on a ticker.
func (s *Service) ReapSessions(ctx context.Context) (int, error) {
	reaped := 0
	err := store.UpdateJSON(ctx, s.store, store.KeySessions, func(sessions map[string]Session) (map[string]Session, error) {
		for token, sess := range sessions {
			if s.sessionExpired(sess) {
				delete(sessions, token)
				reaped++
			}
		}
		return sessions, nil
	})
	if err != nil {
		return 0, fmt.Errorf("reap sessions: %w", err)
	}
	if reaped > 0 {
		s.logger.InfoContext(ctx, "expired sessions reaped", slog.Int("count", reaped))
	}
	return reaped, nil
}

// RunSessionReaper sweeps expired sessions on the given interval until
// the context is cancelled.
func (s *Service) RunSessionReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Each sweep gets its own trace ID in the logs.
			sweepCtx := infrastructure.EnsureTraceID(ctx)
			if _, err := s.ReapSessions(sweepCtx); err != nil {
				infrastructure.WithError(s.logger, err).ErrorContext(sweepCtx, "session reaper sweep failed")
			}
		}
	}
}

// RequestPasswordReset issues a reset token for the email. An unknown
// email still succeeds with an empty token so callers cannot probe for
// accounts. A new request replaces any outstanding token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if _, err := s.userByEmail(ctx, email); err != nil {
		return "", nil
	}

	token := keygen.ResetToken()
	rec := resetRecord{
		Token:     token,
		ExpiresAt: s.now().UTC().Add(resetTokenTTL),
	}
	err := store.UpdateJSON(ctx, s.store, store.KeyResetTokens, func(tokens map[string]resetRecord) (map[string]resetRecord, error) {
		if tokens == nil {
			tokens = make(map[string]resetRecord)
		}
		tokens[email] = rec
		return tokens, nil
	})
	if err != nil {
		return "", fmt.Errorf("request password reset: %w", err)
	}

	// Delivery is out of band; the reset link is logged for operators.
	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("reset_link", fmt.Sprintf("/reset-password?token=%s&email=%s", token, email)))
	return token, nil
}

// ResetPassword redeems a reset token. Tokens are single use; success
// consumes them.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	err := store.UpdateJSON(ctx, s.store, store.KeyResetTokens, func(tokens map[string]resetRecord) (map[string]resetRecord, error) {
		rec, ok := tokens[email]
		if !ok || rec.Token != token {
			return nil, ErrResetTokenInvalid
		}
		if s.now().After(rec.ExpiresAt) {
			return nil, ErrResetTokenExpired
		}
		delete(tokens, email)
		return tokens, nil
	})
	if err != nil {
		return err
	}

	var userID string
	err = store.UpdateJSON(ctx, s.store, store.KeyUsers, func(users map[string]userRecord) (map[string]userRecord, error) {
		rec, ok := users[email]
		if !ok {
			return nil, ErrUserNotFound
		}
		rec.Password = newPassword
		users[email] = rec
		userID = rec.ID
		return users, nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, userID, "PASSWORD_RESET", "user", userID, "Password reset via token", audit.SeverityWarning)
	return nil
}

func (s *Service) createSession(ctx context.Context, rec *userRecord) (*Session, error) {
	nowUTC := s.now().UTC()
	sess := Session{
		Token:        keygen.SessionToken(),
		UserID:       rec.ID,
		Email:        rec.Email,
		CreatedAt:    nowUTC,
		ExpiresAt:    nowUTC.Add(sessionDuration),
		LastActivity: nowUTC,
	}
	err := store.UpdateJSON(ctx, s.store, store.KeySessions, func(sessions map[string]Session) (map[string]Session, error) {
		if sessions == nil {
			sessions = make(map[string]Session)
		}
		sessions[sess.Token] = sess
		return sessions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &sess, nil
}

func (s *Service) validSession(ctx context.Context, token string) (*Session, error) {
	sessions, err := store.GetJSON[map[string]Session](ctx, s.store, store.KeySessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	sess, ok := sessions[token]
	if !ok {
		return nil, ErrSessionInvalid
	}
	if s.sessionExpired(sess) {
		_ = store.UpdateJSON(ctx, s.store, store.KeySessions, func(sessions map[string]Session) (map[string]Session, error) {
			delete(sessions, token)
			return sessions, nil
		})
		return nil, ErrSessionInvalid
	}
	return &sess, nil
}

func (s *Service) sessionExpired(sess Session) bool {
	now := s.now()
	return now.After(sess.ExpiresAt) || now.Sub(sess.LastActivity) > idleTimeout
}

func (s *Service) userByEmail(ctx context.Context, email string) (*userRecord, error) {
	users, err := store.GetJSON[map[string]userRecord](ctx, s.store, store.KeyUsers)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	rec, ok := users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &rec, nil
}
