// Package audit keeps a size-bounded, most-recent-first history of user
// actions. The log is append-only from the application's point of view;
// the store retains only the newest maxEntries records.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"time"

	"licenselock/internal/keygen"
	"licenselock/internal/store"
)

// Severity grades an audit entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// maxEntries bounds the retained history; logging past the bound evicts
// the oldest entries.
const maxEntries = 1000

// mockIPAddress stands in for the caller's address, which this mock
// design never observes.
const mockIPAddress = "127.0.0.1"

// Entry is one recorded user action.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resourceId,omitempty"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
}

// Publisher receives audit events for live feeds; nil disables publishing.
type Publisher interface {
	Publish(event string, payload any)
}

// EventLogged is the feed event emitted for every recorded entry.
const EventLogged = "audit.logged"

// Log owns the audit collection.
type Log struct {
	store     store.Store
	logger    *slog.Logger
	publisher Publisher
	now       func() time.Time
}

// NewLog creates an audit log on top of the given store. publisher may
// be nil.
func NewLog(s store.Store, logger *slog.Logger, publisher Publisher) *Log {
	return &Log{
		store:     s,
		logger:    logger.With(slog.String("component", "audit_log")),
		publisher: publisher,
		now:       time.Now,
	}
}

// Record prepends a new entry and truncates the history to maxEntries.
// severity defaults to info when empty.
func (l *Log) Record(ctx context.Context, userID, action, resource, resourceID, details string, severity Severity) error {
	if severity == "" {
		severity = SeverityInfo
	}
	entry := Entry{
		ID:         keygen.ID(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IPAddress:  mockIPAddress,
		Timestamp:  l.now().UTC(),
		Severity:   severity,
	}

	err := store.UpdateJSON(ctx, l.store, store.KeyAuditLog, func(entries []Entry) ([]Entry, error) {
		entries = append([]Entry{entry}, entries...)
		if len(entries) > maxEntries {
			entries = entries[:maxEntries]
		}
		return entries, nil
	})
	if err != nil {
		return err
	}

	l.logger.DebugContext(ctx, "audit entry recorded",
		slog.String("user_id", userID),
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("severity", string(severity)),
	)
	if l.publisher != nil {
		l.publisher.Publish(EventLogged, entry)
	}
	return nil
}

// Entries returns the user's entries, newest first. limit <= 0 returns
// everything retained.
func (l *Log) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	all, err := store.GetJSON[[]Entry](ctx, l.store, store.KeyAuditLog)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.UserID == userID {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// EntriesByResource returns the user's entries for one resource type,
// optionally narrowed to a single resource id.
func (l *Log) EntriesByResource(ctx context.Context, userID, resource, resourceID string) ([]Entry, error) {
	all, err := store.GetJSON[[]Entry](ctx, l.store, store.KeyAuditLog)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.UserID != userID || e.Resource != resource {
			continue
		}
		if resourceID != "" && e.ResourceID != resourceID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear removes the user's entries, leaving other users' history intact.
func (l *Log) Clear(ctx context.Context, userID string) error {
	return store.UpdateJSON(ctx, l.store, store.KeyAuditLog, func(entries []Entry) ([]Entry, error) {
		kept := entries[:0]
		for _, e := range entries {
			if e.UserID != userID {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}

// ExportCSV renders the user's entries as CSV, newest first.
func (l *Log) ExportCSV(ctx context.Context, userID string) (string, error) {
	entries, err := l.Entries(ctx, userID, 0)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Timestamp", "Action", "Resource", "Resource ID", "Details", "Severity", "IP Address"}); err != nil {
		return "", err
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.Format(time.RFC3339),
			e.Action,
			e.Resource,
			e.ResourceID,
			e.Details,
			string(e.Severity),
			e.IPAddress,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
