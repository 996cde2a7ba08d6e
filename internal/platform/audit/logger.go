// Package audit records who changed API keys and webhook subscriptions.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dealflow/internal/workers"
)

const (
	ActionAPIKeyCreated     = "api_key.created"
	ActionAPIKeyRegenerated = "api_key.regenerated"
	ActionAPIKeyDeleted     = "api_key.deleted"
	ActionWebhookCreated    = "webhook.created"
	ActionWebhookUpdated    = "webhook.updated"
	ActionWebhookDeleted    = "webhook.deleted"
	ActionLogin             = "user.login"
)

type Entry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Metadata     map[string]any `json:"metadata"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	CreatedAt    int64          `json:"created_at"`
}

type Submitter interface {
	Submit(name string, fn workers.Task) error
}

// Logger writes audit entries off the request path.
type Logger struct {
	db   *sql.DB
	pool Submitter
	log  zerolog.Logger
}

func NewLogger(db *sql.DB, pool Submitter, log zerolog.Logger) *Logger {
	return &Logger{db: db, pool: pool, log: log.With().Str("component", "audit").Logger()}
}

// Log records action by userID. Failures are logged and never reach the caller.
func (l *Logger) Log(r *http.Request, userID, action, resourceType, resourceID string, metadata map[string]any) {
	entry := &Entry{
		ID:           "audit_" + uuid.NewString(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
		CreatedAt:    time.Now().Unix(),
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}

	err := l.pool.Submit("audit log", func(ctx context.Context) {
		if err := l.insert(ctx, entry); err != nil {
			l.log.Error().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("failed to write audit log")
		}
	})
	if err != nil {
		l.log.Warn().Err(err).Str("action", action).Msg("audit log dropped")
	}
}

func (l *Logger) insert(ctx context.Context, e *Entry) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, string(metaJSON), e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

// List returns the user's most recent entries, newest first.
func (l *Logger) List(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var e Entry
		var metaStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &metaStr, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaStr), &e.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
