package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"dealflow/internal/platform/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, user_id, url, events, secret, active, created_at, updated_at`

func (r *WebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	webhook.ID = "wh_" + uuid.NewString()
	now := time.Now().Unix()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, user_id, url, events, secret, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, webhook.ID, webhook.UserID, webhook.URL, string(eventsJSON), webhook.Secret, webhook.Active, webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

// GetByID returns the user's webhook, or nil when it does not exist.
func (r *WebhookRepository) GetByID(ctx context.Context, userID, id string) (*models.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ? AND user_id = ?`, id, userID)
	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func (r *WebhookRepository) ListByUser(ctx context.Context, userID string) ([]*models.Webhook, error) {
	return r.list(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListActiveByUser returns the user's active webhooks. Event filtering happens in the caller.
func (r *WebhookRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Webhook, error) {
	return r.list(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE user_id = ? AND active = 1`, userID)
}

func (r *WebhookRepository) list(ctx context.Context, query string, args ...any) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := []*models.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// Update persists url, events and active. The secret is immutable.
func (r *WebhookRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhooks
		SET url = ?, events = ?, active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, webhook.URL, string(eventsJSON), webhook.Active, webhook.UpdatedAt, webhook.ID, webhook.UserID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *WebhookRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWebhook(s scanner) (*models.Webhook, error) {
	var w models.Webhook
	var eventsStr string

	if err := s.Scan(&w.ID, &w.UserID, &w.URL, &eventsStr, &w.Secret, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(eventsStr), &w.Events); err != nil {
		return nil, err
	}
	return &w, nil
}
