package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"dealflow/internal/pkg/validator"
	"dealflow/internal/platform/models"
	"dealflow/internal/platform/repositories"
)

var (
	ErrNotFound     = errors.New("webhook not found")
	ErrInvalidInput = errors.New("invalid webhook")
)

const secretPrefix = "whsec_"

type Store interface {
	SubscriptionLister
	Create(ctx context.Context, webhook *models.Webhook) error
	GetByID(ctx context.Context, userID, id string) (*models.Webhook, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Webhook, error)
	Update(ctx context.Context, webhook *models.Webhook) error
	Delete(ctx context.Context, userID, id string) error
}

type CreateInput struct {
	URL    string
	Events []string
	Active *bool
}

// UpdateInput applies only the non-nil fields.
type UpdateInput struct {
	URL    *string
	Events []string
	Active *bool
}

// Service manages a user's subscriptions.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create stores a subscription with a fresh signing secret. The returned
// webhook carries the secret; it is never returned again.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Webhook, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	events, err := normalizeEvents(in.Events)
	if err != nil {
		return nil, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	webhook := &models.Webhook{
		UserID: userID,
		URL:    in.URL,
		Events: events,
		Secret: secret,
		Active: in.Active == nil || *in.Active,
	}
	if err := s.store.Create(ctx, webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*models.Webhook, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Webhook, error) {
	webhook, err := s.store.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if webhook == nil {
		return nil, ErrNotFound
	}
	return webhook, nil
}

func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*models.Webhook, error) {
	webhook, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		webhook.URL = *in.URL
	}
	if in.Events != nil {
		events, err := normalizeEvents(in.Events)
		if err != nil {
			return nil, err
		}
		webhook.Events = events
	}
	if in.Active != nil {
		webhook.Active = *in.Active
	}

	if err := s.store.Update(ctx, webhook); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return webhook, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.store.Delete(ctx, userID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// GenerateSecret returns "whsec_" followed by 32 random bytes in hex.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(b), nil
}

func validateURL(raw string) error {
	if err := validator.ValidateHTTPSURL(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func normalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if !IsKnownEvent(e) {
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, e)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}
