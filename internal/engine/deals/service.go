package deals

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200

	entity = "deal"
)

// Notifier receives a deal event after each successful mutation. It must not block.
type Notifier interface {
	Trigger(userID, event, entity, entityID, action string, data any)
}

type CreateInput struct {
	Title    string
	Value    int64
	Currency string
	Stage    string
}

// UpdateInput applies only the non-nil fields.
type UpdateInput struct {
	Title    *string
	Value    *int64
	Currency *string
	Stage    *string
}

type Service struct {
	repo     *Repository
	notifier Notifier
	clock    clockwork.Clock
}

func NewService(repo *Repository, notifier Notifier, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, notifier: notifier, clock: clock}
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Deal, error) {
	now := s.clock.Now().Unix()
	deal := &Deal{
		ID:        "deal_" + uuid.NewString(),
		UserID:    userID,
		Title:     in.Title,
		Value:     in.Value,
		Currency:  in.Currency,
		Stage:     in.Stage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if deal.Currency == "" {
		deal.Currency = "USD"
	}
	if deal.Stage == "" {
		deal.Stage = StageLead
	}

	if err := ValidateDeal(deal); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, deal); err != nil {
		return nil, err
	}

	s.notify(deal.UserID, deal.ID, "created", deal)
	return deal, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*Deal, error) {
	deal, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, ErrNotFound
	}
	return deal, nil
}

// List pages through the user's deals, newest first. Out-of-range paging values are clamped.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*Deal, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, userID, limit, offset)
}

func (s *Service) Update(ctx context.Context, userID, id string, in UpdateInput) (*Deal, error) {
	deal, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		deal.Title = *in.Title
	}
	if in.Value != nil {
		deal.Value = *in.Value
	}
	if in.Currency != nil {
		deal.Currency = *in.Currency
	}
	if in.Stage != nil {
		deal.Stage = *in.Stage
	}

	if err := ValidateDeal(deal); err != nil {
		return nil, err
	}

	deal.UpdatedAt = s.clock.Now().Unix()
	if err := s.repo.Update(ctx, deal); err != nil {
		return nil, err
	}

	s.notify(deal.UserID, deal.ID, "updated", deal)
	return deal, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.notify(userID, id, "deleted", map[string]string{"id": id})
	return nil
}

func (s *Service) notify(userID, dealID, action string, data any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Trigger(userID, entity+"."+action, entity, dealID, action, data)
}
