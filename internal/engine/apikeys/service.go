package apikeys

import (
	"context"
	"errors"
	"strings"

	"dealflow/internal/platform/models"
	"dealflow/internal/platform/repositories"
)

var (
	ErrNotFound    = errors.New("api key not found")
	ErrNameTaken   = errors.New("api key name already in use")
	ErrInvalidName = errors.New("api key name must be 1-100 characters")
)

const maxNameLen = 100

type Store interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetActiveByID(ctx context.Context, userID, id string) (*models.APIKey, error)
	NameInUse(ctx context.Context, userID, name string) (bool, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
	SoftDelete(ctx context.Context, userID, id string) error
	Rotate(ctx context.Context, userID, oldID string, replacement *models.APIKey) error
}

// Issued pairs a stored key with its plaintext token. The token is not recoverable afterwards.
type Issued struct {
	Key   *models.APIKey
	Token string
}

type Service struct {
	store  Store
	prefix string
}

func NewService(store Store, prefix string) *Service {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Service{store: store, prefix: prefix}
}

func (s *Service) Create(ctx context.Context, userID, name string) (*Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return nil, ErrInvalidName
	}

	taken, err := s.store.NameInUse(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameTaken
	}

	issued, err := s.issue(userID, name)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, issued.Key); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	return issued, nil
}

// Regenerate replaces keyID with a fresh key of the same name. The old token
// stops authenticating once the rotation commits.
func (s *Service) Regenerate(ctx context.Context, userID, keyID string) (*Issued, error) {
	old, err := s.store.GetActiveByID(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrNotFound
	}

	issued, err := s.issue(userID, old.Name)
	if err != nil {
		return nil, err
	}

	if err := s.store.Rotate(ctx, userID, old.ID, issued.Key); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issued, nil
}

func (s *Service) Delete(ctx context.Context, userID, keyID string) error {
	err := s.store.SoftDelete(ctx, userID, keyID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) List(ctx context.Context, userID string) ([]*models.APIKey, error) {
	return s.store.ListActiveByUser(ctx, userID)
}

func (s *Service) issue(userID, name string) (*Issued, error) {
	token, err := GenerateToken(s.prefix)
	if err != nil {
		return nil, err
	}
	return &Issued{
		Token: token,
		Key: &models.APIKey{
			UserID:    userID,
			Name:      name,
			KeyHash:   HashToken(token),
			KeyPrefix: DisplayPrefix(token),
		},
	}, nil
}
