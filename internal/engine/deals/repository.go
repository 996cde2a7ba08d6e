package deals

import (
	"context"
	"database/sql"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const dealColumns = `id, user_id, title, value, currency, stage, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, deal *Deal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deals (id, user_id, title, value, currency, stage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, deal.ID, deal.UserID, deal.Title, deal.Value, deal.Currency, deal.Stage, deal.CreatedAt, deal.UpdatedAt)
	return err
}

// GetByID returns the user's deal, or nil.
func (r *Repository) GetByID(ctx context.Context, userID, id string) (*Deal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ? AND user_id = ?`, id, userID)
	deal, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return deal, err
}

func (r *Repository) List(ctx context.Context, userID string, limit, offset int) ([]*Deal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dealColumns+` FROM deals
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deals := []*Deal{}
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

func (r *Repository) Update(ctx context.Context, deal *Deal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deals SET title = ?, value = ?, currency = ?, stage = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, deal.Title, deal.Value, deal.Currency, deal.Stage, deal.UpdatedAt, deal.ID, deal.UserID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deals WHERE id = ? AND user_id = ?`, id, userID)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanDeal(s scanner) (*Deal, error) {
	var d Deal
	err := s.Scan(&d.ID, &d.UserID, &d.Title, &d.Value, &d.Currency, &d.Stage, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
