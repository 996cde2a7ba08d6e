package deals

import "errors"

var (
	ErrNotFound     = errors.New("deal not found")
	ErrInvalidInput = errors.New("invalid deal")
)

const (
	StageLead        = "lead"
	StageQualified   = "qualified"
	StageProposal    = "proposal"
	StageNegotiation = "negotiation"
	StageWon         = "won"
	StageLost        = "lost"
)

type Deal struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Value     int64  `json:"value"` // minor currency units
	Currency  string `json:"currency"`
	Stage     string `json:"stage"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
