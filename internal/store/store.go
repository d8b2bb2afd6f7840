package store

import (
	"context"

	"github.com/seantiz/anvil/internal/model"
)

// ActionStats holds aggregate statistics over the action journal.
type ActionStats struct {
	Total             int            `json:"total"`
	CountByOutcome    map[string]int `json:"count_by_outcome"`
	CountByDiscipline map[string]int `json:"count_by_discipline"`
	AvgDurationMS     float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for completed actions.
type Store interface {
	RecordAction(ctx context.Context, rec *model.ActionRecord) error
	GetAction(ctx context.Context, ref string) (*model.ActionRecord, error)
	ListActions(ctx context.Context, limit, offset int) ([]*model.ActionRecord, int, error)
	GetActionStats(ctx context.Context) (*ActionStats, error)
	Close() error
}
