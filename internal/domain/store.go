package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected opportunities for audit and analysis.
type OpportunityStore interface {
	Create(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists terminal execution attempts.
type ExecutionStore interface {
	Create(ctx context.Context, attempt ExecutionAttempt) error
	GetByID(ctx context.Context, id string) (ExecutionAttempt, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionAttempt, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionAttempt, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
