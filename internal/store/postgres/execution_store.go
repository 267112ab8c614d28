package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlajoie/crossarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. The
// opportunity that triggered the attempt is denormalized into the row so an
// attempt remains interpretable after the opportunities table is pruned.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `id, opportunity_id, symbol, buy_venue, sell_venue,
	buy_price, sell_price, trade_amount, net_profit,
	buy_order_id, sell_order_id, buy_filled, sell_filled, state,
	unwind_action, unwind_venue, unwind_order_id, unwind_amount, unwind_succeeded, unwind_error,
	error, started_at, completed_at`

// Create inserts a terminal execution attempt.
func (s *ExecutionStore) Create(ctx context.Context, attempt domain.ExecutionAttempt) error {
	var (
		unwindAction, unwindVenue, unwindOrderID, unwindError *string
		unwindAmount                                          *float64
		unwindSucceeded                                       *bool
	)
	if uw := attempt.Unwind; uw != nil {
		action := string(uw.Action)
		venue := string(uw.Venue)
		unwindAction = &action
		unwindVenue = &venue
		unwindOrderID = &uw.OrderID
		unwindAmount = &uw.Amount
		unwindSucceeded = &uw.Succeeded
		unwindError = &uw.Error
	}

	opp := attempt.Opportunity
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_attempts (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		attempt.ID, opp.ID, opp.Symbol, string(opp.BuyVenue), string(opp.SellVenue),
		opp.BuyPrice, opp.SellPrice, opp.TradeAmount, opp.NetProfit,
		attempt.BuyOrderID, attempt.SellOrderID, attempt.BuyFilled, attempt.SellFilled,
		string(attempt.State),
		unwindAction, unwindVenue, unwindOrderID, unwindAmount, unwindSucceeded, unwindError,
		attempt.Error, attempt.StartedAt, attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution_attempt: %w", err)
	}
	return nil
}

// GetByID returns a single execution attempt.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM execution_attempts WHERE id = $1`, id)

	attempt, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionAttempt{}, domain.ErrNotFound
		}
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: get execution_attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListRecent returns the most recent execution attempts.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution_attempts: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListBefore returns all attempts started strictly before the cutoff, oldest
// first, for archival.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM execution_attempts WHERE started_at < $1 ORDER BY started_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution_attempts before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// DeleteBefore removes attempts started strictly before the cutoff and
// returns the number of rows deleted.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM execution_attempts WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete execution_attempts before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanExecution(row pgx.Row) (domain.ExecutionAttempt, error) {
	var (
		attempt                                               domain.ExecutionAttempt
		buyVenue, sellVenue, state                            string
		unwindAction, unwindVenue, unwindOrderID, unwindError *string
		unwindAmount                                          *float64
		unwindSucceeded                                       *bool
	)
	err := row.Scan(
		&attempt.ID, &attempt.Opportunity.ID, &attempt.Opportunity.Symbol, &buyVenue, &sellVenue,
		&attempt.Opportunity.BuyPrice, &attempt.Opportunity.SellPrice,
		&attempt.Opportunity.TradeAmount, &attempt.Opportunity.NetProfit,
		&attempt.BuyOrderID, &attempt.SellOrderID, &attempt.BuyFilled, &attempt.SellFilled,
		&state,
		&unwindAction, &unwindVenue, &unwindOrderID, &unwindAmount, &unwindSucceeded, &unwindError,
		&attempt.Error, &attempt.StartedAt, &attempt.CompletedAt,
	)
	if err != nil {
		return domain.ExecutionAttempt{}, err
	}

	attempt.Opportunity.BuyVenue = domain.Venue(buyVenue)
	attempt.Opportunity.SellVenue = domain.Venue(sellVenue)
	attempt.State = domain.AttemptState(state)

	if unwindAction != nil {
		uw := &domain.UnwindResult{Action: domain.UnwindAction(*unwindAction)}
		if unwindVenue != nil {
			uw.Venue = domain.Venue(*unwindVenue)
		}
		if unwindOrderID != nil {
			uw.OrderID = *unwindOrderID
		}
		if unwindAmount != nil {
			uw.Amount = *unwindAmount
		}
		if unwindSucceeded != nil {
			uw.Succeeded = *unwindSucceeded
		}
		if unwindError != nil {
			uw.Error = *unwindError
		}
		attempt.Unwind = uw
	}

	return attempt, nil
}

func scanExecutions(rows pgx.Rows) ([]domain.ExecutionAttempt, error) {
	var out []domain.ExecutionAttempt
	for rows.Next() {
		attempt, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution_attempt: %w", err)
		}
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate execution_attempts: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
