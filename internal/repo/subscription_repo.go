package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/daybook/server/internal/model"
)

// SubscriptionRepo reads billing state. The billing collaborator owns writes.
type SubscriptionRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (model.SubscriptionState, error)
}

type subscriptionRepo struct {
	db *sql.DB
}

// NewSubscriptionRepo creates a new SubscriptionRepo instance
func NewSubscriptionRepo(db *sql.DB) SubscriptionRepo {
	return &subscriptionRepo{db: db}
}

// GetByUserID retrieves the subscription state for a user. A missing row is
// reported as an unsubscribed, non-trial state rather than an error.
func (r *subscriptionRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (model.SubscriptionState, error) {
	query := `
		SELECT user_id, subscribed, is_trial, trial_end
		FROM subscriptions
		WHERE user_id = $1
	`
	var s model.SubscriptionState
	var idStr string
	var trialEnd sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID.String()).Scan(&idStr, &s.Subscribed, &s.IsTrial, &trialEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SubscriptionState{UserID: userID}, nil
		}
		return model.SubscriptionState{}, fmt.Errorf("failed to query subscription: %w", err)
	}
	s.UserID, err = uuid.Parse(idStr)
	if err != nil {
		return model.SubscriptionState{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	if trialEnd.Valid {
		t := trialEnd.Time
		s.TrialEnd = &t
	}
	return s, nil
}
