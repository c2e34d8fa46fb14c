package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/daybook/server/internal/model"
)

// ErrAmbiguousPhone means more than one profile matched the candidate forms.
// That is a data-integrity condition; callers must reject rather than pick one.
var ErrAmbiguousPhone = errors.New("multiple profiles match phone number")

// UserRepo defines the interface for user profile repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.UserProfile, error)
	GetByPhoneCandidates(ctx context.Context, candidates []string) (model.UserProfile, error)
	SetPhoneVerified(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, phone_number, email, phone_verified, timezone, created_at`

func scanUser(scan func(dest ...any) error) (model.UserProfile, error) {
	var u model.UserProfile
	var idStr string
	if err := scan(&idStr, &u.PhoneNumber, &u.Email, &u.PhoneVerified, &u.Timezone, &u.CreatedAt); err != nil {
		return model.UserProfile{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	u.ID = id
	return u, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.UserProfile, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id.String())
	u, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UserProfile{}, ErrNotFound
		}
		return model.UserProfile{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// GetByPhoneCandidates looks up the profile whose stored phone number matches
// any of the candidate forms. Exactly one match is required: zero matches is
// ErrNotFound, more than one is ErrAmbiguousPhone.
func (r *userRepo) GetByPhoneCandidates(ctx context.Context, candidates []string) (model.UserProfile, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE phone_number = ANY($1)
		LIMIT 2
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(candidates))
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("failed to query user by phone: %w", err)
	}
	defer rows.Close()

	var matches []model.UserProfile
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return model.UserProfile{}, fmt.Errorf("failed to scan user: %w", err)
		}
		matches = append(matches, u)
	}
	if err := rows.Err(); err != nil {
		return model.UserProfile{}, fmt.Errorf("failed to iterate users: %w", err)
	}

	switch len(matches) {
	case 0:
		return model.UserProfile{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return model.UserProfile{}, ErrAmbiguousPhone
	}
}

// SetPhoneVerified marks the profile verified. There is no reverse transition.
func (r *userRepo) SetPhoneVerified(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET phone_verified = TRUE WHERE id = $1
	`, id.String())
	if err != nil {
		return fmt.Errorf("set phone verified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
