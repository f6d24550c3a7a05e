package repository

import (
	"context"
	"database/sql"
	"errors"

	"condobill/internal/domain"
)

type PartyRepository struct {
	db *sql.DB
}

func NewPartyRepository(db *sql.DB) *PartyRepository {
	return &PartyRepository{db: db}
}

const partyColumns = `id, user_id, document, email, first_name, last_name, created_at`

func scanParty(row *sql.Row) (*domain.BillableParty, error) {
	var p domain.BillableParty
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Document,
		&p.Email,
		&p.FirstName,
		&p.LastName,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindByUser resolves the billing identity of an authenticated user.
// Returns domain.ErrNotFound when the user has no billable party.
func (r *PartyRepository) FindByUser(ctx context.Context, userID int64) (*domain.BillableParty, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE user_id = $1`, userID)
	return scanParty(row)
}

func (r *PartyRepository) FindByID(ctx context.Context, id int64) (*domain.BillableParty, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE id = $1`, id)
	return scanParty(row)
}

// Create provisions a party. The engine never calls this; it exists for the
// external provisioning flow and for seeding test databases.
func (r *PartyRepository) Create(ctx context.Context, p *domain.BillableParty) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO parties (user_id, document, email, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.UserID, p.Document, p.Email, p.FirstName, p.LastName,
	).Scan(&p.ID, &p.CreatedAt)
}
