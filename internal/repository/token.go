package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"condobill/internal/domain"
)

// APIToken is an issued portal access token; the stored value is the sha256
// of the plain secret.
type APIToken struct {
	ID        int64
	UserID    int64
	Name      string
	ExpiresAt *time.Time
}

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// FindByPlainToken resolves a bearer token of the form "id|secret" (or a
// bare secret) to its owner. Expired tokens are not returned.
func (r *TokenRepository) FindByPlainToken(ctx context.Context, plainToken string) (*APIToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, domain.ErrNotFound
	}

	var (
		tokenID   *int64
		tokenPart = plainToken
	)
	if idx := strings.Index(plainToken, "|"); idx > 0 {
		if id, err := strconv.ParseInt(plainToken[:idx], 10, 64); err == nil {
			tokenID = &id
			tokenPart = plainToken[idx+1:]
		}
	}

	sum := sha256.Sum256([]byte(tokenPart))
	hash := fmt.Sprintf("%x", sum)

	query := `
		SELECT id, user_id, name, expires_at
		FROM api_tokens
		WHERE token = $1
		  AND (expires_at IS NULL OR expires_at > now())`
	args := []any{hash}
	if tokenID != nil {
		query += ` AND id = $2`
		args = append(args, *tokenID)
	}

	var t APIToken
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&t.ID, &t.UserID, &t.Name, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
