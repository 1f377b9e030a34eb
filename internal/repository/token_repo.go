package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"go-business-hub/internal/model"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, used, created_at`

// RefreshTokenRepository keeps at most one live refresh token per user. Every write path
// locks the owning users row first, so concurrent creates and rotations for the same user
// are serialised and never deadlock on token rows.
type RefreshTokenRepository struct {
	pool Pool
	now  func() time.Time
}

func NewRefreshTokenRepository(pool Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool, now: time.Now}
}

// WithClock replaces the time source used for expiry decisions.
func (r *RefreshTokenRepository) WithClock(now func() time.Time) *RefreshTokenRepository {
	r.now = now
	return r
}

// Create replaces whatever refresh token the user holds with a fresh one and returns the
// raw value. The raw value is never persisted.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID string, ttl time.Duration) (string, model.RefreshToken, error) {
	var (
		raw   string
		token model.RefreshToken
	)

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		var err error
		raw, token, err = r.replaceLocked(ctx, tx, userID, ttl)
		return err
	})
	if err != nil {
		return "", model.RefreshToken{}, err
	}

	return raw, token, nil
}

func (r *RefreshTokenRepository) FindByToken(ctx context.Context, raw string) (model.RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, HashToken(raw))
	t, err := scanRefreshToken(row)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

func (r *RefreshTokenRepository) FindByPrincipal(ctx context.Context, userID string) (model.RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, userID)
	t, err := scanRefreshToken(row)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token by user: %w", err)
	}
	return t, nil
}

// MarkUsed flags the token as consumed. Marking an already used token is a no-op that
// still reports one affected row; an unknown token reports zero.
func (r *RefreshTokenRepository) MarkUsed(ctx context.Context, raw string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET used = true WHERE token_hash = $1`, HashToken(raw))
	if err != nil {
		return 0, fmt.Errorf("mark refresh token used: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) DeleteByPrincipal(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens by user: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, raw string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, HashToken(raw)); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Rotate exchanges a live refresh token for its successor inside one transaction.
//
// An unknown token yields model.ErrTokenNotFound. An expired token is deleted and yields
// model.ErrRefreshTokenExpired; a token that was already used is deleted and yields
// model.ErrRefreshTokenReused. Those deletes are committed even though the exchange is
// rejected. Rotation.Previous carries the presented token whenever it was found.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, raw string, ttl time.Duration) (model.Rotation, error) {
	hash := HashToken(raw)

	var (
		rotation  model.Rotation
		rejection error
	)

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT user_id FROM refresh_tokens WHERE token_hash = $1`, hash).Scan(&ownerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve refresh token owner: %w", err)
		}

		if err := lockUser(ctx, tx, ownerID); err != nil {
			return err
		}

		// A concurrent rotation that won the user lock has already deleted the row.
		current, err := scanRefreshToken(tx.QueryRow(ctx,
			`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`, hash))
		if err != nil {
			return err
		}
		rotation.Previous = current

		switch {
		case current.Expired(r.now()):
			rejection = model.ErrRefreshTokenExpired
		case current.Used:
			rejection = model.ErrRefreshTokenReused
		}
		if rejection != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, current.ID); err != nil {
				return fmt.Errorf("delete rejected refresh token: %w", err)
			}
			return nil
		}

		rotation.RawToken, rotation.Token, err = r.replaceLocked(ctx, tx, current.UserID, ttl)
		return err
	})
	if err != nil {
		return rotation, err
	}
	if rejection != nil {
		return rotation, rejection
	}

	return rotation, nil
}

// CleanExpired removes refresh tokens past their expiry.
func (r *RefreshTokenRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// replaceLocked expects the caller to hold the users row lock for userID.
func (r *RefreshTokenRepository) replaceLocked(ctx context.Context, tx pgx.Tx, userID string, ttl time.Duration) (string, model.RefreshToken, error) {
	if _, err := tx.Exec(ctx, `UPDATE refresh_tokens SET used = true WHERE user_id = $1`, userID); err != nil {
		return "", model.RefreshToken{}, fmt.Errorf("mark previous refresh tokens used: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return "", model.RefreshToken{}, fmt.Errorf("delete previous refresh tokens: %w", err)
	}

	now := r.now().UTC()
	raw := uuid.NewString()
	token := model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Used, token.CreatedAt)
	if err != nil {
		return "", model.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}

	return raw, token, nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func scanRefreshToken(row pgx.Row) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("scan refresh token: %w", err)
	}
	return t, nil
}
