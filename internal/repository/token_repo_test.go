package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"

	"go-business-hub/internal/model"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	qLockUser      = regexp.QuoteMeta(`SELECT id FROM users WHERE id = $1 FOR UPDATE`)
	qOwner         = regexp.QuoteMeta(`SELECT user_id FROM refresh_tokens WHERE token_hash = $1`)
	qLockToken     = `SELECT id, user_id, token_hash, expires_at, used, created_at FROM refresh_tokens WHERE token_hash = \$1 FOR UPDATE`
	qMarkAllUsed   = regexp.QuoteMeta(`UPDATE refresh_tokens SET used = true WHERE user_id = $1`)
	qDeleteAll     = regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE user_id = $1`)
	qDeleteByID    = regexp.QuoteMeta(`DELETE FROM refresh_tokens WHERE id = $1`)
	qInsertToken   = regexp.QuoteMeta(`INSERT INTO refresh_tokens`)
	refreshColumns = []string{"id", "user_id", "token_hash", "expires_at", "used", "created_at"}
)

func newTokenRepo(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := NewRefreshTokenRepository(mock).WithClock(func() time.Time { return fixedNow })
	return repo, mock
}

func expectReplace(mock pgxmock.PgxPoolIface, userID string) {
	mock.ExpectExec(qMarkAllUsed).WithArgs(userID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(qDeleteAll).WithArgs(userID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(qInsertToken).
		WithArgs(pgxmock.AnyArg(), userID, pgxmock.AnyArg(), fixedNow.Add(time.Hour), false, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestRefreshTokenCreateReplacesExisting(t *testing.T) {
	repo, mock := newTokenRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
	expectReplace(mock, "user-1")
	mock.ExpectCommit()

	raw, token, err := repo.Create(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Equal(t, HashToken(raw), token.TokenHash)
	require.NotEqual(t, raw, token.TokenHash)
	require.Equal(t, "user-1", token.UserID)
	require.Equal(t, fixedNow.Add(time.Hour), token.ExpiresAt)
	require.False(t, token.Used)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenCreateUnknownUser(t *testing.T) {
	repo, mock := newTokenRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.Create(context.Background(), "ghost", time.Hour)
	require.ErrorIs(t, err, model.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRotate(t *testing.T) {
	raw := "presented-token"
	hash := HashToken(raw)

	t.Run("live token is replaced", func(t *testing.T) {
		repo, mock := newTokenRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(qOwner).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockUser).WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockToken).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows(refreshColumns).
				AddRow("tok-1", "user-1", hash, fixedNow.Add(time.Minute), false, fixedNow.Add(-time.Hour)))
		expectReplace(mock, "user-1")
		mock.ExpectCommit()

		rotation, err := repo.Rotate(context.Background(), raw, time.Hour)
		require.NoError(t, err)
		require.Equal(t, "tok-1", rotation.Previous.ID)
		require.NotEqual(t, raw, rotation.RawToken)
		require.Equal(t, HashToken(rotation.RawToken), rotation.Token.TokenHash)
		require.Equal(t, "user-1", rotation.Token.UserID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("used token is deleted and reported as reuse", func(t *testing.T) {
		repo, mock := newTokenRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(qOwner).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockUser).WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockToken).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows(refreshColumns).
				AddRow("tok-1", "user-1", hash, fixedNow.Add(time.Minute), true, fixedNow.Add(-time.Hour)))
		mock.ExpectExec(qDeleteByID).WithArgs("tok-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		rotation, err := repo.Rotate(context.Background(), raw, time.Hour)
		require.ErrorIs(t, err, model.ErrRefreshTokenReused)
		require.Equal(t, "user-1", rotation.Previous.UserID)
		require.Empty(t, rotation.RawToken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("token expiring exactly now is expired", func(t *testing.T) {
		repo, mock := newTokenRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(qOwner).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockUser).WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockToken).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows(refreshColumns).
				AddRow("tok-1", "user-1", hash, fixedNow, false, fixedNow.Add(-time.Hour)))
		mock.ExpectExec(qDeleteByID).WithArgs("tok-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		_, err := repo.Rotate(context.Background(), raw, time.Hour)
		require.ErrorIs(t, err, model.ErrRefreshTokenExpired)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		repo, mock := newTokenRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(qOwner).WithArgs(hash).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.Rotate(context.Background(), raw, time.Hour)
		require.ErrorIs(t, err, model.ErrTokenNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loser of a concurrent rotation sees not found", func(t *testing.T) {
		repo, mock := newTokenRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery(qOwner).WithArgs(hash).
			WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockUser).WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
		mock.ExpectQuery(qLockToken).WithArgs(hash).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.Rotate(context.Background(), raw, time.Hour)
		require.ErrorIs(t, err, model.ErrTokenNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRefreshTokenMarkUsedIsIdempotent(t *testing.T) {
	repo, mock := newTokenRepo(t)
	hash := HashToken("raw")

	q := regexp.QuoteMeta(`UPDATE refresh_tokens SET used = true WHERE token_hash = $1`)
	mock.ExpectExec(q).WithArgs(hash).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q).WithArgs(hash).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	for range 2 {
		n, err := repo.MarkUsed(context.Background(), "raw")
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenFindByPrincipalNotFound(t *testing.T) {
	repo, mock := newTokenRepo(t)

	mock.ExpectQuery(`FROM refresh_tokens\s+WHERE user_id = \$1`).WithArgs("user-1").WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByPrincipal(context.Background(), "user-1")
	require.ErrorIs(t, err, model.ErrTokenNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHashTokenIsStableHex(t *testing.T) {
	require.Equal(t, HashToken("abc"), HashToken("abc"))
	require.Len(t, HashToken("abc"), 64)
	require.NotEqual(t, HashToken("abc"), HashToken("abd"))
}
