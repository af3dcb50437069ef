package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestBlacklistRepo(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewBlacklistRepo(db)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	mock.ExpectExec(`INSERT INTO token_blacklist \(jti, expires_at\) VALUES \(\$1, \$2\) ON CONFLICT \(jti\) DO NOTHING`).
		WithArgs("j1", exp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Add(ctx, "j1", exp))

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM token_blacklist WHERE jti = \$1\)`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.Exists(ctx, "j1")
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec(`DELETE FROM token_blacklist WHERE expires_at < now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	n, err := r.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
