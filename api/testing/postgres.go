package apitesting

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/spacesquad/mintgate/api/config"
	"github.com/spacesquad/mintgate/distributor/pgstore"
	mgtesting "github.com/spacesquad/mintgate/utils/pkg/testing"
)

// SetupTestDB starts a PostgreSQL container, applies the distributor store
// migrations, and points config.PgPool at it for the duration of the test.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	log := mgtesting.NewLogger()
	db, err := mgtesting.NewDB(t.Context(), log, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, pgstore.RunMigrations(log, db.ConnStr()))

	pool := mgtesting.NewTestPool(t, db)

	oldPool := config.PgPool
	config.PgPool = pool
	t.Cleanup(func() {
		config.PgPool = oldPool
	})

	return pool
}
