package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/zenergy-backend/pkg/db/dbtest"
)

func TestRepositoryListAndClearScopedToUser(t *testing.T) {
	conn := dbtest.Open(t)
	store := dbtest.SeedStore(t, conn)
	product := dbtest.SeedProduct(t, conn, store.ID, "10.00", 5)
	buyer, other := uuid.New(), uuid.New()
	dbtest.SeedCartItem(t, conn, buyer, product.ID, 1)
	dbtest.SeedCartItem(t, conn, buyer, product.ID, 2)
	dbtest.SeedCartItem(t, conn, other, product.ID, 4)

	repo := NewRepository(conn)
	ctx := context.Background()

	items, err := repo.ListByUser(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, items, 2)

	cleared, err := repo.ClearByUser(ctx, buyer)
	require.NoError(t, err)
	require.EqualValues(t, 2, cleared)

	items, err = repo.ListByUser(ctx, buyer)
	require.NoError(t, err)
	require.Empty(t, items)
	require.EqualValues(t, 1, dbtest.Count(t, conn, "cart_items"))
}
