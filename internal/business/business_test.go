package business

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zjoart/go-paystack-settlement/internal/testutil"
)

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := NewRepository(testutil.NewDB(t, &Business{}))
	ctx := context.Background()

	b := &Business{OwnerUserID: uuid.New(), Name: "Qwik Kicks"}
	require.NoError(t, repo.Create(ctx, b))
	assert.NotEqual(t, uuid.Nil, b.ID)

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.OwnerUserID, got.OwnerUserID)
	assert.Empty(t, got.SubaccountCode)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrBusinessNotFound)
}
