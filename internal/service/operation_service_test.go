package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationServiceNotFoundMapping(t *testing.T) {
	users, operations := newTestRepos(t)
	userSvc := NewUserService(users, 4)
	svc := NewOperationService(operations)
	ctx := context.Background()

	user, err := userSvc.Register(ctx, "a@x.com", "a", "password")
	require.NoError(t, err)

	_, err = svc.Get(ctx, user.ID, 12345)
	assert.ErrorIs(t, err, ErrOperationNotFound)

	_, err = svc.Update(ctx, user.ID, 12345, mustInput(t, "2024-01-01", "income", "1.00", nil))
	assert.ErrorIs(t, err, ErrOperationNotFound)

	err = svc.Delete(ctx, user.ID, 12345)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestOperationServiceCreateManyEmpty(t *testing.T) {
	_, operations := newTestRepos(t)
	svc := NewOperationService(operations)

	created, err := svc.CreateMany(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, created)
}
