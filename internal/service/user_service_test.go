package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbook/internal/repository"
	"finbook/internal/repository/sqlite"
)

func newTestRepos(t *testing.T) (repository.UserRepository, repository.OperationRepository) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return initRepos(t, db)
}

func initRepos(t *testing.T, db *sql.DB) (repository.UserRepository, repository.OperationRepository) {
	t.Helper()

	users := sqlite.NewUserRepository(db)
	operations := sqlite.NewOperationRepository(db)
	require.NoError(t, users.Init(context.Background()))
	require.NoError(t, operations.Init(context.Background()))
	return users, operations
}

func TestRegisterAndAuthenticate(t *testing.T) {
	users, _ := newTestRepos(t)
	svc := NewUserService(users, 4)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@x.com", "a", "password")
	require.NoError(t, err)
	assert.NotZero(t, registered.ID)
	assert.Equal(t, "a@x.com", registered.Email)
	assert.Empty(t, registered.PasswordHash)

	authenticated, err := svc.Authenticate(ctx, "a", "password")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, authenticated.ID)
	assert.Equal(t, registered.Email, authenticated.Email)
	assert.Equal(t, registered.Username, authenticated.Username)
}

func TestRegisterDuplicate(t *testing.T) {
	users, _ := newTestRepos(t)
	svc := NewUserService(users, 4)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "a", "password")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "a@x.com", "other", "password")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.Register(ctx, "other@x.com", "a", "password")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	users, _ := newTestRepos(t)
	svc := NewUserService(users, 4)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "a", "password")
	require.NoError(t, err)

	// unknown username and wrong password fail identically
	_, unknownErr := svc.Authenticate(ctx, "nobody", "password")
	_, wrongErr := svc.Authenticate(ctx, "a", "wrong")

	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestRegisterRequiresFields(t *testing.T) {
	users, _ := newTestRepos(t)
	svc := NewUserService(users, 4)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "a", "password")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "a@x.com", "", "password")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "a@x.com", "a", "")
	assert.Error(t, err)
}
