package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/repository"
	"todo-planner/internal/testutil"
)

func TestUserRepository_UpsertRefreshesProfile(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(testutil.NewDB(t))

	first, err := repo.UpsertFromTelegram(ctx, 77, "Ann", "", "ann")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	again, err := repo.UpsertFromTelegram(ctx, 77, "Anna", "K", "annak")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Anna", again.FirstName)
	assert.Equal(t, "annak", again.Username)

	_, err = repo.UpsertFromTelegram(ctx, 78, "Bob", "", "")
	require.NoError(t, err)

	users, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(77), users[0].TelegramID)
}

func TestCategoryRepository_GetOrCreateIsCaseInsensitivePerUser(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCategoryRepository(testutil.NewDB(t))

	none, err := repo.GetOrCreate(ctx, 1, "  ")
	require.NoError(t, err)
	assert.Nil(t, none)

	home, err := repo.GetOrCreate(ctx, 1, "Home")
	require.NoError(t, err)
	same, err := repo.GetOrCreate(ctx, 1, " home ")
	require.NoError(t, err)
	assert.Equal(t, home.ID, same.ID)
	assert.Equal(t, "Home", same.Name)

	other, err := repo.GetOrCreate(ctx, 2, "Home")
	require.NoError(t, err)
	assert.NotEqual(t, home.ID, other.ID)

	_, err = repo.GetOrCreate(ctx, 1, "Work")
	require.NoError(t, err)
	list, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Home", list[0].Name)
	assert.Equal(t, "Work", list[1].Name)
}
