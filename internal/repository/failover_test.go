package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"maidlink/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) SaveCheck(ctx context.Context, rec *models.CheckRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRepo) GetCheck(ctx context.Context, checkID string) (*models.CheckRecord, error) {
	args := m.Called(ctx, checkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckRecord), args.Error(1)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := NewMemoryStateRepository()
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccessMirrorsToFallback", func(t *testing.T) {
		rec := &models.CheckRecord{CheckID: "chk_1"}
		primary.On("SaveCheck", ctx, rec).Return(nil).Once()

		require.NoError(t, repo.SaveCheck(ctx, rec))
		got, err := fallback.GetCheck(ctx, "chk_1")
		require.NoError(t, err)
		assert.NotNil(t, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryMissFallsThrough", func(t *testing.T) {
		primary.On("GetCheck", ctx, "chk_1").Return(nil, nil).Once()

		got, err := repo.GetCheck(ctx, "chk_1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "chk_1", got.CheckID)
	})

	t.Run("PrimaryFailureSwitchesToFallback", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "k", 1, time.Minute).Return(false, errors.New("redis down")).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())

		// still down: primary is not consulted
		allowed, err = repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
		primary.AssertNumberOfCalls(t, "CheckRateLimit", 1)
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		rec := &models.CheckRecord{CheckID: "chk_2", ApplicationID: "app"}
		primary.On("GetCheck", ctx, "chk_2").Return(rec, nil).Once()

		got, err := repo.GetCheck(ctx, "chk_2")
		require.NoError(t, err)
		assert.Equal(t, rec, got)
		assert.False(t, repo.isDown.Load())
	})
}
