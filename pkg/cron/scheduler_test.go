package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) DeleteArtifactsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

func (m *mockStore) DeleteConversionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockFiles struct{ mock.Mock }

func (m *mockFiles) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

var fixedNow = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func newTestScheduler(store RetentionStore, files ObjectDeleter, cfg RetentionConfig) *Scheduler {
	s := NewScheduler(store, files, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestRunRetention(t *testing.T) {
	store := new(mockStore)
	files := new(mockFiles)
	cfg := RetentionConfig{ArtifactTTL: 24 * time.Hour, ConversionTTL: 30 * 24 * time.Hour}

	store.On("DeleteArtifactsBefore", mock.Anything, fixedNow.Add(-24*time.Hour)).
		Return([]string{"u1/a.csv", "u2/b.xlsx"}, nil)
	files.On("Delete", mock.Anything, "u1/a.csv").Return(nil)
	files.On("Delete", mock.Anything, "u2/b.xlsx").Return(errors.New("bucket unavailable"))
	store.On("DeleteConversionsBefore", mock.Anything, fixedNow.Add(-30*24*time.Hour)).
		Return(int64(4), nil)

	report, err := newTestScheduler(store, files, cfg).RunRetention(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RetentionReport{Artifacts: 2, FilesFailed: 1, Conversions: 4}, report)
	store.AssertExpectations(t)
	files.AssertExpectations(t)
}

func TestRunRetention_ZeroTTLSkipsStep(t *testing.T) {
	store := new(mockStore)
	store.On("DeleteConversionsBefore", mock.Anything, mock.Anything).Return(int64(0), nil)

	_, err := newTestScheduler(store, nil, RetentionConfig{ConversionTTL: time.Hour}).RunRetention(context.Background())
	require.NoError(t, err)
	store.AssertNotCalled(t, "DeleteArtifactsBefore", mock.Anything, mock.Anything)
}

func TestRunRetention_StoreError(t *testing.T) {
	store := new(mockStore)
	store.On("DeleteArtifactsBefore", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := newTestScheduler(store, nil, RetentionConfig{ArtifactTTL: time.Hour, ConversionTTL: time.Hour}).RunRetention(context.Background())
	assert.Error(t, err)
	store.AssertNotCalled(t, "DeleteConversionsBefore", mock.Anything, mock.Anything)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := newTestScheduler(new(mockStore), nil, RetentionConfig{Schedule: "every tuesday"})
	assert.Error(t, s.Start())

	s = newTestScheduler(new(mockStore), nil, RetentionConfig{})
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}
