package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	info, err := s.Upload(ctx, "user-1", "jan statement.csv", "text/csv", strings.NewReader("Date,Amount\n"))
	require.NoError(t, err)
	assert.EqualValues(t, 12, info.Size)
	assert.True(t, strings.HasPrefix(info.Key, "user-1/"))
	assert.True(t, strings.HasSuffix(info.Key, "_jan statement.csv"))

	rc, err := s.Open(ctx, info.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "Date,Amount\n", string(body))

	require.NoError(t, s.Delete(ctx, info.Key))
	_, err = s.Open(ctx, info.Key)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, info.Key), "deleting twice is fine")
}

func TestLocalStorage_SanitizesNames(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	info, err := s.Upload(context.Background(), "../../etc", "../passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotContains(t, info.Key, "..")
	assert.Equal(t, 1, strings.Count(info.Key, "/"))
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "../outside")
	assert.ErrorContains(t, err, "invalid storage key")
	assert.Error(t, s.Delete(context.Background(), ""))
}

func TestNew(t *testing.T) {
	s, err := New(context.Background(), Config{Type: StorageTypeLocal, LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = New(context.Background(), Config{Type: "s3"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Type: StorageTypeGCS})
	assert.ErrorContains(t, err, "bucket")
}
