package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		body, err := fs.ReadFile(migrations, "migrations/"+e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", e.Name())
		assert.Contains(t, string(body), "-- +goose Down", e.Name())
	}
}

func TestMigrationsCreateTables(t *testing.T) {
	var all strings.Builder
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	for _, e := range entries {
		body, err := fs.ReadFile(migrations, "migrations/"+e.Name())
		require.NoError(t, err)
		all.Write(body)
	}

	for _, table := range []string{"conversions", "transactions", "artifacts", "user_merchant_overrides"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
}

func TestNew_EmptyDSN(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorContains(t, err, "DSN")
}
