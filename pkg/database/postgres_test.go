package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/pkg/config"
)

// newTestDB connects with DATABASE_URL or skips
func newTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	db, err := New(cfg)
	require.NoError(t, err, "Failed to create database")
	t.Cleanup(db.Close)
	return db
}

func TestNew(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, db.Ping(ctx))
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.NotZero(t, status.Stats.MaxConns)
}

func TestMigrate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	applied, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	// idempotent
	_, err = db.Migrate(ctx)
	require.NoError(t, err)

	var exists bool
	err = db.Pool.QueryRow(ctx, `SELECT to_regclass('consult.request_snapshots') IS NOT NULL`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMigrationNames(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_consult.sql", names[0])
}

func TestNewWithInvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:             "invalid://url",
			MaxConns:        25,
			MinConns:        5,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
	}

	_, err := New(cfg)
	assert.Error(t, err, "Expected error with invalid database URL")
}

func TestClose(t *testing.T) {
	db := newTestDB(t)

	// Close should not panic
	db.Close()

	// Double close should not panic
	db.Close()
}
