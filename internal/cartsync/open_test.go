package cartsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unibazzar/unibazzar-cart/pkg/config"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

func TestOpenSelectsConfiguredBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		backend string
		want    any
	}{
		{backend: config.BackendMemory, want: &MemoryStore{}},
		{backend: config.BackendFile, want: &FileStore{}},
		{backend: config.BackendSQLite, want: &GormStore{}},
	}

	for _, tc := range cases {
		t.Run(tc.backend, func(t *testing.T) {
			cfg := &config.Config{Storage: config.StorageConfig{
				Backend:    tc.backend,
				FileDir:    filepath.Join(dir, "files"),
				SQLitePath: filepath.Join(dir, "sqlite", "cart.db"),
			}}

			backend := Open(context.Background(), cfg, logger.Nop())
			t.Cleanup(func() { assert.NoError(t, backend.Close()) })

			assert.Equal(t, tc.backend, backend.Name)
			assert.False(t, backend.Degraded)
			assert.IsType(t, tc.want, backend.Store)
			require.NoError(t, backend.Store.Ping(context.Background()))
		})
	}
}

func TestOpenFallsBackToMemoryWhenRedisIsDown(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: config.BackendRedis},
		Redis: config.RedisConfig{
			Address:     "127.0.0.1:1",
			DialTimeout: 200 * time.Millisecond,
		},
	}

	backend := Open(context.Background(), cfg, logger.Nop())
	assert.True(t, backend.Degraded)
	assert.Equal(t, config.BackendMemory, backend.Name)
	assert.IsType(t, &MemoryStore{}, backend.Store)
	assert.NoError(t, backend.Close())
}

func TestOpenFallsBackOnUnknownBackend(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: "tape"}}

	backend := Open(context.Background(), cfg, logger.Nop())
	assert.True(t, backend.Degraded)
	assert.IsType(t, &MemoryStore{}, backend.Store)
}
