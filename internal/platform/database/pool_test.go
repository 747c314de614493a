package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyURLYieldsNilPool(t *testing.T) {
	pool, err := New(context.Background(), DefaultConfig())

	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.ErrorIs(t, pool.Health(context.Background()), ErrNotConfigured)
	assert.NoError(t, pool.Close())
}

func TestNew_RejectsUnparsableURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://credreg@localhost:notaport/credreg"

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}
