package portal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "raw")
	c := NewFileCache(dir)

	_, ok, err := c.Get(ctx, "missing.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "Site1_X(Inverter-Direct,Day of 2020-02-23).csv", "a,b\n"))
	text, ok, err := c.Get(ctx, "Site1_X(Inverter-Direct,Day of 2020-02-23).csv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a,b\n", text)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should be cleaned up")

	// an empty file still counts as present
	require.NoError(t, c.Put(ctx, "empty.csv", ""))
	_, ok, err = c.Get(ctx, "empty.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("SOLARPULL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SOLARPULL_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, addr, "solarpull-test:"+t.Name())
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "k", "v"))
	text, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", text)

	require.NoError(t, c.client.Del(ctx, c.wrapKey("k")).Err())
}
