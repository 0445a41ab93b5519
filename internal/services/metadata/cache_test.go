package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/model"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.Load(ctx, "public")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	in := []model.Lift{{ID: "a"}, {ID: "b"}}
	require.NoError(t, c.Store(ctx, "public", in))
	in[0].ID = "mutated"

	out, err := c.Load(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, []model.Lift{{ID: "a"}, {ID: "b"}}, out)

	_, err = c.Load(ctx, "operator:x")
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestRedisCache_PrefixDefault(t *testing.T) {
	rdb := NewRedisClient("localhost:0", "", 0)
	defer rdb.Close()
	c := NewRedisCache(rdb, "", 0)
	assert.Equal(t, "snowpeak:lifts:", c.prefix)
}
