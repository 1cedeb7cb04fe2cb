package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchKey(t *testing.T) {
	assert.Equal(t, "patch:https://cdn.example.com/acpiano.pat", patchKey("https://cdn.example.com/acpiano.pat"))
}

func TestPatchCache_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewPatchCache(client, time.Minute)
	ctx := context.Background()

	data, err := c.Get(ctx, "acpiano.pat")
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Error(t, c.Set(ctx, "acpiano.pat", []byte("GF1")))
}

func TestCheckRedis_NotInitialized(t *testing.T) {
	saved := RedisClient
	RedisClient = nil
	defer func() { RedisClient = saved }()

	assert.Error(t, CheckRedis(context.Background()))
}
