//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisClient_Roundtrip(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(RedisConfig{Addr: host + ":" + port.Port(), PoolSize: 2, Prefix: "fs-test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(ctx, "llm:full:a", []byte(`{"color":"화이트"}`), time.Minute))
	require.NoError(t, client.Set(ctx, "llm:full:b", []byte(`{"color":"블루"}`), time.Minute))

	got, err := client.Get(ctx, "llm:full:a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"color":"화이트"}`, string(got))

	require.NoError(t, client.DeleteByPrefix(ctx, "llm:full:"))
	_, err = client.Get(ctx, "llm:full:b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
