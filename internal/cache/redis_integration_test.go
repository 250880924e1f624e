//go:build integration

package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
)

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestRedisCacheKeepsNewestVersion(t *testing.T) {
	ctx := context.Background()
	rdb, err := Dial(ctx, startRedis(t, ctx))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewRedisCache(rdb, time.Minute, nil)
	key := domain.AggregateKey{TenantID: "t", UserID: "u", RecordType: "hydration", Date: "2024-03-01"}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	version := func(total string, at time.Time) domain.DailyAggregate {
		return domain.DailyAggregate{AggregateKey: key, Category: "cumulative_sum", RecordCount: 1, Payload: json.RawMessage(`{"total":` + total + `}`), UpdatedAt: at}
	}

	c.Set(ctx, version("3", base.Add(time.Second)))
	c.Set(ctx, version("1", base))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.JSONEq(t, `{"total":3}`, string(got.Payload))

	require.NoError(t, c.Evict(ctx, key, base.Add(2*time.Second)))
	_, ok = c.Get(ctx, key)
	require.False(t, ok)

	c.Set(ctx, version("3", base.Add(time.Second)))
	_, ok = c.Get(ctx, key)
	require.False(t, ok, "a fill older than the eviction must not resurrect the entry")

	c.Set(ctx, version("5", base.Add(3*time.Second)))
	got, ok = c.Get(ctx, key)
	require.True(t, ok)
	require.JSONEq(t, `{"total":5}`, string(got.Payload))

	ttl, err := rdb.PTTL(ctx, Key(key)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
