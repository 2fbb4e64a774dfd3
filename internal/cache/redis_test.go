package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"accumulation-lab/internal/domain"
)

func TestKey(t *testing.T) {
	asOf := time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC)
	assert.Equal(t, "accumulation:candidates:2024-03-15", Key(asOf))
}

func TestCandidateCache_NilIsMiss(t *testing.T) {
	ctx := context.Background()
	var c *CandidateCache

	got, ok := c.Get(ctx, time.Now())
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Set(ctx, time.Now(), []domain.BreakoutCandidate{{Rank: 1}}))
	assert.NoError(t, c.Invalidate(ctx))
	assert.NoError(t, c.Close())
}

func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestCandidateCache_RoundTripAndInvalidate(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	c, err := NewCandidateCache(addr, "", time.Minute, nil)
	require.NoError(t, err)
	defer c.Close()

	day1 := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	list := []domain.BreakoutCandidate{
		{Rank: 1, InstrumentID: 7, RankScore: 0.84, Close: 99.5, BoxHigh20: 100},
	}

	_, ok := c.Get(ctx, day1)
	assert.False(t, ok, "expected miss before set")

	require.NoError(t, c.Set(ctx, day1, list))
	require.NoError(t, c.Set(ctx, day2, nil))

	got, ok := c.Get(ctx, day1)
	require.True(t, ok)
	assert.Equal(t, list, got)

	empty, ok := c.Get(ctx, day2)
	require.True(t, ok, "empty lists are cached too")
	assert.Empty(t, empty)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, day1)
	assert.False(t, ok)
	_, ok = c.Get(ctx, day2)
	assert.False(t, ok)
}

func TestNewCandidateCache_Unreachable(t *testing.T) {
	_, err := NewCandidateCache("127.0.0.1:1", "", time.Minute, nil)
	assert.Error(t, err)
}
