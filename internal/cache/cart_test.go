package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaydrip/backend/internal/domain"
)

func sampleLines() []domain.CartLine {
	return []domain.CartLine{
		{DesignID: 1, Size: "M", Quantity: 2, Price: decimal.NewFromInt(1299), DesignText: "SD-OVR-BLK | Oversized Tee | Black"},
		{DesignID: 6, Size: "S", Quantity: 1, Price: decimal.RequireFromString("499.50"), DesignText: "SD-CAP-BLK | Logo Cap | Black"},
	}
}

func TestRedisCartStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	carts := NewRedisCartStore(client)

	empty, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	require.NoError(t, carts.Save(ctx, "cashier", sampleLines(), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("cart:cashier"))

	got, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "499.5", got[1].Price.String())
	assert.Equal(t, 2, got[0].Quantity)

	other, err := carts.Load(ctx, "admin")
	require.NoError(t, err)
	assert.Empty(t, other)

	mr.FastForward(2 * time.Hour)
	expired, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, carts.Save(ctx, "cashier", sampleLines(), time.Hour))
	require.NoError(t, carts.Clear(ctx, "cashier"))
	assert.False(t, mr.Exists("cart:cashier"))
}

func TestMemoryCartStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	carts := NewMemoryCartStore()
	carts.now = func() time.Time { return now }

	require.NoError(t, carts.Save(ctx, "cashier", sampleLines(), time.Hour))
	got, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	require.Len(t, got, 2)

	got[0].Quantity = 99
	again, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	assert.Equal(t, 2, again[0].Quantity)

	now = now.Add(2 * time.Hour)
	expired, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, carts.Save(ctx, "cashier", sampleLines(), 0))
	require.NoError(t, carts.Save(ctx, "cashier", nil, time.Hour))
	cleared, err := carts.Load(ctx, "cashier")
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestCartTakeAndRestore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, carts := range map[string]CartStore{
		"memory": NewMemoryCartStore(),
		"redis":  NewRedisCartStore(client),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, carts.Save(ctx, "cashier", sampleLines(), time.Hour))

			taken, err := carts.Take(ctx, "cashier")
			require.NoError(t, err)
			require.Len(t, taken, 2)

			again, err := carts.Take(ctx, "cashier")
			require.NoError(t, err)
			assert.Empty(t, again)

			require.NoError(t, carts.Restore(ctx, "cashier", taken, time.Hour))
			restored, err := carts.Load(ctx, "cashier")
			require.NoError(t, err)
			assert.Len(t, restored, 2)

			newer := sampleLines()[:1]
			require.NoError(t, carts.Save(ctx, "cashier", newer, time.Hour))
			require.NoError(t, carts.Restore(ctx, "cashier", taken, time.Hour))
			kept, err := carts.Load(ctx, "cashier")
			require.NoError(t, err)
			assert.Len(t, kept, 1)

			require.NoError(t, carts.Clear(ctx, "cashier"))
		})
	}
}
