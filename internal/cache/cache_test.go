package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Rate string   `json:"rate"`
	Tags []string `json:"tags"`
}

func exerciseRoundTrip(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	in := payload{Rate: "18.500000", Tags: []string{"USD", "ZAR"}}

	require.NoError(t, c.Set(ctx, "k1", in, time.Hour))
	var out payload
	found, err := c.Get(ctx, "k1", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)

	found, err = c.Get(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Delete(ctx, "k1"))
	found, err = c.Get(ctx, "k1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "a", 1, time.Hour))
	require.NoError(t, c.Set(ctx, "b", 2, time.Hour))
	require.NoError(t, c.Clear(ctx))
	var n int
	found, err = c.Get(ctx, "a", &n)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryRoundTrip(t *testing.T) {
	exerciseRoundTrip(t, NewMemory())
}

func TestMemoryExpiresLazily(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, m.Set(ctx, "forever", "v", 0))

	now = now.Add(59 * time.Second)
	var v string
	found, _ := m.Get(ctx, "k", &v)
	assert.True(t, found)
	assert.Equal(t, 2, m.Len())

	now = now.Add(time.Second)
	found, _ = m.Get(ctx, "k", &v)
	assert.False(t, found)
	assert.Equal(t, 1, m.Len())

	now = now.Add(24 * 365 * time.Hour)
	found, _ = m.Get(ctx, "forever", &v)
	assert.True(t, found)
}

func TestRedisRoundTripAndExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := DialRedis(context.Background(), "redis://"+srv.Addr()+"/0", "", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	exerciseRoundTrip(t, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "ttl", "v", 30*time.Minute))
	assert.True(t, srv.Exists("forex:ttl"))

	srv.FastForward(31 * time.Minute)
	var v string
	found, err := c.Get(ctx, "ttl", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisClearKeepsForeignKeys(t *testing.T) {
	srv := miniredis.RunT(t)
	require.NoError(t, srv.Set("other:key", "x"))

	c := NewRedis(redis.NewClient(&redis.Options{Addr: srv.Addr()}), "forex:")
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, k, time.Hour))
	}
	require.NoError(t, c.Clear(ctx))

	assert.True(t, srv.Exists("other:key"))
	assert.False(t, srv.Exists("forex:a"))
}

func TestBadgerRoundTrip(t *testing.T) {
	c, err := OpenBadger("", "", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	exerciseRoundTrip(t, c)
}

func TestBadgerHonoursKeyPrefix(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	openAt := func(prefix string) Cache {
		c, err := New(ctx, Options{Backend: BackendBadger, BadgerPath: dir, KeyPrefix: prefix}, zerolog.Nop())
		require.NoError(t, err)
		return c
	}

	first := openAt("fxa:")
	require.NoError(t, first.Set(ctx, "k", "kept", time.Hour))
	require.NoError(t, first.Close())

	second := openAt("fxb:")
	var v string
	found, err := second.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, second.Clear(ctx))
	require.NoError(t, second.Close())

	third := openAt("fxa:")
	t.Cleanup(func() { _ = third.Close() })
	found, err = third.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "kept", v)
}

func TestBadgerExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("badger TTLs have one-second resolution")
	}
	c, err := OpenBadger(t.TempDir(), "", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Second))
	time.Sleep(2100 * time.Millisecond)

	var v string
	found, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewAutoFallsBackToMemory(t *testing.T) {
	c, err := New(context.Background(), Options{
		Backend:      BackendAuto,
		RedisURL:     "redis://127.0.0.1:1/0",
		ProbeTimeout: 100 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Name())
}

func TestNewRedisUnreachableIsFatal(t *testing.T) {
	_, err := New(context.Background(), Options{
		Backend:      BackendRedis,
		RedisURL:     "redis://127.0.0.1:1/0",
		ProbeTimeout: 100 * time.Millisecond,
	}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewAutoPrefersReachableRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := New(context.Background(), Options{RedisURL: "redis://" + srv.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, "redis", c.Name())
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend(" Redis ")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, b)

	b, err = ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendAuto, b)

	_, err = ParseBackend("memcached")
	assert.Error(t, err)
}

func TestKeysSeparateRequests(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	k1 := RatesKey("key-a", []string{"usd", "eur"}, []string{"ZAR"}, start, end)
	k2 := RatesKey("key-a", []string{"EUR", "USD"}, []string{"zar"}, start, end)
	assert.Equal(t, k1, k2, "order and case must not matter")

	assert.NotEqual(t, k1, RatesKey("key-b", []string{"USD", "EUR"}, []string{"ZAR"}, start, end))
	assert.NotEqual(t, k1, RatesKey("key-a", []string{"USD", "EUR"}, nil, start, end))
	assert.NotEqual(t, k1, RatesKey("key-a", []string{"USD", "EUR"}, []string{"ZAR"}, start, end.AddDate(0, 0, 1)))
	assert.NotContains(t, k1, "key-a")

	assert.Equal(t, "audit_rate:2024-01-01:USD:ZAR", AuditRateKey(start, " usd", "zar"))
	assert.Equal(t, "currencies:"+Fingerprint("key-a")+":USD", CurrenciesKey("key-a", "usd"))
}
