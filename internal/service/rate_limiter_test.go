package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_WindowResets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryRateLimiter("sign-in:", 2, time.Minute).(*memoryRateLimiter)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := l.Consume(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, _ = l.Consume(ctx, "10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, _ = l.Consume(ctx, "10.0.0.1")
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(60_000), res.MsBeforeNext)

	other, _ := l.Consume(ctx, "10.0.0.2")
	assert.True(t, other.Allowed, "keys are independent")

	now = now.Add(time.Minute)
	res, _ = l.Consume(ctx, "10.0.0.1")
	assert.True(t, res.Allowed, "window must reset after duration")
}

func newMiniredisLimiter(t *testing.T, points int, duration time.Duration) (*miniredis.Miniredis, RateLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisRateLimiter(client, "email:", points, duration)
}

func TestRedisRateLimiter_ConsumesAndExpires(t *testing.T) {
	mr, l := newMiniredisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	res, err := l.Consume(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.InDelta(t, 60_000, res.MsBeforeNext, 1_000)
	assert.True(t, mr.Exists("email:10.0.0.1"))

	res, err = l.Consume(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	mr.FastForward(time.Minute + time.Second)
	res, err = l.Consume(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisRateLimiter_NilClient(t *testing.T) {
	assert.Nil(t, NewRedisRateLimiter(nil, "x:", 1, time.Minute))
}

type mockRedisEvaler struct {
	lastKeys []string
	lastArgs []interface{}
	result   []interface{}
	err      error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisRateLimiter_ScriptArguments(t *testing.T) {
	mock := &mockRedisEvaler{result: []interface{}{int64(6), int64(1200)}}
	l := newRedisRateLimiter(mock, "security:", 5, 10*time.Minute)

	res, err := l.Consume(context.Background(), " 10.0.0.9 ")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(1200), res.MsBeforeNext)
	assert.Equal(t, []string{"security:10.0.0.9"}, mock.lastKeys)
	assert.Equal(t, []interface{}{int64(600_000)}, mock.lastArgs)
}

func TestRedisRateLimiter_PropagatesErrors(t *testing.T) {
	l := newRedisRateLimiter(&mockRedisEvaler{err: errors.New("redis down")}, "x:", 1, time.Minute)
	_, err := l.Consume(context.Background(), "k")
	assert.Error(t, err)
}
