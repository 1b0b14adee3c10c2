package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRelay(t *testing.T) *RedisRelay {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRelay(client, "")
}

func TestRedisRelay_DeliversToGroup(t *testing.T) {
	relay := newRedisRelay(t)
	ctx := context.Background()

	mine, cancelMine, err := relay.Subscribe(ctx, LectureGroup("7"))
	require.NoError(t, err)
	defer cancelMine()
	other, cancelOther, err := relay.Subscribe(ctx, LectureGroup("8"))
	require.NoError(t, err)
	defer cancelOther()

	evt, err := NewEvent(TypeAttendanceStatus, map[string]string{"status": "approved"})
	require.NoError(t, err)
	require.NoError(t, relay.Publish(ctx, LectureGroup("7"), evt))

	select {
	case got := <-mine:
		assert.Equal(t, TypeAttendanceStatus, got.Type)
		assert.JSONEq(t, `{"status":"approved"}`, string(got.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case got := <-other:
		t.Fatalf("unexpected event on other group: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisRelay_CancelClosesChannel(t *testing.T) {
	relay := newRedisRelay(t)

	events, cancel, err := relay.Subscribe(context.Background(), StudentGroup("42"))
	require.NoError(t, err)
	cancel()
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestRedisRelay_ContextEndsSubscription(t *testing.T) {
	relay := newRedisRelay(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, _, err := relay.Subscribe(ctx, StudentGroup("42"))
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}
