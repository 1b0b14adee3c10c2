package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	msg := decode(encode(Message{Type: TypeConfirm, Body: []byte("abc|def")}))
	assert.Equal(t, TypeConfirm, msg.Type)
	assert.Equal(t, "abc|def", string(msg.Body))

	raw := decode("no-separator")
	assert.Empty(t, raw.Type)
	assert.Equal(t, "no-separator", string(raw.Body))
}

func TestInMemory_PublishConsume(t *testing.T) {
	q := NewInMemory(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: TypeConfirm, Body: []byte("a-1")}))
	assert.Equal(t, 1, q.Len())

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		assert.Equal(t, "a-1", string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("message not consumed")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishDropsWhenFull(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "x"}))

	start := time.Now()
	assert.ErrorIs(t, q.Publish(context.Background(), Message{Type: "y"}), ErrFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, q.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "z"}), context.Canceled)
}
