package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "ch:transfers")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "ch:transfers", []byte(`{"n":1}`)))
	require.NoError(t, bus.Publish(ctx, "ch:other", []byte(`{"n":2}`)))

	select {
	case got := <-ch:
		require.JSONEq(t, `{"n":1}`, string(got))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	// Nothing from the other channel leaks in.
	select {
	case got := <-ch:
		t.Fatalf("unexpected message %q", got)
	default:
	}
}

func TestBusSubscribeClosesOnCancel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "ch:transfers")
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-ch:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing to a channel with no subscribers is a no-op.
	require.NoError(t, bus.Publish(context.Background(), "ch:transfers", []byte("x")))
}

func TestBusStreamReadAfterID(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, bus.StreamAppend(ctx, "stream:transfers", []byte(fmt.Sprintf("m%d", i))))
	}

	all, err := bus.StreamRead(ctx, "stream:transfers", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "m1", string(all[0].Payload))

	rest, err := bus.StreamRead(ctx, "stream:transfers", all[2].ID, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, "m4", string(rest[0].Payload))

	limited, err := bus.StreamRead(ctx, "stream:transfers", "0", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "m1", string(limited[0].Payload))

	_, err = bus.StreamRead(ctx, "stream:transfers", "not-a-number", 0)
	require.Error(t, err)
}

func TestBusStreamCapped(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	for i := 0; i < streamMaxLen+10; i++ {
		require.NoError(t, bus.StreamAppend(ctx, "stream:transfers", []byte{byte(i)}))
	}

	all, err := bus.StreamRead(ctx, "stream:transfers", "", 0)
	require.NoError(t, err)
	require.Len(t, all, streamMaxLen)
	// The oldest entries are the ones trimmed.
	require.Equal(t, "11", all[0].ID)
}
