package fanout

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	items []acp.SessionNotification
}

func (r *recordingSink) SessionUpdate(_ context.Context, params acp.SessionNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, params)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func TestChannelDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	ch := Start(context.Background(), sink, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, ch.Send(acp.SessionNotification{SessionId: acp.SessionId(fmt.Sprintf("s%d", i))}))
	}
	ch.Close()

	assert.Equal(t, 5, sink.count())
	for i, item := range sink.items {
		assert.Equal(t, acp.SessionId(fmt.Sprintf("s%d", i)), item.SessionId)
	}
}

func TestChannelCloseDrainsQueuedNotifications(t *testing.T) {
	sink := &recordingSink{}
	ch := Start(context.Background(), sink, nil)

	ch.Send(acp.SessionNotification{SessionId: acp.SessionId("s1")})
	ch.Close()

	assert.Equal(t, 1, sink.count())
}
