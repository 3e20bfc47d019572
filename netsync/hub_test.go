package netsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/wire"
	"github.com/stretchr/testify/require"
)

// feedOnce drains whatever Feed currently has ready, failing the test if
// nothing arrives within the timeout.
func feedOnce(t *testing.T, h *SyncHandler) [][]byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	recs, err := h.Feed(ctx)
	require.NoError(t, err)
	return recs
}

func TestHubReplicatesLocalWritesToPeer(t *testing.T) {
	var muA, muB sync.Mutex

	hubA := NewHub(nil, &muA, wire.ScalarCodec{})
	hubB := NewHub(nil, &muB, wire.ScalarCodec{})

	storeA := crdt.NewStore[string, any](1, crdt.WithOnApplied[string, any](hubA.NotifyApplied))
	storeB := crdt.NewStore[string, any](2, crdt.WithOnApplied[string, any](hubB.NotifyApplied))
	hubA.store = storeA
	hubB.store = storeB

	peerOnA := hubA.Install("to-b")
	peerOnB := hubB.Install("to-a")

	muA.Lock()
	storeA.InsertOrUpdate("r1", map[string]any{"name": "alice"})
	muA.Unlock()

	recs := feedOnce(t, peerOnA.(*SyncHandler))
	require.NoError(t, peerOnB.Drain(context.Background(), recs))

	muB.Lock()
	data := storeB.GetData()
	muB.Unlock()

	require.Equal(t, "alice", data["r1"]["name"])
}

func TestHubFeedBlocksUntilWoken(t *testing.T) {
	var mu sync.Mutex
	hub := NewHub(nil, &mu, wire.ScalarCodec{})
	store := crdt.NewStore[string, any](1, crdt.WithOnApplied[string, any](hub.NotifyApplied))
	hub.store = store

	peer := hub.Install("peer").(*SyncHandler)

	done := make(chan [][]byte, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		recs, err := peer.Feed(ctx)
		if err == nil {
			done <- recs
		} else {
			done <- nil
		}
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	store.InsertOrUpdate("r1", map[string]any{"name": "bob"})
	mu.Unlock()

	select {
	case recs := <-done:
		require.NotEmpty(t, recs)
	case <-time.After(2 * time.Second):
		t.Fatal("Feed did not unblock after a write")
	}
}

func TestHubDestroyRemovesPeer(t *testing.T) {
	var mu sync.Mutex
	hub := NewHub(nil, &mu, wire.ScalarCodec{})
	store := crdt.NewStore[string, any](1, crdt.WithOnApplied[string, any](hub.NotifyApplied))
	hub.store = store

	handler := hub.Install("peer")
	require.Equal(t, 1, hub.PeerCount())

	hub.Destroy("peer", handler.(*SyncHandler))
	require.Equal(t, 0, hub.PeerCount())
}
