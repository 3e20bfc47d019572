package netsync

import (
	"context"
	"sync"

	"github.com/drpcorg/recordcrdt/crdt"
	"github.com/drpcorg/recordcrdt/protocol"
	"github.com/drpcorg/recordcrdt/wire"
	"github.com/google/uuid"
)

// SyncHandler is the protocol.FeedDrainCloserTraced a Hub installs for one
// Peer connection: Feed ships everything GetChangesSince the high-water
// mark this peer has already received, and Drain decodes and merges
// whatever the remote side sent, through the shared store.
type SyncHandler struct {
	traceID string
	store   *crdt.Store[string, any]
	codec   wire.ValueCodec
	mu      *sync.Mutex

	sent   uint64
	woken  chan struct{}
	closed chan struct{}
}

func newSyncHandler(name string, store *crdt.Store[string, any], mu *sync.Mutex, codec wire.ValueCodec) *SyncHandler {
	return &SyncHandler{
		traceID: name + ":" + uuid.NewString(),
		store:   store,
		codec:   codec,
		mu:      mu,
		woken:   make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (h *SyncHandler) GetTraceId() string { return h.traceID }

func (h *SyncHandler) signal() {
	select {
	case h.woken <- struct{}{}:
	default:
	}
}

// Feed blocks until the store has new changes for this peer or ctx is
// cancelled. A freshly installed handler has sent=0, so the first call
// always ships the full data set the peer hasn't seen yet.
func (h *SyncHandler) Feed(ctx context.Context) (protocol.Records, error) {
	for {
		h.mu.Lock()
		changes := h.store.GetChangesSince(h.sent)
		var watermark uint64
		if len(changes) > 0 {
			watermark = h.store.Clock()
		}
		h.mu.Unlock()

		if len(changes) > 0 {
			h.sent = watermark
			return wire.Encode(changes, h.codec)
		}

		select {
		case <-h.woken:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-h.closed:
			return nil, context.Canceled
		}
	}
}

// Drain decodes recs and merges the resulting changes into the shared
// store. ignoreParent is always false here: peer-to-peer merges never
// need the privileged parent-propagation bypass.
func (h *SyncHandler) Drain(ctx context.Context, recs protocol.Records) error {
	changes, err := wire.Decode(recs, h.codec)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.store.MergeChanges(changes, false)
	h.mu.Unlock()
	return nil
}

func (h *SyncHandler) Close() error {
	select {
	case <-h.closed:
	default:
		close(h.closed)
	}
	return nil
}
