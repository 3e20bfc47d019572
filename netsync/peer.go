package netsync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/recordcrdt/protocol"
	"github.com/drpcorg/recordcrdt/rlog"
)

// Peer drives one TCP connection's read and write loops on behalf of a
// protocol.FeedDrainCloserTraced: keepRead accumulates bytes off the
// socket and calls Drain() once enough has arrived (or the accumulation
// deadline lapses), keepWrite polls Feed() and writes whatever it returns
// with a single vectored net.Buffers.WriteTo call.
type Peer struct {
	closed         atomic.Bool
	wg             sync.WaitGroup
	writeBatchSize *rlog.AvgVal

	conn                net.Conn
	inout               protocol.FeedDrainCloserTraced
	incomingBuffer      atomic.Int32
	readAccumtTimeLimit time.Duration
	bufferMaxSize       int
	bufferMinToProcess  int
	writeTimeout        time.Duration
}

func (p *Peer) getReadTimeLimit() time.Duration {
	if p.readAccumtTimeLimit != 0 {
		return p.readAccumtTimeLimit
	}
	return 5 * time.Second
}

// keepRead grows an MTU-chunked buffer off the socket and hands
// everything it can split into whole TLV records to Drain, either once
// bufferMinToProcess bytes have accumulated, the read deadline lapses, or
// bufferMaxSize is hit and a flush is forced to bound memory.
func (p *Peer) keepRead(ctx context.Context) error {
	var buf bytes.Buffer
	var deadline time.Time

	for !p.closed.Load() {
		if buf.Available() < TYPICAL_MTU {
			buf.Grow(TYPICAL_MTU)
		}
		if deadline.IsZero() {
			deadline = time.Now().Add(p.getReadTimeLimit())
		}
		p.conn.SetReadDeadline(deadline)

		idle := buf.AvailableBuffer()[:buf.Available()]
		n, err := p.conn.Read(idle)
		switch {
		case err == nil:
			buf.Write(idle[:n])
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrDeadlineExceeded):
			// no new bytes this round; fall through to the flush check
		default:
			return err
		}
		p.incomingBuffer.Store(int32(buf.Len()))

		if buf.Len() < p.bufferMinToProcess && buf.Len() < p.bufferMaxSize && !time.Now().After(deadline) {
			continue
		}
		deadline = time.Time{}

		recs, splitErr := protocol.Split(&buf)
		if splitErr != nil && !errors.Is(splitErr, protocol.ErrIncomplete) {
			return splitErr
		}
		if errors.Is(splitErr, protocol.ErrIncomplete) && buf.Len() >= p.bufferMaxSize {
			return errors.Join(splitErr, errors.New("buffer full with an incomplete record"))
		}
		if len(recs) == 0 {
			continue
		}
		if err := p.inout.Drain(ctx, recs); err != nil {
			return err
		}
	}

	return nil
}

func (p *Peer) GetTraceId() string {
	return p.inout.GetTraceId()
}

func (p *Peer) GetIncomingPacketBufferSize() int32 {
	return p.incomingBuffer.Load()
}

// keepWrite polls inout.Feed() for outbound records and writes each batch
// to the socket with a single vectored net.Buffers call, tracking batch
// size for NetStats.
func (p *Peer) keepWrite(ctx context.Context) error {
	for !p.closed.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		recs, err := p.inout.Feed(ctx)
		if err != nil {
			return err
		}

		batchSize := 0
		for _, r := range recs {
			batchSize += len(r)
		}
		p.writeBatchSize.Add(float64(batchSize))

		if p.writeTimeout != 0 {
			p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		}
		b := net.Buffers(recs)
		for len(b) > 0 {
			if _, err := b.WriteTo(p.conn); err != nil {
				return err
			}
		}
	}

	return nil
}

// Keep runs keepRead and keepWrite concurrently and blocks until both
// have exited: the write side finishing closes the connection, which is
// what unblocks a read that is parked in a socket read call. The read side
// exiting first does not close the connection or wake keepWrite; that
// loop returns after its next Feed result or when ctx is cancelled.
func (p *Peer) Keep(ctx context.Context) (rerr, werr, cerr error) {
	p.wg.Add(2)
	defer p.wg.Add(-2)

	if p.closed.Load() {
		return nil, nil, nil
	}

	readErrCh, writeErrCh := make(chan error, 1), make(chan error, 1)
	go func() { readErrCh <- p.keepRead(ctx) }()
	go func() { writeErrCh <- p.keepWrite(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case rerr = <-readErrCh:
			if errors.Is(rerr, net.ErrClosed) {
				rerr = nil // expected: we probably closed it ourselves
			}
		case werr = <-writeErrCh:
			cerr = p.conn.Close()
		}
		p.closed.Store(true)
	}
	p.conn = nil
	return
}

func (p *Peer) Close() {
	p.closed.Store(true)
	p.wg.Wait()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.inout.Close()
}
