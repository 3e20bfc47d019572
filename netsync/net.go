// Net is a minimal TCP transport for the replication protocol: dial or
// listen, hand each accepted/dialed socket to a Peer, and let the
// installed protocol.FeedDrainCloserTraced (a Hub's SyncHandler, in this
// module) drive Feed/Drain over it. TLS, QUIC, multi-address failover and
// reconnect backoff are the kind of thing a production deployment would
// layer on top of this, but nothing here exercises them, so they are not
// built: a dial that fails returns an error to the caller instead of
// retrying, and a listener only ever speaks plain TCP.
package netsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/drpcorg/recordcrdt/protocol"
	"github.com/drpcorg/recordcrdt/rlog"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// ConnType represents the type of network connection.
type ConnType = uint

var (
	// ErrAddressInvalid is returned when the provided address format is invalid
	ErrAddressInvalid = errors.New("the address invalid")
	// ErrAddressDuplicated is returned when attempting to use an address that's already in use
	ErrAddressDuplicated = errors.New("the address already used")
	// ErrAddressUnknown is returned when trying to disconnect from an unknown address
	ErrAddressUnknown = errors.New("address unknown")
	// ErrDisconnected is returned when a connection is closed by the user
	ErrDisconnected = errors.New("disconnected by user")
)

const (
	TCP ConnType = iota + 1
)

const (
	// TYPICAL_MTU is the typical Maximum Transmission Unit size.
	TYPICAL_MTU = 1500
	// MAX_OUT_QUEUE_LEN is the maximum length of the output queue (8MB of pointers).
	MAX_OUT_QUEUE_LEN = 1 << 20
)

type InstallCallback func(name string) protocol.FeedDrainCloserTraced
type DestroyCallback func(name string, p protocol.Traced)

// Net manages TCP listeners and connections, handing each Peer to its
// installed protocol handler for the duration of the socket's life.
type Net struct {
	wg        sync.WaitGroup
	log       rlog.Logger
	onInstall InstallCallback
	onDestroy DestroyCallback

	conns     *xsync.MapOf[string, *Peer]
	listens   *xsync.MapOf[string, net.Listener]
	ctx       context.Context
	cancelCtx context.CancelFunc

	readAccumTimeLimit time.Duration
	writeTimeout       time.Duration
	bufferMaxSize      int
	bufferMinToProcess int
}

type NetOpt interface {
	Apply(*Net)
}

type NetWriteTimeoutOpt struct {
	Timeout time.Duration
}

func (opt *NetWriteTimeoutOpt) Apply(n *Net) {
	n.writeTimeout = opt.Timeout
}

type NetReadBatchOpt struct {
	ReadAccumTimeLimit time.Duration
	BufferMaxSize      int
	BufferMinToProcess int
}

func (opt *NetReadBatchOpt) Apply(n *Net) {
	n.readAccumTimeLimit = opt.ReadAccumTimeLimit
	n.bufferMaxSize = opt.BufferMaxSize
	n.bufferMinToProcess = opt.BufferMinToProcess
}

// NewNet creates a new network instance with the specified logger and
// install/destroy callbacks. Additional configuration can be provided
// through NetOpt parameters.
func NewNet(log rlog.Logger, install InstallCallback, destroy DestroyCallback, opts ...NetOpt) *Net {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Net{
		log:       log,
		cancelCtx: cancel,
		ctx:       ctx,
		conns:     xsync.NewMapOf[string, *Peer](),
		listens:   xsync.NewMapOf[string, net.Listener](),
		onInstall: install,
		onDestroy: destroy,
	}
	for _, o := range opts {
		o.Apply(n)
	}
	return n
}

type NetStats struct {
	ReadBuffers  map[string]int32
	WriteBatches map[string]int32
}

func (n *Net) GetStats() NetStats {
	stats := NetStats{
		ReadBuffers:  make(map[string]int32),
		WriteBatches: make(map[string]int32),
	}
	n.conns.Range(func(name string, peer *Peer) bool {
		if peer != nil {
			stats.ReadBuffers[name] = peer.GetIncomingPacketBufferSize()
			stats.WriteBatches[name] = int32(peer.writeBatchSize.Val())
		}
		return true
	})
	return stats
}

func (n *Net) Close() error {
	n.cancelCtx()

	n.listens.Range(func(_ string, v net.Listener) bool {
		v.Close()
		return true
	})
	n.listens.Clear()

	n.conns.Range(func(_ string, p *Peer) bool {
		// sometimes it can be nil when we started connecting, but haven't connected yet
		if p != nil {
			p.Close()
		}
		return true
	})
	n.conns.Clear()

	n.wg.Wait()
	return nil
}

// Connect dials addr once and, on success, hands the socket to a Peer in
// its own goroutine. Unlike a production reconnect loop, a failed dial is
// returned to the caller directly: nothing in this module needs a
// connection to survive a transient network blip on its own.
func (n *Net) Connect(addr string) error {
	if _, ok := n.conns.LoadOrStore(addr, nil); ok {
		return ErrAddressDuplicated
	}

	conn, err := n.createConn(addr)
	if err != nil {
		n.conns.Delete(addr)
		return err
	}
	n.log.Info("net: connected", "name", addr)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.keepPeer(addr, conn)
	}()

	return nil
}

func (n *Net) Disconnect(name string) error {
	conn, ok := n.conns.LoadAndDelete(name)
	if !ok {
		return ErrAddressUnknown
	}
	conn.Close()
	return nil
}

// Listen starts listening for incoming TCP connections on addr. addr may
// carry an explicit "tcp://" scheme or omit it.
func (n *Net) Listen(addr string) error {
	// nil is needed so that Listen cannot be called
	// while creating listener
	if _, ok := n.listens.LoadOrStore(addr, nil); ok {
		return ErrAddressDuplicated
	}

	listener, err := n.createListener(addr)
	if err != nil {
		n.listens.Delete(addr)
		return err
	}
	n.listens.Store(addr, listener)

	n.log.Info("net: listening", "addr", addr)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.KeepListening(addr)
	}()

	return nil
}

func (n *Net) Unlisten(addr string) error {
	listener, ok := n.listens.LoadAndDelete(addr)
	if !ok {
		return ErrAddressUnknown
	}
	return listener.Close()
}

// KeepListening accepts connections on addr until it is closed, handing
// each one to its own keepPeer goroutine.
func (n *Net) KeepListening(addr string) {
	for n.ctx.Err() == nil {
		listener, ok := n.listens.Load(addr)
		if !ok {
			break
		}

		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			// reconnects are the client's problem, just continue
			n.log.Error("net: couldn't accept request", "addr", addr, "err", err)
			continue
		}

		remoteAddr := conn.RemoteAddr().String()
		n.log.Info("net: accept connection", "addr", addr, "remoteAddr", remoteAddr)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.keepPeer(fmt.Sprintf("listen:%s:%s", uuid.Must(uuid.NewV7()).String(), remoteAddr), conn)
		}()
	}

	if l, ok := n.listens.LoadAndDelete(addr); ok {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			n.log.Error("net: couldn't correctly close listener", "addr", addr, "err", err)
		}
	}

	n.log.Info("net: listener closed", "addr", addr)
}

// keepPeer installs a protocol handler for name, registers the resulting
// Peer, and blocks running its read/write loops until the connection
// ends, then cleans up.
func (n *Net) keepPeer(name string, conn net.Conn) {
	peer := &Peer{
		inout:               n.onInstall(name),
		conn:                conn,
		writeTimeout:        n.writeTimeout,
		readAccumtTimeLimit: n.readAccumTimeLimit,
		bufferMaxSize:       n.bufferMaxSize,
		bufferMinToProcess:  n.bufferMinToProcess,
		writeBatchSize:      &rlog.AvgVal{},
	}
	n.conns.Store(name, peer)

	readErr, writeErr, closeErr := peer.Keep(n.ctx)
	if readErr != nil {
		n.log.Error("net: couldn't read from peer", "name", name, "err", readErr, "trace_id", peer.GetTraceId())
	}
	if writeErr != nil {
		n.log.Error("net: couldn't write to peer", "name", name, "err", writeErr, "trace_id", peer.GetTraceId())
	}
	if closeErr != nil {
		n.log.Error("net: couldn't correctly close peer", "name", name, "err", closeErr, "trace_id", peer.GetTraceId())
	}

	n.conns.Delete(name)
	peer.Close()
	n.onDestroy(name, peer)
}

func (n *Net) createListener(addr string) (net.Listener, error) {
	connType, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if connType != TCP {
		return nil, ErrAddressInvalid
	}
	config := net.ListenConfig{}
	return config.Listen(n.ctx, "tcp", address)
}

func (n *Net) createConn(addr string) (net.Conn, error) {
	connType, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if connType != TCP {
		return nil, ErrAddressInvalid
	}
	d := net.Dialer{Timeout: time.Minute}
	return d.DialContext(n.ctx, "tcp", address)
}

// parseAddr parses a network address string into its connection type and
// dialable address. Only the "tcp" scheme (or no scheme) is recognized;
// anything else is ErrAddressInvalid.
//
// Examples:
//   - "tcp://localhost:8080" -> TCP, "localhost:8080"
//   - "localhost:8080" -> TCP, "localhost:8080"
func parseAddr(addr string) (ConnType, string, error) {
	if !strings.Contains(addr, "://") {
		return TCP, addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return 0, "", err
	}

	switch u.Scheme {
	case "", "tcp", "tcp4", "tcp6":
	default:
		return 0, addr, ErrAddressInvalid
	}

	u.Scheme = ""
	address := strings.TrimPrefix(u.String(), "//")

	return TCP, address, nil
}
