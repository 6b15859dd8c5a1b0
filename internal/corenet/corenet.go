// Package corenet implements the core-node connection manager: gossip
// membership (Add/Remove/CoreList/RequestCoreList/Ping/AddAsEdge/
// RemoveEdge), periodic liveness sweeps, and dispatch of application
// payloads to an injected handler. Grounded on
// original_source/src/connection_manager_core.rs, with the
// accept-loop/per-connection-goroutine shape adapted from
// daglabs-btcd's net.Listen-based listener (peer/example_test.go,
// netadapter/server/grpcserver/grpc_server.go) and the panic-guarded
// background task pattern from internal/panics.
package corenet

import (
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/message"
	"github.com/simbtc/simbtc/internal/panics"
)

// defaultSweepInterval is the liveness-sweep period (spec.md §4.6).
const defaultSweepInterval = 30 * time.Second

// ApplicationHandler processes an inbound application payload and
// optionally returns a reply payload plus the set of addresses it
// should be sent to (spec.md §4.7).
type ApplicationHandler interface {
	HandleApplicationPayload(payload message.ApplicationPayload, peerAddr string, coreNodes []string, isCore bool) (reply *message.ApplicationPayload, destinations []string)
}

// addrSet is a set of "host:port" strings, mirroring the teacher's
// map-keyed-by-String() connectionSet idiom (connmanager/connection_set.go).
type addrSet map[string]struct{}

func (s addrSet) add(addr string) bool {
	if _, ok := s[addr]; ok {
		return false
	}
	s[addr] = struct{}{}
	return true
}

func (s addrSet) remove(addr string) bool {
	if _, ok := s[addr]; !ok {
		return false
	}
	delete(s, addr)
	return true
}

func (s addrSet) list() []string {
	out := make([]string, 0, len(s))
	for addr := range s {
		out = append(out, addr)
	}
	return out
}

// Manager is the core node's connection manager: it owns the core and
// edge membership sets and dispatches application payloads.
type Manager struct {
	mu      sync.Mutex
	addr    string
	cores   addrSet
	edges   addrSet
	handler ApplicationHandler

	sweepInterval time.Duration
	listener      net.Listener
	spawn         func(func())
	stop          chan struct{}
}

// NewManager creates a core connection manager listening (once
// Listen is called) on addr, with handler servicing application
// payloads. addr is included in its own core set (spec.md §4.6).
func NewManager(addr string, handler ApplicationHandler) *Manager {
	cores := make(addrSet)
	cores.add(addr)
	return &Manager{
		addr:          addr,
		cores:         cores,
		edges:         make(addrSet),
		handler:       handler,
		sweepInterval: defaultSweepInterval,
		spawn:         panics.GoroutineWrapperFunc(logger.CoreNetLog),
		stop:          make(chan struct{}),
	}
}

// SetSweepInterval overrides the default 30s liveness-sweep period.
func (m *Manager) SetSweepInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepInterval = d
}

// MyAddr returns the manager's own "host:port".
func (m *Manager) MyAddr() string {
	return m.addr
}

// CoreNodes returns a snapshot of the known core set (spec.md §4.6).
func (m *Manager) CoreNodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cores.list()
}

// Listen binds the manager's listener and starts the accept loop and
// liveness sweeper as panic-guarded background goroutines (spec.md
// §4.6, §5).
func (m *Manager) Listen() error {
	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}
	m.listener = listener

	m.spawn(m.acceptLoop)
	m.spawn(m.sweepLoop)
	return nil
}

// Join opens a connection to seedAddr and sends Add (spec.md §4.6
// "Join").
func (m *Manager) Join(seedAddr string) {
	m.SendMsg(seedAddr, message.New(m.port(), message.NewAdd()))
}

// Shutdown sends Remove to seedAddr (if non-empty), then stops the
// sweeper and listener (spec.md §4.6 "Join"/shutdown; §5 cancellation).
func (m *Manager) Shutdown(seedAddr string) {
	if seedAddr != "" {
		m.SendMsg(seedAddr, message.New(m.port(), message.NewRemove()))
	}
	close(m.stop)
	if m.listener != nil {
		m.listener.Close()
	}
}

func (m *Manager) port() uint16 {
	_, portStr, err := net.SplitHostPort(m.addr)
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

func (m *Manager) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.stop:
				return
			default:
				logger.CoreNetLog.Errorf("accept failed: %+v", err)
				return
			}
		}
		m.spawn(func() { m.handleConnection(conn) })
	}
}

func (m *Manager) handleConnection(conn net.Conn) {
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		logger.CoreNetLog.Errorf("failed to read message from %s: %+v", conn.RemoteAddr(), err)
		return
	}

	msg, err := message.Decode(data)
	if err != nil {
		logger.CoreNetLog.Errorf("failed to parse message from %s: %+v", conn.RemoteAddr(), err)
		return
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		logger.CoreNetLog.Errorf("failed to split remote addr %s: %+v", conn.RemoteAddr(), err)
		return
	}
	peerAddr := net.JoinHostPort(host, strconv.FormatUint(uint64(msg.Port), 10))

	m.dispatch(peerAddr, msg.Payload)
}

func (m *Manager) dispatch(peerAddr string, payload message.Payload) {
	logger.CoreNetLog.Debugf("received message from %s: %+v", peerAddr, payload)

	switch payload.Kind {
	case message.KindAdd:
		added := m.addPeer(peerAddr)
		if added {
			m.broadcastCoreList()
		}
	case message.KindRemove:
		removed := m.removePeer(peerAddr)
		if removed {
			m.broadcastCoreList()
		}
	case message.KindCoreList:
		m.mu.Lock()
		for _, node := range payload.CoreList {
			m.cores.add(node)
		}
		m.mu.Unlock()
	case message.KindRequestCoreList:
		m.SendMsg(peerAddr, message.New(m.port(), message.NewCoreList(m.CoreNodes())))
	case message.KindPing:
		// presence only, no-op (spec.md §4.6)
	case message.KindAddAsEdge:
		m.mu.Lock()
		m.edges.add(peerAddr)
		m.mu.Unlock()
		m.SendMsg(peerAddr, message.New(m.port(), message.NewCoreList(m.CoreNodes())))
	case message.KindRemoveEdge:
		m.mu.Lock()
		m.edges.remove(peerAddr)
		m.mu.Unlock()
	case message.KindApplication:
		m.dispatchApplication(peerAddr, payload.Application)
	default:
		logger.CoreNetLog.Errorf("received message with unknown msg_type %q from %s", payload.Kind, peerAddr)
	}
}

func (m *Manager) dispatchApplication(peerAddr string, app message.ApplicationPayload) {
	nodes := m.CoreNodes()
	isCore := false
	for _, n := range nodes {
		if n == peerAddr {
			isCore = true
			break
		}
	}

	reply, destinations := m.handler.HandleApplicationPayload(app, peerAddr, nodes, isCore)
	if reply == nil {
		return
	}
	for _, dest := range destinations {
		m.SendMsg(dest, message.New(m.port(), message.NewApplication(*reply)))
	}
}

func (m *Manager) addPeer(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cores.add(addr)
}

func (m *Manager) removePeer(addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cores.remove(addr)
}

// SendMsg connects to addr, writes m, and closes the connection
// (spec.md §4.6 "Send"). Any I/O error causes local removal of addr
// from the core set, doubling as connection-error-driven membership
// maintenance. It returns whether the send succeeded.
func (m *Manager) SendMsg(addr string, msg message.Message) bool {
	logger.CoreNetLog.Debugf("sending message to %s: %+v", addr, msg)
	if err := doSendMsg(addr, msg); err != nil {
		logger.CoreNetLog.Errorf("failed to send message to %s: %+v", addr, err)
		m.removePeer(addr)
		return false
	}
	return true
}

func doSendMsg(addr string, msg message.Message) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := message.Encode(msg)
	if err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// Broadcast sends msg to every known core except self, sequentially --
// the ordering is deliberate so failures update the set before the
// next send (spec.md §4.6 "Broadcast").
func (m *Manager) Broadcast(msg message.Message) {
	for _, addr := range m.CoreNodes() {
		if addr == m.addr {
			continue
		}
		m.SendMsg(addr, msg)
	}
}

// BroadcastNewBlock satisfies pool.Broadcaster: it gossips a freshly
// mined block to all known cores (spec.md §4.5 step 5). Note that a
// gossip-received NewBlock is never re-broadcast by the application
// dispatcher (spec.md §4.7) -- only the mining node itself fans out.
func (m *Manager) BroadcastNewBlock(b block.Block) {
	m.Broadcast(message.New(m.port(), message.NewApplication(message.NewNewBlock(b))))
}

func (m *Manager) broadcastCoreList() {
	m.Broadcast(message.New(m.port(), message.NewCoreList(m.CoreNodes())))
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	logger.CoreNetLog.Debugf("check_peers_connection was called")

	nodes := m.CoreNodes()
	var failed []string
	for _, node := range nodes {
		if node == m.addr {
			continue
		}
		if !m.SendMsg(node, message.New(m.port(), message.NewPing())) {
			failed = append(failed, node)
		}
	}

	if len(failed) > 0 {
		m.broadcastCoreList()
	}
}

