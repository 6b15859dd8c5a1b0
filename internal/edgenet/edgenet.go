// Package edgenet implements the edge (wallet/client) node's
// connection manager: it tracks exactly one current core with
// failover to a backup set gossiped via CoreList, and forwards
// FullChain replies to an injected handler for UTXO refresh. Grounded
// on original_source/src/connection_manager_edge.rs.
package edgenet

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

const defaultSweepInterval = 30 * time.Second

// FullChainHandler receives a core's FullChain reply so the edge can
// refresh its UTXO view (spec.md §4.7 "Edges receive only FullChain").
type FullChainHandler interface {
	HandleFullChain(chain []block.Block)
}

type addrSet map[string]struct{}

func (s addrSet) add(addr string) bool {
	if _, ok := s[addr]; ok {
		return false
	}
	s[addr] = struct{}{}
	return true
}

func (s addrSet) remove(addr string) {
	delete(s, addr)
}

func (s addrSet) any() (string, bool) {
	for addr := range s {
		return addr, true
	}
	return "", false
}

// Manager is the edge node's connection manager.
type Manager struct {
	mu          sync.Mutex
	myAddr      string
	currentCore string
	cores       addrSet
	handler     FullChainHandler

	sweepInterval time.Duration
	listener      net.Listener
	spawn         func(func())
	stop          chan struct{}
}

// NewManager creates an edge connection manager tracking coreAddr as
// its current core.
func NewManager(myAddr, coreAddr string, handler FullChainHandler) *Manager {
	cores := make(addrSet)
	cores.add(coreAddr)
	return &Manager{
		myAddr:        myAddr,
		currentCore:   coreAddr,
		cores:         cores,
		handler:       handler,
		sweepInterval: defaultSweepInterval,
		spawn:         panics.GoroutineWrapperFunc(logger.EdgeNetLog),
		stop:          make(chan struct{}),
	}
}

// SetHandler installs the FullChainHandler, e.g. once the wallet
// server has been built from this same Manager (construction of the
// two is mutually dependent: the wallet needs the manager to send
// transactions, the manager needs the wallet to deliver FullChain
// replies).
func (m *Manager) SetHandler(handler FullChainHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// SetSweepInterval overrides the default 30s liveness-sweep period.
func (m *Manager) SetSweepInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepInterval = d
}

// CurrentCore returns the edge's current core address.
func (m *Manager) CurrentCore() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentCore
}

// Listen binds the manager's listener (to receive CoreList and
// FullChain pushes) and starts the accept loop and sweeper.
func (m *Manager) Listen() error {
	listener, err := net.Listen("tcp", m.myAddr)
	if err != nil {
		return err
	}
	m.listener = listener

	m.spawn(m.acceptLoop)
	m.spawn(m.sweepLoop)
	return nil
}

// Join sends AddAsEdge to the current core (spec.md §4.8).
func (m *Manager) Join() {
	m.connectToCore()
}

func (m *Manager) connectToCore() {
	core := m.CurrentCore()
	logger.EdgeNetLog.Infof("Connecting to Core node: %s", core)
	m.SendMsg(core, message.New(m.port(), message.NewAddAsEdge()))
}

// Shutdown sends RemoveEdge to the current core and stops the sweeper
// and listener.
func (m *Manager) Shutdown() {
	m.SendMsg(m.CurrentCore(), message.New(m.port(), message.NewRemoveEdge()))
	close(m.stop)
	if m.listener != nil {
		m.listener.Close()
	}
}

// RequestFullChain asks the current core to send its chain (spec.md
// §4.7, driven by the wallet's update-balance operation).
func (m *Manager) RequestFullChain() {
	m.SendMsg(m.CurrentCore(), message.New(m.port(), message.NewApplication(message.NewRequestFullChain())))
}

// SendNewTransaction forwards a signed transaction to the current core
// (spec.md §6 "the wallet ... translate into NewTransaction ... wire
// messages via the edge manager").
func (m *Manager) SendNewTransaction(app message.ApplicationPayload) bool {
	return m.SendMsg(m.CurrentCore(), message.New(m.port(), message.NewApplication(app)))
}

func (m *Manager) port() uint16 {
	_, portStr, err := net.SplitHostPort(m.myAddr)
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
				logger.EdgeNetLog.Errorf("accept failed: %+v", err)
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
		logger.EdgeNetLog.Errorf("failed to read message from %s: %+v", conn.RemoteAddr(), err)
		return
	}

	msg, err := message.Decode(data)
	if err != nil {
		logger.EdgeNetLog.Errorf("failed to parse message from %s: %+v", conn.RemoteAddr(), err)
		return
	}

	switch msg.Payload.Kind {
	case message.KindCoreList:
		m.mu.Lock()
		for _, node := range msg.Payload.CoreList {
			m.cores.add(node)
		}
		m.mu.Unlock()
	case message.KindApplication:
		if msg.Payload.Application.Kind == message.AppKindFullChain {
			m.handler.HandleFullChain(msg.Payload.Application.FullChain.Chain)
		} else {
			logger.EdgeNetLog.Warnf("unexpected application payload from %s. Ignore it: %+v", conn.RemoteAddr(), msg.Payload.Application)
		}
	default:
		logger.EdgeNetLog.Warnf("unexpected message from %s. Ignore it: %+v", conn.RemoteAddr(), msg.Payload)
	}
}

// SendMsg connects to addr, writes msg, and closes the connection. Any
// I/O error causes local removal of addr from the backup core set.
func (m *Manager) SendMsg(addr string, msg message.Message) bool {
	logger.EdgeNetLog.Debugf("Send message to %s: %+v", addr, msg)
	if err := doSendMsg(addr, msg); err != nil {
		logger.EdgeNetLog.Errorf("Error occurred in send_msg: %+v", err)
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

// removePeer drops addr from the backup set; if it was the current
// core, a replacement is picked from whatever remains (spec.md §4.8).
func (m *Manager) removePeer(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cores.remove(addr)
	if m.currentCore != addr {
		return
	}
	replacement, ok := m.cores.any()
	if !ok {
		logger.EdgeNetLog.Errorf("no known core nodes left to fail over to after losing %s", addr)
		return
	}
	logger.EdgeNetLog.Debugf("Replace current_core_node(%s) with %s", addr, replacement)
	m.currentCore = replacement
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

// sweepOnce pings the current core; on failure it fails over to any
// remaining backup, or -- per SPEC_FULL.md's resolution of the
// reference implementation's unwrap()-on-empty-set bug (spec.md §9) --
// logs at Error level and skips this tick if no backup remains, rather
// than panicking.
func (m *Manager) sweepOnce() {
	logger.EdgeNetLog.Debugf("check_peer_connection was called")

	core := m.CurrentCore()
	if m.SendMsg(core, message.New(m.port(), message.NewPing())) {
		return
	}

	logger.EdgeNetLog.Infof("Couldn't connect to the current core node: %s", core)
	m.removePeer(core)

	newCore := m.CurrentCore()
	if newCore == core {
		// removePeer couldn't find a replacement; already logged.
		return
	}
	m.connectToCore()
}
