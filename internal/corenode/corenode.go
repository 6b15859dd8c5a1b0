// Package corenode wires the chain engine, mempool, key manager, and
// core connection manager together into a running core node, and
// implements the application-payload dispatch table (spec.md §4.7).
// Grounded on original_source/src/server/server_core.rs, including its
// ServerCoreState lifecycle enum (SPEC_FULL.md §6 supplemented
// feature: the reference implementation tracks node lifecycle state
// explicitly, which spec.md's distillation otherwise leaves implicit).
package corenode

import (
	"time"

	"github.com/simbtc/simbtc/internal/chain"
	"github.com/simbtc/simbtc/internal/corenet"
	"github.com/simbtc/simbtc/internal/keys"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/message"
	"github.com/simbtc/simbtc/internal/panics"
	"github.com/simbtc/simbtc/internal/pool"
	"github.com/simbtc/simbtc/internal/tx"
)

// State is the core node's lifecycle state.
type State int

// Lifecycle states (spec.md §9 supplemented from
// original_source/src/server/server_core.rs ServerCoreState).
const (
	StateInit State = iota
	StateStandby
	StateConnectedToNetwork
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateStandby:
		return "Standby"
	case StateConnectedToNetwork:
		return "ConnectedToNetwork"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Node is a running core node: the chain engine, mempool, and
// connection manager wired together, plus the lifecycle state and
// seed-node bookkeeping server_core.rs's ServerCore owns.
type Node struct {
	state         State
	seedAddr      string
	chainMgr      *chain.Manager
	poolMgr       *pool.Pool
	keyMgr        *keys.Manager
	conn          *corenet.Manager
	blockInterval time.Duration
	stop          chan struct{}
}

// NewNode builds a core node listening on myAddr. seedAddr is the
// known core to join on startup, or "" to run as the genesis node.
func NewNode(myAddr, seedAddr string, chainMgr *chain.Manager, poolMgr *pool.Pool, keyMgr *keys.Manager, blockInterval time.Duration) *Node {
	n := &Node{
		state:         StateInit,
		seedAddr:      seedAddr,
		chainMgr:      chainMgr,
		poolMgr:       poolMgr,
		keyMgr:        keyMgr,
		blockInterval: blockInterval,
		stop:          make(chan struct{}),
	}
	n.conn = corenet.NewManager(myAddr, n)
	return n
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	return n.state
}

// ConnectionManager exposes the underlying core connection manager,
// e.g. for the wallet or tests to introspect the membership set.
func (n *Node) ConnectionManager() *corenet.Manager {
	return n.conn
}

// Start binds the listener, begins the liveness sweeper, and launches
// the block-production loop (spec.md §5 tasks 1,3,4).
func (n *Node) Start() error {
	n.state = StateStandby
	if err := n.conn.Listen(); err != nil {
		return err
	}

	spawn := panics.GoroutineWrapperFunc(logger.PoolLog)
	spawn(func() { n.poolMgr.RunProductionLoop(n.chainMgr, n.keyMgr, n.conn, n.blockInterval, n.stop) })
	return nil
}

// JoinNetwork sends Add to the seed node, or logs that this node is
// the genesis core if no seed was configured.
func (n *Node) JoinNetwork() {
	if n.seedAddr == "" {
		logger.MainLog.Infof("This server is running as Genesis Core Node...")
		return
	}
	n.state = StateConnectedToNetwork
	n.conn.Join(n.seedAddr)
}

// Shutdown sends Remove to the seed node (if any) and stops the
// background tasks (spec.md §4.6 "Join"/shutdown).
func (n *Node) Shutdown() {
	n.state = StateShuttingDown
	logger.MainLog.Infof("Shutdown ServerCore ...")
	close(n.stop)
	n.conn.Shutdown(n.seedAddr)
}

// HandleApplicationPayload implements corenet.ApplicationHandler,
// dispatching per spec.md §4.7's table.
func (n *Node) HandleApplicationPayload(payload message.ApplicationPayload, peerAddr string, coreNodes []string, isCore bool) (*message.ApplicationPayload, []string) {
	logger.CoreNetLog.Debugf("handle_application_payload: %+v", payload)

	switch payload.Kind {
	case message.AppKindNewTransaction:
		return n.handleNewTransaction(payload, peerAddr, coreNodes, isCore)
	case message.AppKindNewBlock:
		return n.handleNewBlock(payload, peerAddr)
	case message.AppKindRequestFullChain:
		return n.handleRequestFullChain(peerAddr)
	case message.AppKindFullChain:
		return n.handleFullChain(payload, isCore)
	default:
		logger.CoreNetLog.Errorf("application payload has unknown msg_type %q", payload.Kind)
		return nil, nil
	}
}

func (n *Node) handleNewTransaction(payload message.ApplicationPayload, peerAddr string, coreNodes []string, isCore bool) (*message.ApplicationPayload, []string) {
	transaction := payload.NewTransaction.Transaction
	signature := payload.NewTransaction.Signature

	recipient, err := transaction.Inputs[0].Recipient()
	if err != nil {
		logger.CoreNetLog.Errorf("rejecting transaction with unresolvable input: %+v", err)
		return nil, nil
	}

	data, err := tx.CanonicalJSON(transaction)
	if err != nil {
		logger.CoreNetLog.Errorf("failed to canonicalize transaction for verification: %+v", err)
		return nil, nil
	}
	if err := keys.Verify(recipient, data, signature); err != nil {
		logger.CoreNetLog.Errorf("rejecting transaction with invalid signature: %+v", err)
		return nil, nil
	}

	if err := n.chainMgr.IsValidTransaction(transaction); err != nil {
		logger.CoreNetLog.Errorf("rejecting invalid transaction: %+v", err)
		return nil, nil
	}

	for _, in := range transaction.Inputs {
		if n.poolMgr.HasInput(in) {
			logger.CoreNetLog.Errorf("rejecting transaction: input already pending in pool")
			return nil, nil
		}
	}

	n.poolMgr.Add(transaction)

	if !isCore {
		reply := message.NewNewTransaction(transaction, signature)
		return &reply, coreNodes
	}
	return nil, nil
}

func (n *Node) handleNewBlock(payload message.ApplicationPayload, peerAddr string) (*message.ApplicationPayload, []string) {
	b := payload.NewBlock.Block

	if err := n.chainMgr.IsValidBlock(b); err != nil {
		logger.CoreNetLog.Errorf("Invalid block: %+v", err)
		reply := message.NewRequestFullChain()
		return &reply, []string{peerAddr}
	}

	n.chainMgr.Append(b)
	n.chainMgr.RemoveUselessTransactions(n.poolMgr.RemoveIfPresent)

	return nil, nil
}

func (n *Node) handleRequestFullChain(peerAddr string) (*message.ApplicationPayload, []string) {
	logger.CoreNetLog.Debugf("Send our latest blockchain for reply to %s", peerAddr)
	reply := message.NewFullChain(n.chainMgr.Chain())
	return &reply, []string{peerAddr}
}

func (n *Node) handleFullChain(payload message.ApplicationPayload, isCore bool) (*message.ApplicationPayload, []string) {
	if !isCore {
		logger.CoreNetLog.Errorf("Blockchain received from unknown")
		return nil, nil
	}

	orphans, err := n.chainMgr.ResolveConflicts(payload.FullChain.Chain)
	if err != nil {
		logger.CoreNetLog.Errorf("failed to resolve conflicting chain: %+v", err)
		return nil, nil
	}
	for _, orphan := range orphans {
		n.poolMgr.Add(orphan)
	}
	return nil, nil
}
