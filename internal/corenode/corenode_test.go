package corenode

import (
	"testing"
	"time"

	"github.com/simbtc/simbtc/internal/address"
	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/chain"
	"github.com/simbtc/simbtc/internal/keys"
	"github.com/simbtc/simbtc/internal/message"
	"github.com/simbtc/simbtc/internal/pool"
	"github.com/simbtc/simbtc/internal/tx"
)

func newTestNode(t *testing.T) (*Node, *keys.Manager) {
	t.Helper()
	keyMgr, err := keys.NewManager()
	if err != nil {
		t.Fatalf("keys.NewManager: %v", err)
	}
	chainMgr := chain.NewManager(1, 10)
	poolMgr := pool.New()
	return NewNode("127.0.0.1:0", "", chainMgr, poolMgr, keyMgr, time.Second), keyMgr
}

// signedNewTransaction mines a block whose coinbase pays keyMgr value,
// appends it to n's chain, and returns a signed NewTransaction spending
// that coinbase. value must equal the chain's incentive, since the
// block carries no fees.
func signedNewTransaction(t *testing.T, n *Node, keyMgr *keys.Manager, recipient string, value uint64) message.ApplicationPayload {
	t.Helper()
	coinbase := tx.NewCoinbase(keyMgr.Address(), value, time.Now())
	prevHash, err := n.chainMgr.LastHash()
	if err != nil {
		t.Fatalf("LastHash: %v", err)
	}
	body := block.NewBlockWithoutProof(tx.NewTransactions(coinbase, nil), prevHash, time.Now())
	b, err := block.Mine(body, n.chainMgr.Difficulty())
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if appended, err := n.chainMgr.AppendIfTip(b); err != nil || !appended {
		t.Fatalf("AppendIfTip: appended=%v err=%v", appended, err)
	}

	parent := tx.FromCoinbase(coinbase)
	normal := tx.NewNormal(
		[]tx.TransactionInput{tx.NewTransactionInput(parent, 0)},
		[]tx.TransactionOutput{{Recipient: address.Address(recipient), Value: value}},
		time.Now(),
	)
	data, err := tx.CanonicalJSON(normal)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	sig, err := keyMgr.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return message.NewNewTransaction(normal, sig)
}

func TestHandleNewTransactionAcceptsValidSignedTransaction(t *testing.T) {
	n, keyMgr := newTestNode(t)
	app := signedNewTransaction(t, n, keyMgr, "bob", 10)

	reply, dests := n.HandleApplicationPayload(app, "127.0.0.1:19400", []string{"127.0.0.1:19400"}, true)

	if reply != nil || dests != nil {
		t.Errorf("core-to-core NewTransaction should not be re-gossiped: got reply=%v dests=%v", reply, dests)
	}
	if len(n.poolMgr.Transactions()) != 1 {
		t.Errorf("pool size after accepted transaction: got %d, want 1", len(n.poolMgr.Transactions()))
	}
}

func TestHandleNewTransactionFromEdgeIsRelayedToCores(t *testing.T) {
	n, keyMgr := newTestNode(t)
	app := signedNewTransaction(t, n, keyMgr, "bob", 10)
	cores := []string{"127.0.0.1:19401", "127.0.0.1:19402"}

	reply, dests := n.HandleApplicationPayload(app, "127.0.0.1:19403", cores, false)

	if reply == nil {
		t.Fatal("expected a relay reply for an edge-submitted transaction")
	}
	if len(dests) != 2 {
		t.Errorf("relay destinations: got %v, want the core set", dests)
	}
}

func TestHandleNewTransactionRejectsBadSignature(t *testing.T) {
	n, keyMgr := newTestNode(t)
	app := signedNewTransaction(t, n, keyMgr, "bob", 10)
	app.NewTransaction.Signature = "00"

	reply, dests := n.HandleApplicationPayload(app, "127.0.0.1:19404", nil, true)

	if reply != nil || dests != nil {
		t.Error("a tampered signature must never produce a reply or relay")
	}
	if len(n.poolMgr.Transactions()) != 0 {
		t.Error("a transaction with an invalid signature must not enter the pool")
	}
}

func TestHandleNewTransactionRejectsDoubleSpendAgainstPool(t *testing.T) {
	n, keyMgr := newTestNode(t)
	app := signedNewTransaction(t, n, keyMgr, "bob", 10)

	n.HandleApplicationPayload(app, "127.0.0.1:19405", nil, true)
	n.HandleApplicationPayload(app, "127.0.0.1:19405", nil, true)

	if len(n.poolMgr.Transactions()) != 1 {
		t.Errorf("pool size after resubmitting the same transaction: got %d, want 1 (deduped, not double-counted)", len(n.poolMgr.Transactions()))
	}
}

func TestHandleRequestFullChainRepliesWithChainToRequester(t *testing.T) {
	n, _ := newTestNode(t)

	reply, dests := n.HandleApplicationPayload(message.NewRequestFullChain(), "127.0.0.1:19406", nil, true)

	if reply == nil || reply.Kind != message.AppKindFullChain {
		t.Fatalf("expected a FullChain reply, got %+v", reply)
	}
	if len(dests) != 1 || dests[0] != "127.0.0.1:19406" {
		t.Errorf("FullChain reply destination: got %v, want only the requester", dests)
	}
}

func TestHandleNewBlockAppendsValidBlockAndDoesNotReGossip(t *testing.T) {
	n, keyMgr := newTestNode(t)
	coinbase := tx.NewCoinbase(keyMgr.Address(), n.chainMgr.Incentive(), time.Now())
	body := block.NewBlockWithoutProof(tx.NewTransactions(coinbase, nil), block.GenesisHash(), time.Now())
	b, err := block.Mine(body, n.chainMgr.Difficulty())
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}

	reply, dests := n.HandleApplicationPayload(message.NewNewBlock(b), "127.0.0.1:19407", nil, false)

	if reply != nil || dests != nil {
		t.Errorf("a valid block must not produce a reply: got reply=%v dests=%v", reply, dests)
	}
	if n.chainMgr.Len() != 1 {
		t.Errorf("chain length after valid NewBlock: got %d, want 1", n.chainMgr.Len())
	}
}

func TestHandleNewBlockRequestsFullChainOnInvalidBlock(t *testing.T) {
	n, keyMgr := newTestNode(t)
	coinbase := tx.NewCoinbase(keyMgr.Address(), n.chainMgr.Incentive(), time.Now())
	body := block.NewBlockWithoutProof(tx.NewTransactions(coinbase, nil), "not-the-real-genesis-hash", time.Now())
	b, err := block.Mine(body, n.chainMgr.Difficulty())
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}

	reply, dests := n.HandleApplicationPayload(message.NewNewBlock(b), "127.0.0.1:19408", nil, false)

	if reply == nil || reply.Kind != message.AppKindRequestFullChain {
		t.Fatalf("expected a RequestFullChain reply for a bad-prev-hash block, got %+v", reply)
	}
	if len(dests) != 1 || dests[0] != "127.0.0.1:19408" {
		t.Errorf("RequestFullChain destination: got %v, want only the sender", dests)
	}
	if n.chainMgr.Len() != 0 {
		t.Error("an invalid block must not be appended")
	}
}

func TestHandleFullChainFromNonCoreIsRejected(t *testing.T) {
	n, _ := newTestNode(t)

	reply, dests := n.HandleApplicationPayload(message.NewFullChain(nil), "127.0.0.1:19409", nil, false)

	if reply != nil || dests != nil {
		t.Error("FullChain from a non-core peer must be ignored")
	}
}

func TestHandleFullChainAdoptsLongerValidChain(t *testing.T) {
	n, keyMgr := newTestNode(t)
	coinbase := tx.NewCoinbase(keyMgr.Address(), n.chainMgr.Incentive(), time.Now())
	body := block.NewBlockWithoutProof(tx.NewTransactions(coinbase, nil), block.GenesisHash(), time.Now())
	b, err := block.Mine(body, n.chainMgr.Difficulty())
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}

	reply, dests := n.HandleApplicationPayload(message.NewFullChain([]block.Block{b}), "127.0.0.1:19410", []string{"127.0.0.1:19410"}, true)

	if reply != nil || dests != nil {
		t.Error("adopting a chain never produces a reply")
	}
	if n.chainMgr.Len() != 1 {
		t.Errorf("chain length after adopting a longer valid chain: got %d, want 1", n.chainMgr.Len())
	}
}

func TestStateTransitionsThroughLifecycle(t *testing.T) {
	n, _ := newTestNode(t)
	if n.State() != StateInit {
		t.Fatalf("initial state: got %v, want Init", n.State())
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n.State() != StateStandby {
		t.Errorf("state after Start with no listener conflict: got %v, want Standby", n.State())
	}

	n.JoinNetwork()
	if n.State() != StateStandby {
		t.Errorf("state after JoinNetwork with no configured seed (genesis node): got %v, want Standby unchanged", n.State())
	}

	n.Shutdown()
	if n.State() != StateShuttingDown {
		t.Errorf("state after Shutdown: got %v, want ShuttingDown", n.State())
	}
}

func TestJoinNetworkWithSeedTransitionsToConnected(t *testing.T) {
	keyMgr, err := keys.NewManager()
	if err != nil {
		t.Fatalf("keys.NewManager: %v", err)
	}
	n := NewNode("127.0.0.1:0", "127.0.0.1:19499", chain.NewManager(1, 10), pool.New(), keyMgr, time.Second)

	n.JoinNetwork()

	if n.State() != StateConnectedToNetwork {
		t.Errorf("state after JoinNetwork with a configured seed: got %v, want ConnectedToNetwork", n.State())
	}
}
