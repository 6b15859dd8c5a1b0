// Package pool implements the mempool (deduplicated set of pending
// normal transactions) and the periodic block-production loop.
// Grounded on original_source/src/blockchain/transaction_pool.rs, with
// the off-goroutine mining + panic-guarded background task pattern
// adapted from daglabs-btcd's mining package and internal/panics.
package pool

import (
	"sync"
	"time"

	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/chain"
	"github.com/simbtc/simbtc/internal/keys"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/tx"
)

// CoinbaseIncentive is the fixed per-block miner reward paid on top of
// the block's total transaction fees (spec.md §4.5). The reference
// implementation hard-codes this to 10; SPEC_FULL.md promotes it to a
// node-level configuration constant instead, so it is no longer a
// package-level const here -- see chain.Manager.Incentive.

// Stats tracks the block-production loop's outcomes for observability
// (SPEC_FULL.md §6 supplemented feature: the reference implementation
// only logs these events; nothing aggregates them).
type Stats struct {
	BlocksMined          uint64
	StaleBlocksDiscarded uint64
}

// Pool is the mempool of pending, not-yet-chained normal transactions.
type Pool struct {
	mu           sync.Mutex
	transactions []tx.Normal
	stats        Stats
}

// New creates an empty mempool.
func New() *Pool {
	return &Pool{}
}

// Add appends transaction to the pool unless an equal transaction is
// already present (spec.md §4.5 dedup-by-equality).
func (p *Pool) Add(transaction tx.Normal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasLocked(transaction) {
		return
	}
	p.transactions = append(p.transactions, transaction)
}

func (p *Pool) hasLocked(transaction tx.Normal) bool {
	for _, t := range p.transactions {
		if t.Equal(transaction) {
			return true
		}
	}
	return false
}

// HasInput reports whether any pooled transaction already spends the
// given input (spec.md §4.7 "reject if any input already in pool").
func (p *Pool) HasInput(input tx.TransactionInput) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transactions {
		for _, in := range t.Inputs {
			if in.Equal(input) {
				return true
			}
		}
	}
	return false
}

// Transactions returns a snapshot copy of the pending transactions.
func (p *Pool) Transactions() []tx.Normal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tx.Normal, len(p.transactions))
	copy(out, p.transactions)
	return out
}

// TotalFee sums the fee of every pending transaction (spec.md §4.5).
func (p *Pool) TotalFee() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total uint64
	for _, t := range p.transactions {
		fee, err := t.Fee()
		if err != nil {
			return 0, err
		}
		total += fee
	}
	return total, nil
}

// dropFirst removes the first n pool entries. This is not Clear:
// entries submitted while a block was being mined must survive (spec.md
// §4.5 step 4).
func (p *Pool) dropFirst(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.transactions) {
		n = len(p.transactions)
	}
	p.transactions = p.transactions[n:]
}

// RemoveIfPresent removes transaction from the pool if present and
// reports whether it was removed. Passed to chain.Manager's
// RemoveUselessTransactions so that chain never imports pool (spec.md
// §5 lock order chain → pool).
func (p *Pool) RemoveIfPresent(transaction tx.Normal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.transactions {
		if t.Equal(transaction) {
			p.transactions = append(p.transactions[:i], p.transactions[i+1:]...)
			return true
		}
	}
	return false
}

// Stats returns a copy of the production-loop counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Broadcaster is the subset of the core connection manager the
// production loop needs: fan out a NewBlock application payload to
// every known core (spec.md §4.5 step 5). Implemented by
// internal/corenet.Manager; declared here so that pool does not import
// corenet (internal/corenode wires the two together).
type Broadcaster interface {
	BroadcastNewBlock(b block.Block)
}

// RunProductionLoop runs generate-mine-append-broadcast forever at
// interval, until stop is closed. It must be launched via
// internal/panics.GoroutineWrapperFunc so a mining panic doesn't take
// the process down silently (spec.md §4.5, §5).
func (p *Pool) RunProductionLoop(chainMgr *chain.Manager, keyMgr *keys.Manager, broadcaster Broadcaster, interval time.Duration, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		p.produceOnce(chainMgr, keyMgr, broadcaster)

		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}

func (p *Pool) produceOnce(chainMgr *chain.Manager, keyMgr *keys.Manager, broadcaster Broadcaster) {
	logger.PoolLog.Debugf("generate_block_periodically was called")

	pending := p.Transactions()
	numPending := len(pending)

	totalFee, err := p.TotalFee()
	if err != nil {
		logger.PoolLog.Errorf("failed to sum pool fees: %+v", err)
		return
	}

	difficulty := chainMgr.Difficulty()
	incentive := chainMgr.Incentive()
	addr := keyMgr.Address()

	prevHash, err := chainMgr.LastHash()
	if err != nil {
		logger.PoolLog.Errorf("failed to read chain tip: %+v", err)
		return
	}

	coinbase := tx.NewCoinbase(addr, incentive+totalFee, time.Now())
	body := block.NewBlockWithoutProof(tx.NewTransactions(coinbase, pending), prevHash, time.Now())

	mined, err := block.Mine(body, difficulty)
	if err != nil {
		logger.PoolLog.Errorf("failed to mine block: %+v", err)
		return
	}

	// Re-check prev_block_hash and append atomically: a peer block may
	// have landed mid-mine, and the check-then-append must not race
	// against a concurrent Append (spec.md §4.5 step 4).
	appended, err := chainMgr.AppendIfTip(mined)
	if err != nil {
		logger.PoolLog.Errorf("mined an invalid block: %+v", err)
		return
	}
	if !appended {
		logger.PoolLog.Infof("generated block, but it was old. Ignore it.")
		p.mu.Lock()
		p.stats.StaleBlocksDiscarded++
		stats := p.stats
		p.mu.Unlock()
		logger.PoolLog.Infof("block production stats: mined=%d stale=%d", stats.BlocksMined, stats.StaleBlocksDiscarded)
		return
	}
	p.dropFirst(numPending)

	p.mu.Lock()
	p.stats.BlocksMined++
	stats := p.stats
	p.mu.Unlock()
	logger.PoolLog.Infof("block production stats: mined=%d stale=%d", stats.BlocksMined, stats.StaleBlocksDiscarded)

	logger.PoolLog.Debugf("generated block: %+v", mined)

	broadcaster.BroadcastNewBlock(mined)
}
