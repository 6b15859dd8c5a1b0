// Package chain implements the append-only chain engine: self
// validation, the longest-valid-chain fork resolution rule, and
// transaction linkage checks used both for gossip-received normals and
// for candidate chains offered by peers. Grounded on
// original_source/src/blockchain/manager.rs; all operations run under
// a single mutex (spec.md §4.3, §5 lock-ordering chain → pool →
// conn-mgr).
package chain

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/tx"
)

// Manager owns the canonical chain for this node.
type Manager struct {
	mu         sync.Mutex
	chain      []block.Block
	difficulty int
	incentive  uint64
}

// NewManager creates an empty chain at the given difficulty, paying
// coinbaseIncentive (spec.md §4.5 COINBASE_INCENTIVE) to every valid
// block's miner on top of the block's total fees.
func NewManager(difficulty int, coinbaseIncentive uint64) *Manager {
	return &Manager{difficulty: difficulty, incentive: coinbaseIncentive}
}

// Difficulty returns the chain's fixed PoW difficulty (spec.md
// Non-goals: no retargeting).
func (m *Manager) Difficulty() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.difficulty
}

// Incentive returns the per-block coinbase incentive.
func (m *Manager) Incentive() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incentive
}

// LastHash returns the hash of the tip block, or the genesis sentinel
// if the chain is empty (spec.md §4.3).
func (m *Manager) LastHash() (block.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHashLocked()
}

func (m *Manager) lastHashLocked() (block.Hash, error) {
	if len(m.chain) == 0 {
		return block.GenesisHash(), nil
	}
	return m.chain[len(m.chain)-1].Hash()
}

// Chain returns a snapshot copy of the chain.
func (m *Manager) Chain() []block.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]block.Block, len(m.chain))
	copy(out, m.chain)
	return out
}

// Len returns the number of blocks in the chain.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chain)
}

// Append unconditionally pushes b onto the chain. Callers must have
// already validated b with IsValidBlock (spec.md §4.3).
func (m *Manager) Append(b block.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = append(m.chain, b)
}

// AllTransactions returns every transaction recorded in the chain, in
// block order, coinbase-then-normals within each block.
func (m *Manager) AllTransactions() []tx.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allTransactionsLocked()
}

func (m *Manager) allTransactionsLocked() []tx.Transaction {
	var all []tx.Transaction
	for _, b := range m.chain {
		all = append(all, b.Transaction.All()...)
	}
	return all
}

// AllNormalTransactions returns every normal transaction recorded in
// the chain, in block order.
func (m *Manager) AllNormalTransactions() []tx.Normal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []tx.Normal
	for _, b := range m.chain {
		all = append(all, b.Transaction.Normals...)
	}
	return all
}

// IsValidBlock verifies b.prev_block_hash == LastHash(), hash(b) meets
// the chain's difficulty, and I3 (coinbase.value equals the block's
// total normal-transaction fees plus the incentive). Spec.md §4.3.
func (m *Manager) IsValidBlock(b block.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isValidBlockLocked(b)
}

func (m *Manager) isValidBlockLocked(b block.Block) error {
	lastHash, err := m.lastHashLocked()
	if err != nil {
		return err
	}
	if b.PrevBlockHash != lastHash {
		return errors.Wrapf(ErrBadPrevHash, "block prev_block_hash %s, chain tip %s", b.PrevBlockHash, lastHash)
	}

	ok, err := b.IsValid(m.difficulty)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrBadDifficulty, "difficulty %d", m.difficulty)
	}

	var totalFee uint64
	for _, normal := range b.Transaction.Normals {
		fee, err := normal.Fee()
		if err != nil {
			return errors.Wrap(err, "invalid normal transaction in block")
		}
		totalFee += fee
	}
	if b.Transaction.Coinbase.Value != totalFee+m.incentive {
		return errors.Wrapf(ErrBadCoinbaseValue, "coinbase value %d, expected fees(%d)+incentive(%d)=%d",
			b.Transaction.Coinbase.Value, totalFee, m.incentive, totalFee+m.incentive)
	}

	return nil
}

// AppendIfTip re-checks b.prev_block_hash against the current tip and,
// if it still matches, validates and appends b in a single critical
// section. It reports whether b was appended; false means a peer block
// landed mid-mine and b is stale (spec.md §4.5 step 4 — the recheck
// and append must happen atomically under one lock, not as two
// separate LastHash/Append calls the production loop could race on).
func (m *Manager) AppendIfTip(b block.Block) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lastHash, err := m.lastHashLocked()
	if err != nil {
		return false, err
	}
	if b.PrevBlockHash != lastHash {
		return false, nil
	}
	if err := m.isValidBlockLocked(b); err != nil {
		return false, err
	}
	m.chain = append(m.chain, b)
	return true, nil
}

// IsValidTransaction checks a gossip-received normal transaction
// against the chain: every input's parent transaction must appear
// structurally earlier in the chain (ErrUnknownInput), and no input
// may already have been spent by an earlier transaction in the chain
// (ErrDoubleSpend). Spec.md §4.3, §4.7.
func (m *Manager) IsValidTransaction(candidate tx.Normal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chainTxs := m.allTransactionsLocked()

	for _, in := range candidate.Inputs {
		found := false
		for _, t := range chainTxs {
			if t.Equal(in.Transaction) {
				found = true
				break
			}
		}
		if !found {
			return errors.Wrap(ErrUnknownInput, "input parent transaction not found in chain")
		}
	}

	for _, in := range candidate.Inputs {
		for _, existing := range m.chainNormalsLocked() {
			for _, existingIn := range existing.Inputs {
				if existingIn.Equal(in) {
					return errors.Wrap(ErrDoubleSpend, "input already consumed by a transaction in the chain")
				}
			}
		}
	}

	return nil
}

func (m *Manager) chainNormalsLocked() []tx.Normal {
	var all []tx.Normal
	for _, b := range m.chain {
		all = append(all, b.Transaction.Normals...)
	}
	return all
}

// RemoveUselessTransactions drops every pool transaction that is
// structurally present in the chain (spec.md §4.3). It is the chain's
// view of which pool entries a just-appended block already settled;
// the actual removal happens against the caller-supplied pool so that
// chain never needs to import the pool package (lock order chain →
// pool, spec.md §5).
func (m *Manager) RemoveUselessTransactions(removeIfPresent func(tx.Normal) bool) {
	for _, normal := range m.AllNormalTransactions() {
		removeIfPresent(normal)
	}
}

// isLinkedFromGenesis verifies I1 (prev-hash linkage from genesis) and
// — per SPEC_FULL.md's resolution of the §9 open issue — I2 (PoW
// difficulty) for every block of candidate.
func isLinkedFromGenesis(candidate []block.Block, difficulty int) (bool, error) {
	prevHash := block.GenesisHash()
	for _, b := range candidate {
		if b.PrevBlockHash != prevHash {
			return false, nil
		}
		ok, err := b.IsValid(difficulty)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		hash, err := b.Hash()
		if err != nil {
			return false, err
		}
		prevHash = hash
	}
	return true, nil
}

// ResolveConflicts compares a peer's full chain against the local
// chain and, if it is both longer and validly linked (I1, and — per
// SPEC_FULL.md — I2), adopts it as the new local chain. It returns the
// normal transactions that were in the discarded local blocks but are
// absent from the new chain, for re-submission to the mempool (spec.md
// §4.3).
//
// This does not itself re-verify I3/I4 of the candidate chain — the
// didactic design accepts any I1/I2-valid, longer chain as
// authoritative (spec.md §4.3, §9).
func (m *Manager) ResolveConflicts(other []block.Block) ([]tx.Normal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(other) <= len(m.chain) {
		logger.ChainLog.Warnf("received full chain (%d blocks) is shorter than mine (%d), ignore it", len(other), len(m.chain))
		return nil, nil
	}

	linked, err := isLinkedFromGenesis(other, m.difficulty)
	if err != nil {
		return nil, err
	}
	if !linked {
		logger.ChainLog.Warnf("received full chain (%d blocks) is invalid, ignore it", len(other))
		return nil, nil
	}

	otherHashes := make(map[block.Hash]bool, len(other))
	for _, b := range other {
		h, err := b.Hash()
		if err != nil {
			return nil, err
		}
		otherHashes[h] = true
	}

	var orphanNormals []tx.Normal
	for _, local := range m.chain {
		h, err := local.Hash()
		if err != nil {
			return nil, err
		}
		if !otherHashes[h] {
			orphanNormals = append(orphanNormals, local.Transaction.Normals...)
		}
	}

	oldLen := len(m.chain)
	m.chain = make([]block.Block, len(other))
	copy(m.chain, other)

	newNormals := m.chainNormalsLocked()

	var result []tx.Normal
	for _, orphan := range orphanNormals {
		inNewChain := false
		for _, n := range newNormals {
			if n.Equal(orphan) {
				inNewChain = true
				break
			}
		}
		if !inNewChain {
			result = append(result, orphan)
		}
	}

	logger.ChainLog.Infof("resolved conflict: adopted peer chain of %d blocks (was %d), %d orphan transactions",
		len(other), oldLen, len(result))

	return result, nil
}
