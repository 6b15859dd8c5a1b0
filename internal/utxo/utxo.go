// Package utxo tracks an address's spendable outputs by replaying the
// transactions it is given (the chain's, in this repo), and builds new normal transactions by greedily
// consuming outputs until a requested value is covered. Grounded on
// original_source/src/blockchain/utxo.rs.
package utxo

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/address"
	"github.com/simbtc/simbtc/internal/tx"
)

// entry pairs a spendable output with the input needed to spend it.
type entry struct {
	input tx.TransactionInput
	value uint64
}

// Manager maintains the set of unspent outputs owned by a single
// address, refreshed on demand from an external list of transactions
// (the wallet passes every transaction of a core's full chain; mempool
// transactions are not included, spec.md §4.4).
type Manager struct {
	mu      sync.Mutex
	owner   address.Address
	unspent []entry
}

// NewManager creates an empty UTXO view for owner.
func NewManager(owner address.Address) *Manager {
	return &Manager{owner: owner}
}

// Refresh recomputes the unspent set for the manager's address from
// scratch, given every known transaction (spec.md §4.4): an output is
// unspent iff it pays owner and no known transaction's input consumes
// it.
func (m *Manager) Refresh(all []tx.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	spent := make(map[spendKey]bool)
	for _, t := range all {
		if t.Kind != tx.KindNormal {
			continue
		}
		for _, in := range t.Normal.Inputs {
			key, err := keyFor(in)
			if err != nil {
				return err
			}
			spent[key] = true
		}
	}

	var unspent []entry
	for _, t := range all {
		for index := uint32(0); ; index++ {
			out, err := t.Output(index)
			if err != nil {
				break
			}
			if out.Recipient != m.owner {
				continue
			}
			in := tx.NewTransactionInput(t, index)
			key, err := keyFor(in)
			if err != nil {
				return err
			}
			if spent[key] {
				continue
			}
			unspent = append(unspent, entry{input: in, value: out.Value})
		}
	}

	m.unspent = unspent
	return nil
}

// spendKey identifies a specific (parent transaction, output index)
// pair for membership-testing against the spent set.
type spendKey struct {
	kind tx.Kind
	hash string
}

func keyFor(in tx.TransactionInput) (spendKey, error) {
	data, err := canonicalBytes(in)
	if err != nil {
		return spendKey{}, err
	}
	return spendKey{kind: in.Transaction.Kind, hash: string(data) + "#" + strconv.FormatUint(uint64(in.Index), 10)}, nil
}

func canonicalBytes(in tx.TransactionInput) ([]byte, error) {
	switch in.Transaction.Kind {
	case tx.KindCoinbase:
		return []byte(in.Transaction.Coinbase.Recipient.String() + in.Transaction.Coinbase.Timestamp.String()), nil
	case tx.KindNormal:
		data, err := tx.CanonicalJSON(in.Transaction.Normal)
		if err != nil {
			return nil, err
		}
		return data, nil
	default:
		return nil, errors.Errorf("unknown transaction kind %q", in.Transaction.Kind)
	}
}

// Balance returns the sum of every unspent output owned by this
// manager's address (spec.md §4.4).
func (m *Manager) Balance() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, e := range m.unspent {
		total += e.value
	}
	return total
}

// ErrInsufficientFunds means the owned unspent outputs don't cover a
// requested transfer value (spec.md §7, InsufficientFunds).
var ErrInsufficientFunds = errors.New("insufficient unspent balance to cover transaction value plus fee")

// CreateTransactionFor greedily consumes unspent outputs (in the order
// Refresh last produced them) until their sum covers value+fee,
// pays recipient the requested value, and returns any remainder to the
// owner as a change output (spec.md §4.4). It immediately drops the
// consumed prefix from the manager's own unspent set and, if there is
// a change output, adds it back in -- mirroring utxo.rs's
// put_utxo/refresh_utxos pairing on the read side -- so Balance()
// reflects the spend right away and a second call before any Refresh
// cannot re-consume the same outputs (spec.md §4.4 step 4, §8 property
// 5 "UTXO monotonicity").
func (m *Manager) CreateTransactionFor(recipient address.Address, value, fee uint64) (tx.Normal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	need := value + fee
	var inputs []tx.TransactionInput
	var gathered uint64
	consumed := 0
	for _, e := range m.unspent {
		inputs = append(inputs, e.input)
		gathered += e.value
		consumed++
		if gathered >= need {
			break
		}
	}
	if gathered < need {
		return tx.Normal{}, ErrInsufficientFunds
	}

	outputs := []tx.TransactionOutput{{Recipient: recipient, Value: value}}
	change := gathered - need
	if change > 0 {
		outputs = append(outputs, tx.TransactionOutput{Recipient: m.owner, Value: change})
	}

	normal := tx.NewNormal(inputs, outputs, time.Now())

	remaining := make([]entry, len(m.unspent)-consumed)
	copy(remaining, m.unspent[consumed:])
	if change > 0 {
		changeInput := tx.NewTransactionInput(tx.FromNormal(normal), uint32(len(outputs)-1))
		remaining = append(remaining, entry{input: changeInput, value: change})
	}
	m.unspent = remaining

	return normal, nil
}
