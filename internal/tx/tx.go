// Package tx implements the signed transaction model: coinbase vs.
// normal transactions, input/output linkage by embedded parent
// transaction and output index, and the canonical JSON serialization
// signatures are computed over. Grounded on
// original_source/src/blockchain/transaction.rs, redesigned per
// SPEC_FULL.md/spec.md §3-4.1 (block-body transactions are carried as
// an explicit {coinbase, transactions} pair rather than a flat tagged
// array).
package tx

import (
	"time"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/address"
)

// Kind discriminates the Transaction tagged union.
type Kind string

// Tagged-union discriminator values (spec.md §4.1).
const (
	KindCoinbase Kind = "0"
	KindNormal   Kind = "1"
)

// TransactionOutput is a single value transfer destination.
type TransactionOutput struct {
	Recipient address.Address `json:"recipient"`
	Value     uint64          `json:"value"`
}

// Equal reports structural equality.
func (o TransactionOutput) Equal(other TransactionOutput) bool {
	return o.Recipient == other.Recipient && o.Value == other.Value
}

// Coinbase is the first, input-less transaction of a block. It has
// exactly one logical output (index 0, amount Value).
type Coinbase struct {
	Recipient address.Address `json:"recipient"`
	Value     uint64          `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewCoinbase builds a Coinbase transaction, normalizing its timestamp
// to UTC as spec.md §4.1 requires.
func NewCoinbase(recipient address.Address, value uint64, timestamp time.Time) Coinbase {
	return Coinbase{Recipient: recipient, Value: value, Timestamp: timestamp.UTC()}
}

// Equal reports structural equality, including the timestamp: two
// coinbase transactions with identical recipient/value but different
// timestamps are distinct (spec.md §3).
func (c Coinbase) Equal(other Coinbase) bool {
	return c.Recipient == other.Recipient && c.Value == other.Value && c.Timestamp.Equal(other.Timestamp)
}

// Output returns the coinbase's single logical output. index must be 0.
func (c Coinbase) Output(index uint32) (TransactionOutput, error) {
	if index != 0 {
		return TransactionOutput{}, errors.Errorf("coinbase transaction has no output at index %d", index)
	}
	return TransactionOutput{Recipient: c.Recipient, Value: c.Value}, nil
}

// Normal is a value-transfer transaction consuming prior UTXOs and
// producing new outputs. Inputs and outputs must both be non-empty.
type Normal struct {
	Inputs    []TransactionInput  `json:"inputs"`
	Outputs   []TransactionOutput `json:"outputs"`
	Timestamp time.Time           `json:"timestamp"`
}

// NewNormal builds a Normal transaction, normalizing its timestamp to UTC.
func NewNormal(inputs []TransactionInput, outputs []TransactionOutput, timestamp time.Time) Normal {
	return Normal{Inputs: inputs, Outputs: outputs, Timestamp: timestamp.UTC()}
}

// Equal reports structural equality over all fields, including timestamp.
func (n Normal) Equal(other Normal) bool {
	if len(n.Inputs) != len(other.Inputs) || len(n.Outputs) != len(other.Outputs) {
		return false
	}
	if !n.Timestamp.Equal(other.Timestamp) {
		return false
	}
	for i := range n.Inputs {
		if !n.Inputs[i].Equal(other.Inputs[i]) {
			return false
		}
	}
	for i := range n.Outputs {
		if !n.Outputs[i].Equal(other.Outputs[i]) {
			return false
		}
	}
	return true
}

// Output returns the output at index.
func (n Normal) Output(index uint32) (TransactionOutput, error) {
	if int(index) >= len(n.Outputs) {
		return TransactionOutput{}, errors.Errorf("normal transaction has no output at index %d", index)
	}
	return n.Outputs[index], nil
}

// InputValue sums the value of every output this transaction's inputs
// consume (spec.md §3 Fee = Σ input_values − Σ output_values).
func (n Normal) InputValue() (uint64, error) {
	var total uint64
	for _, in := range n.Inputs {
		out, err := in.Output()
		if err != nil {
			return 0, err
		}
		total += out.Value
	}
	return total, nil
}

// OutputValue sums this transaction's own output values.
func (n Normal) OutputValue() uint64 {
	var total uint64
	for _, out := range n.Outputs {
		total += out.Value
	}
	return total
}

// Fee returns InputValue - OutputValue (spec.md Glossary "Fee").
func (n Normal) Fee() (uint64, error) {
	in, err := n.InputValue()
	if err != nil {
		return 0, err
	}
	out := n.OutputValue()
	if out > in {
		return 0, errors.Errorf("normal transaction has negative fee: inputs=%d outputs=%d", in, out)
	}
	return in - out, nil
}

// Transaction is the tagged union of Coinbase and Normal, used only
// where a value of either shape may appear: embedded as a
// TransactionInput's parent (spec.md §3 TransactionInput). It is never
// the representation of a block's own coinbase/normals slots -- those
// are typed directly as Coinbase/Normal and serialize without the
// tx_type discriminator (spec.md §4.1).
type Transaction struct {
	Kind     Kind
	Coinbase Coinbase
	Normal   Normal
}

// FromCoinbase wraps a Coinbase transaction in the tagged union.
func FromCoinbase(c Coinbase) Transaction { return Transaction{Kind: KindCoinbase, Coinbase: c} }

// FromNormal wraps a Normal transaction in the tagged union.
func FromNormal(n Normal) Transaction { return Transaction{Kind: KindNormal, Normal: n} }

// Equal reports structural equality, including the tag.
func (t Transaction) Equal(other Transaction) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindCoinbase:
		return t.Coinbase.Equal(other.Coinbase)
	case KindNormal:
		return t.Normal.Equal(other.Normal)
	default:
		return false
	}
}

// Output returns the output at index, dispatching by Kind.
func (t Transaction) Output(index uint32) (TransactionOutput, error) {
	switch t.Kind {
	case KindCoinbase:
		return t.Coinbase.Output(index)
	case KindNormal:
		return t.Normal.Output(index)
	default:
		return TransactionOutput{}, errors.Errorf("transaction has unknown kind %q", t.Kind)
	}
}

// TransactionInput embeds its full parent transaction (not a hash
// reference — see spec.md §9 "Inputs embed parents") plus the output
// index within it that this input spends.
type TransactionInput struct {
	Transaction Transaction `json:"transaction"`
	Index       uint32      `json:"index"`
}

// NewTransactionInput builds an input spending parent's output at index.
func NewTransactionInput(parent Transaction, index uint32) TransactionInput {
	return TransactionInput{Transaction: parent, Index: index}
}

// Equal reports structural equality.
func (in TransactionInput) Equal(other TransactionInput) bool {
	return in.Index == other.Index && in.Transaction.Equal(other.Transaction)
}

// Output returns the parent output this input spends.
func (in TransactionInput) Output() (TransactionOutput, error) {
	return in.Transaction.Output(in.Index)
}

// Recipient is the address this input's spent output paid.
func (in TransactionInput) Recipient() (address.Address, error) {
	out, err := in.Output()
	if err != nil {
		return "", err
	}
	return out.Recipient, nil
}

// Transactions is the full transaction body of a block: a coinbase
// followed by zero or more normal transactions, in the order they were
// included (order is significant — it is hashed). Spec.md §3.
type Transactions struct {
	Coinbase Coinbase `json:"coinbase"`
	Normals  []Normal `json:"transactions"`
}

// NewTransactions builds a block body.
func NewTransactions(coinbase Coinbase, normals []Normal) Transactions {
	if normals == nil {
		normals = []Normal{}
	}
	return Transactions{Coinbase: coinbase, Normals: normals}
}

// All returns every transaction in the body, coinbase first, as
// generic Transaction values.
func (t Transactions) All() []Transaction {
	all := make([]Transaction, 0, len(t.Normals)+1)
	all = append(all, FromCoinbase(t.Coinbase))
	for _, n := range t.Normals {
		all = append(all, FromNormal(n))
	}
	return all
}

// Equal reports structural equality.
func (t Transactions) Equal(other Transactions) bool {
	if !t.Coinbase.Equal(other.Coinbase) || len(t.Normals) != len(other.Normals) {
		return false
	}
	for i := range t.Normals {
		if !t.Normals[i].Equal(other.Normals[i]) {
			return false
		}
	}
	return true
}
