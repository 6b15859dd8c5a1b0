package tx

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/address"
)

// coinbaseWire mirrors Coinbase's field order with tx_type prepended,
// used only when a Coinbase value occupies a generic Transaction slot
// (i.e. as a TransactionInput's embedded parent).
type coinbaseWire struct {
	TxType    Kind            `json:"tx_type"`
	Recipient address.Address `json:"recipient"`
	Value     uint64          `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

type normalWire struct {
	TxType    Kind                `json:"tx_type"`
	Inputs    []TransactionInput  `json:"inputs"`
	Outputs   []TransactionOutput `json:"outputs"`
	Timestamp time.Time           `json:"timestamp"`
}

// MarshalJSON implements the tagged-union wire format (spec.md §4.1):
// tx_type first, followed by the variant's own fields in declaration
// order.
func (t Transaction) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case KindCoinbase:
		return json.Marshal(coinbaseWire{
			TxType:    KindCoinbase,
			Recipient: t.Coinbase.Recipient,
			Value:     t.Coinbase.Value,
			Timestamp: t.Coinbase.Timestamp,
		})
	case KindNormal:
		return json.Marshal(normalWire{
			TxType:    KindNormal,
			Inputs:    t.Normal.Inputs,
			Outputs:   t.Normal.Outputs,
			Timestamp: t.Normal.Timestamp,
		})
	default:
		return nil, errors.Errorf("transaction has unknown kind %q", t.Kind)
	}
}

// UnmarshalJSON reads the tx_type discriminator and dispatches to the
// matching variant.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var probe struct {
		TxType Kind `json:"tx_type"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&probe); err != nil {
		return errors.Wrap(err, "failed to probe tx_type")
	}

	switch probe.TxType {
	case KindCoinbase:
		var w coinbaseWire
		if err := json.Unmarshal(data, &w); err != nil {
			return errors.Wrap(err, "failed to decode coinbase transaction")
		}
		t.Kind = KindCoinbase
		t.Coinbase = Coinbase{Recipient: w.Recipient, Value: w.Value, Timestamp: w.Timestamp.UTC()}
		return nil
	case KindNormal:
		var w normalWire
		if err := json.Unmarshal(data, &w); err != nil {
			return errors.Wrap(err, "failed to decode normal transaction")
		}
		t.Kind = KindNormal
		t.Normal = Normal{Inputs: w.Inputs, Outputs: w.Outputs, Timestamp: w.Timestamp.UTC()}
		return nil
	default:
		return errors.Errorf("unknown tx_type %q", probe.TxType)
	}
}
