// Package message implements the wire envelope and payload tagged
// unions exchanged between overlay nodes: one JSON message per TCP
// connection, read to EOF. Grounded on original_source/src/message.rs
// (envelope + control Payload shape) and spec.md §4.6-§4.7 (the
// Application payload and its own nested tagged union, which the
// retrieved original_source snapshot defines elsewhere but spec.md
// §6 pins down completely).
package message

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/tx"
)

// protocolName and protocolVersion are the constant envelope fields
// every message carries (spec.md §6).
const (
	protocolName    = "simple_bitcoin_protocol"
	protocolVersion = "0.1.0"
)

// Kind discriminates the outer Payload tagged union (spec.md §4.6).
type Kind string

// Control payload discriminator values.
const (
	KindAdd             Kind = "0"
	KindRemove          Kind = "1"
	KindCoreList        Kind = "2"
	KindRequestCoreList Kind = "3"
	KindPing            Kind = "4"
	KindAddAsEdge       Kind = "5"
	KindRemoveEdge      Kind = "6"
	KindApplication     Kind = "7"
)

// AppKind discriminates the nested ApplicationPayload tagged union
// (spec.md §4.7).
type AppKind string

// Application payload discriminator values.
const (
	AppKindNewTransaction   AppKind = "0"
	AppKindNewBlock         AppKind = "1"
	AppKindRequestFullChain AppKind = "2"
	AppKindFullChain        AppKind = "3"
)

// NewTransactionPayload carries a signed normal transaction awaiting
// admission to a core's mempool (spec.md §4.7).
type NewTransactionPayload struct {
	Transaction tx.Normal `json:"transaction"`
	Signature   string    `json:"signature"`
}

// NewBlockPayload announces a freshly mined or relayed block.
type NewBlockPayload struct {
	Block block.Block `json:"block"`
}

// FullChainPayload carries an entire chain, sent in reply to
// RequestFullChain (an edge uses it to refresh its UTXO view).
type FullChainPayload struct {
	Chain []block.Block `json:"chain"`
}

// ApplicationPayload is the nested tagged union carried by a Payload
// of KindApplication (spec.md §4.7).
type ApplicationPayload struct {
	Kind             AppKind
	NewTransaction   NewTransactionPayload
	NewBlock         NewBlockPayload
	RequestFullChain struct{}
	FullChain        FullChainPayload
}

// NewNewTransaction wraps a signed transaction as an ApplicationPayload.
func NewNewTransaction(t tx.Normal, signature string) ApplicationPayload {
	return ApplicationPayload{Kind: AppKindNewTransaction, NewTransaction: NewTransactionPayload{Transaction: t, Signature: signature}}
}

// NewNewBlock wraps a block as an ApplicationPayload.
func NewNewBlock(b block.Block) ApplicationPayload {
	return ApplicationPayload{Kind: AppKindNewBlock, NewBlock: NewBlockPayload{Block: b}}
}

// NewRequestFullChain builds a RequestFullChain ApplicationPayload.
func NewRequestFullChain() ApplicationPayload {
	return ApplicationPayload{Kind: AppKindRequestFullChain}
}

// NewFullChain wraps a chain as an ApplicationPayload.
func NewFullChain(chain []block.Block) ApplicationPayload {
	return ApplicationPayload{Kind: AppKindFullChain, FullChain: FullChainPayload{Chain: chain}}
}

// Payload is the outer control-message tagged union a node may send or
// receive (spec.md §4.6). CoreList.Nodes holds "host:port" strings.
type Payload struct {
	Kind        Kind
	CoreList    []string
	Application ApplicationPayload
}

// NewAdd builds an Add control payload.
func NewAdd() Payload { return Payload{Kind: KindAdd} }

// NewRemove builds a Remove control payload.
func NewRemove() Payload { return Payload{Kind: KindRemove} }

// NewCoreList builds a CoreList control payload.
func NewCoreList(nodes []string) Payload { return Payload{Kind: KindCoreList, CoreList: nodes} }

// NewRequestCoreList builds a RequestCoreList control payload.
func NewRequestCoreList() Payload { return Payload{Kind: KindRequestCoreList} }

// NewPing builds a Ping control payload.
func NewPing() Payload { return Payload{Kind: KindPing} }

// NewAddAsEdge builds an AddAsEdge control payload.
func NewAddAsEdge() Payload { return Payload{Kind: KindAddAsEdge} }

// NewRemoveEdge builds a RemoveEdge control payload.
func NewRemoveEdge() Payload { return Payload{Kind: KindRemoveEdge} }

// NewApplication wraps an ApplicationPayload as the outer Payload.
func NewApplication(app ApplicationPayload) Payload {
	return Payload{Kind: KindApplication, Application: app}
}

// Message is the full envelope written to the wire: one per TCP
// connection, terminated by EOF (spec.md §4.6, §6).
type Message struct {
	Port    uint16
	Payload Payload
}

// New builds a Message with the constant protocol/version fields.
func New(port uint16, payload Payload) Message {
	return Message{Port: port, Payload: payload}
}

// Encode serializes m to its wire JSON form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	return data, nil
}

// Decode parses a wire JSON message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, "failed to decode message")
	}
	return m, nil
}
