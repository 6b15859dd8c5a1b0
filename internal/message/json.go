package message

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/tx"
)

// appProbe recovers only the discriminator before dispatching into the
// concrete ApplicationPayload shape.
type appProbe struct {
	MsgType AppKind `json:"msg_type"`
}

// MarshalJSON flattens ApplicationPayload's active variant alongside
// its msg_type discriminator (spec.md §4.7).
func (a ApplicationPayload) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AppKindNewTransaction:
		return json.Marshal(struct {
			MsgType     AppKind   `json:"msg_type"`
			Transaction tx.Normal `json:"transaction"`
			Signature   string    `json:"signature"`
		}{a.Kind, a.NewTransaction.Transaction, a.NewTransaction.Signature})
	case AppKindNewBlock:
		return json.Marshal(struct {
			MsgType AppKind     `json:"msg_type"`
			Block   block.Block `json:"block"`
		}{a.Kind, a.NewBlock.Block})
	case AppKindRequestFullChain:
		return json.Marshal(struct {
			MsgType AppKind `json:"msg_type"`
		}{a.Kind})
	case AppKindFullChain:
		return json.Marshal(struct {
			MsgType AppKind       `json:"msg_type"`
			Chain   []block.Block `json:"chain"`
		}{a.Kind, a.FullChain.Chain})
	default:
		return nil, errors.Errorf("application payload has unknown msg_type %q", a.Kind)
	}
}

// UnmarshalJSON dispatches on msg_type into the concrete variant.
func (a *ApplicationPayload) UnmarshalJSON(data []byte) error {
	var probe appProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return errors.Wrap(err, "failed to probe application payload msg_type")
	}

	switch probe.MsgType {
	case AppKindNewTransaction:
		var wire struct {
			Transaction tx.Normal `json:"transaction"`
			Signature   string    `json:"signature"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return errors.Wrap(err, "failed to decode NewTransaction application payload")
		}
		*a = NewNewTransaction(wire.Transaction, wire.Signature)
	case AppKindNewBlock:
		var wire struct {
			Block block.Block `json:"block"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return errors.Wrap(err, "failed to decode NewBlock application payload")
		}
		*a = NewNewBlock(wire.Block)
	case AppKindRequestFullChain:
		*a = NewRequestFullChain()
	case AppKindFullChain:
		var wire struct {
			Chain []block.Block `json:"chain"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return errors.Wrap(err, "failed to decode FullChain application payload")
		}
		*a = NewFullChain(wire.Chain)
	default:
		return errors.Errorf("application payload has unknown msg_type %q", probe.MsgType)
	}
	return nil
}

// payloadProbe recovers only the discriminator of the outer Payload.
type payloadProbe struct {
	MsgType Kind `json:"msg_type"`
}

// MarshalJSON flattens Payload's active variant alongside its msg_type
// discriminator (spec.md §4.6).
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case KindAdd, KindRemove, KindRequestCoreList, KindPing, KindAddAsEdge, KindRemoveEdge:
		return json.Marshal(struct {
			MsgType Kind `json:"msg_type"`
		}{p.Kind})
	case KindCoreList:
		return json.Marshal(struct {
			MsgType Kind     `json:"msg_type"`
			Nodes   []string `json:"nodes"`
		}{p.Kind, p.CoreList})
	case KindApplication:
		return json.Marshal(struct {
			MsgType Kind               `json:"msg_type"`
			Payload ApplicationPayload `json:"payload"`
		}{p.Kind, p.Application})
	default:
		return nil, errors.Errorf("payload has unknown msg_type %q", p.Kind)
	}
}

// UnmarshalJSON dispatches on msg_type into the concrete variant.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var probe payloadProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return errors.Wrap(err, "failed to probe payload msg_type")
	}

	switch probe.MsgType {
	case KindAdd:
		*p = NewAdd()
	case KindRemove:
		*p = NewRemove()
	case KindCoreList:
		var wire struct {
			Nodes []string `json:"nodes"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return errors.Wrap(err, "failed to decode CoreList payload")
		}
		*p = NewCoreList(wire.Nodes)
	case KindRequestCoreList:
		*p = NewRequestCoreList()
	case KindPing:
		*p = NewPing()
	case KindAddAsEdge:
		*p = NewAddAsEdge()
	case KindRemoveEdge:
		*p = NewRemoveEdge()
	case KindApplication:
		var wire struct {
			Payload ApplicationPayload `json:"payload"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return errors.Wrap(err, "failed to decode Application payload")
		}
		*p = NewApplication(wire.Payload)
	default:
		return errors.Errorf("payload has unknown msg_type %q", probe.MsgType)
	}
	return nil
}

// envelopeFields is the constant envelope prefix of every message.
type envelopeFields struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
	Port     uint16 `json:"port"`
}

// MarshalJSON flattens the envelope fields alongside the active
// payload's own fields (spec.md §6). Payload.MarshalJSON already
// produces a flat {msg_type, ...} object, so the envelope and payload
// objects are merged key-by-key rather than nested.
func (m Message) MarshalJSON() ([]byte, error) {
	envelope, err := json.Marshal(envelopeFields{Protocol: protocolName, Version: protocolVersion, Port: m.Port})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message envelope")
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message payload")
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(envelope, &merged); err != nil {
		return nil, errors.Wrap(err, "failed to merge message envelope")
	}
	var payloadFields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &payloadFields); err != nil {
		return nil, errors.Wrap(err, "failed to merge message payload")
	}
	for k, v := range payloadFields {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// UnmarshalJSON restores a Message from its flattened wire shape.
// Payload.UnmarshalJSON only reads the fields it recognizes, so the
// same raw bytes can be handed to it directly alongside the envelope.
func (m *Message) UnmarshalJSON(data []byte) error {
	var envelope envelopeFields
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Wrap(err, "failed to decode message envelope")
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.Wrap(err, "failed to decode message payload")
	}
	m.Port = envelope.Port
	m.Payload = payload
	return nil
}
