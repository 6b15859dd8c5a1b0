package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/simbtc/simbtc/internal/tx"
)

func TestMessageRoundTripControlPayload(t *testing.T) {
	original := New(9100, NewAdd())

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Port != original.Port || decoded.Payload.Kind != original.Payload.Kind {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMessageRoundTripCoreList(t *testing.T) {
	original := New(9100, NewCoreList([]string{"127.0.0.1:9100", "127.0.0.1:9101"}))

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Payload.CoreList) != 2 || decoded.Payload.CoreList[0] != "127.0.0.1:9100" {
		t.Errorf("CoreList round trip: got %v", decoded.Payload.CoreList)
	}
}

func TestMessageRoundTripApplicationNewTransaction(t *testing.T) {
	parent := tx.FromCoinbase(tx.NewCoinbase("alice", 10, time.Now()))
	normal := tx.NewNormal(
		[]tx.TransactionInput{tx.NewTransactionInput(parent, 0)},
		[]tx.TransactionOutput{{Recipient: "bob", Value: 10}},
		time.Now(),
	)
	app := NewNewTransaction(normal, "deadbeef")
	original := New(9200, NewApplication(app))

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Payload.Kind != KindApplication {
		t.Fatalf("Payload.Kind: got %q, want KindApplication", decoded.Payload.Kind)
	}
	if decoded.Payload.Application.Kind != AppKindNewTransaction {
		t.Fatalf("Application.Kind: got %q, want AppKindNewTransaction", decoded.Payload.Application.Kind)
	}
	if decoded.Payload.Application.NewTransaction.Signature != "deadbeef" {
		t.Errorf("Signature: got %q", decoded.Payload.Application.NewTransaction.Signature)
	}
	if !decoded.Payload.Application.NewTransaction.Transaction.Equal(normal) {
		t.Error("NewTransaction.Transaction round trip changed the transaction")
	}
}

func TestMessageRoundTripApplicationRequestFullChain(t *testing.T) {
	original := New(9200, NewApplication(NewRequestFullChain()))

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Payload.Application.Kind != AppKindRequestFullChain {
		t.Errorf("Application.Kind: got %q, want AppKindRequestFullChain", decoded.Payload.Application.Kind)
	}
}

func TestEncodedMessageCarriesEnvelopeFields(t *testing.T) {
	data, err := Encode(New(9100, NewPing()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if raw["protocol"] != protocolName {
		t.Errorf("protocol: got %v, want %q", raw["protocol"], protocolName)
	}
	if raw["version"] != protocolVersion {
		t.Errorf("version: got %v, want %q", raw["version"], protocolVersion)
	}
	if raw["msg_type"] != string(KindPing) {
		t.Errorf("msg_type: got %v, want %q", raw["msg_type"], KindPing)
	}
}

func TestDecodeRejectsUnknownMsgType(t *testing.T) {
	if _, err := Decode([]byte(`{"protocol":"x","version":"0.1.0","port":1,"msg_type":"99"}`)); err == nil {
		t.Error("Decode accepted an unknown msg_type, expected an error")
	}
}
