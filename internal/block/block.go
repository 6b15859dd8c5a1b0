// Package block implements the block data model, proof-of-work mining,
// and block self-validation. Grounded on
// original_source/src/blockchain/block.rs.
package block

import (
	"encoding/binary"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/simbtc/simbtc/internal/hashutil"
	"github.com/simbtc/simbtc/internal/tx"
)

// Hash is the lowercase-hex SHA-256 digest identifying a block (or the
// genesis sentinel).
type Hash string

// genesisMessage is the literal 50-byte JSON message
// `{"message":"this_is_simple_bitcoin_genesis_block"}`, whose SHA-256
// serves as the prev_block_hash of the first real block (spec.md §3,
// §6).
const genesisMessage = `{"message":"this_is_simple_bitcoin_genesis_block"}`

// GenesisHash returns the constant genesis sentinel hash.
func GenesisHash() Hash {
	return Hash(hashutil.ToHex(hashutil.Sha256Bytes([]byte(genesisMessage))))
}

// BlockWithoutProof is a block body prior to nonce search.
type BlockWithoutProof struct {
	Timestamp     time.Time       `json:"timestamp"`
	Transaction   tx.Transactions `json:"transaction"`
	PrevBlockHash Hash            `json:"prev_block_hash"`
}

// NewBlockWithoutProof builds an unmined block body.
func NewBlockWithoutProof(transactions tx.Transactions, prevBlockHash Hash, timestamp time.Time) BlockWithoutProof {
	return BlockWithoutProof{
		Timestamp:     timestamp.UTC(),
		Transaction:   transactions,
		PrevBlockHash: prevBlockHash,
	}
}

func (b BlockWithoutProof) canonicalJSON() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalize block body")
	}
	return data, nil
}

// Block is a mined block: its body plus the nonce that satisfies the
// PoW target. Canonical JSON flattens the body's fields with nonce
// last (spec.md §3, §6); Go's embedded-struct JSON inlining gives us
// this for free.
type Block struct {
	BlockWithoutProof
	Nonce uint64 `json:"nonce"`
}

// newBlock pairs a body with the nonce that satisfied Mine.
func newBlock(body BlockWithoutProof, nonce uint64) Block {
	return Block{BlockWithoutProof: body, Nonce: nonce}
}

// Hash computes SHA-256(canonical_json(block.inner) ||
// big_endian_8_bytes(nonce)) as lowercase hex. The nonce is appended
// after the JSON bytes, not embedded inside them (spec.md §4.2).
func (b Block) Hash() (Hash, error) {
	data, err := b.BlockWithoutProof.canonicalJSON()
	if err != nil {
		return "", err
	}
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], b.Nonce)
	return Hash(hashutil.Sha256(data, nonceBytes[:])), nil
}

// suffixZeros reports whether hash ends with difficulty hex zero
// characters. The target is a suffix, not a prefix (spec.md §4.2 —
// flipping this breaks compatibility).
func suffixZeros(hash Hash, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.HasSuffix(string(hash), strings.Repeat("0", difficulty))
}

// IsValid reports whether b's hash satisfies difficulty.
func (b Block) IsValid(difficulty int) (bool, error) {
	hash, err := b.Hash()
	if err != nil {
		return false, err
	}
	return suffixZeros(hash, difficulty), nil
}

// Mine enumerates nonce = 0, 1, 2, ... until hash(body, nonce) ends
// with difficulty hex zeros, then returns the mined Block. This is
// CPU-bound and must run off any I/O-handling goroutine (spec.md
// §4.2, §5) — callers should invoke it from a dedicated worker, never
// from the listener or handler goroutines. The search is not
// cancellable from outside; a caller that needs to discard a stale
// result does so after Mine returns (spec.md §4.2, §9).
func Mine(body BlockWithoutProof, difficulty int) (Block, error) {
	data, err := body.canonicalJSON()
	if err != nil {
		return Block{}, err
	}
	target := strings.Repeat("0", difficulty)
	for nonce := uint64(0); ; nonce++ {
		var nonceBytes [8]byte
		binary.BigEndian.PutUint64(nonceBytes[:], nonce)
		hash := hashutil.Sha256(data, nonceBytes[:])
		if strings.HasSuffix(hash, target) {
			return newBlock(body, nonce), nil
		}
	}
}
