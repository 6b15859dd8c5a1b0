package chain

import "github.com/pkg/errors"

// Typed error kinds from spec.md §7 "Protocol" category. Callers use
// errors.Is against these sentinels; wrapped context is added with
// errors.Wrap at the call site.
var (
	// ErrBadPrevHash means a block's prev_block_hash doesn't match the
	// current tip.
	ErrBadPrevHash = errors.New("block prev_block_hash does not match chain tip")
	// ErrBadDifficulty means a block's hash doesn't meet the target
	// difficulty.
	ErrBadDifficulty = errors.New("block hash does not satisfy difficulty")
	// ErrBadCoinbaseValue means I3 (coinbase accounting) failed.
	ErrBadCoinbaseValue = errors.New("coinbase value does not equal fees plus incentive")
	// ErrUnknownInput means a transaction input's parent isn't present
	// in the chain.
	ErrUnknownInput = errors.New("transaction input references a parent not present in the chain")
	// ErrDoubleSpend means a transaction input already has a
	// consuming input earlier in the chain.
	ErrDoubleSpend = errors.New("transaction input already spent in the chain")
)
