// Package address defines the Address type shared by internal/keys
// (which derives addresses from RSA public keys) and internal/tx
// (which carries addresses in outputs and inputs).
package address

// Address is the hex encoding of the DER-encoded RSA public key of its
// owner (spec.md §3 "Address"). Equality is byte-wise, i.e. simple
// string equality once both sides are normalized to lowercase hex,
// which every constructor in this repo guarantees.
type Address string

// String returns the lowercase-hex representation.
func (a Address) String() string { return string(a) }

// Empty reports whether a has never been set.
func (a Address) Empty() bool { return a == "" }
