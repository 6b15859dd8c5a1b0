package tx

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// CanonicalJSON returns the exact bytes a signature is computed over
// for n (spec.md §4.1): the bare {inputs, outputs, timestamp} object,
// no tx_type tag, fields in declaration order. encoding/json already
// marshals struct fields in declaration order, so this is simply
// json.Marshal — the helper exists so every call site names its intent
// rather than marshaling ad hoc.
func CanonicalJSON(n Normal) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalize normal transaction")
	}
	return data, nil
}
