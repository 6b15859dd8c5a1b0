package block

// Equal reports structural equality between two block bodies.
func (b BlockWithoutProof) Equal(other BlockWithoutProof) bool {
	return b.Timestamp.Equal(other.Timestamp) &&
		b.Transaction.Equal(other.Transaction) &&
		b.PrevBlockHash == other.PrevBlockHash
}

// Equal reports structural equality between two blocks, including nonce.
func (b Block) Equal(other Block) bool {
	return b.Nonce == other.Nonce && b.BlockWithoutProof.Equal(other.BlockWithoutProof)
}
