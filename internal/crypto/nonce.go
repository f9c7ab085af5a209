package crypto

import "errors"

// ErrNonceOverflow is returned when the chunk counter would carry out of the
// 96-bit nonce space. A file would need more than 2^96 chunks to hit this.
var ErrNonceOverflow = errors.New("nonce counter overflow")

// chunkNonce derives the nonce for chunk i by big-endian addition of i to the
// file's base nonce, treated as a 96-bit unsigned integer.
//
// Checked addition is used rather than XOR: XOR-ing a counter into a random
// base nonce only avoids collisions if the affected bit patterns are proven
// disjoint, while addition over the full 96-bit space is collision-free for
// any two distinct counters below 2^96. Overflow past the top byte is
// detected and rejected explicitly.
func chunkNonce(baseNonce []byte, counter uint64) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	copy(nonce, baseNonce)

	carry := counter
	for i := NonceSize - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(nonce[i]) + (carry & 0xff)
		nonce[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
	if carry > 0 {
		return nil, ErrNonceOverflow
	}
	return nonce, nil
}
