// Package xcipher implements the RFC 6455, section 5.3 masking algorithm:
// XOR every payload octet with one of four key bytes, cycling the key on a
// four-byte period. It is grounded on the word-aligned cipher found in the
// WebSocket transport examples this module was built from — XOR four bytes
// at a time via a precomputed 32-bit key word, falling back to byte-at-a-time
// for the trailing remainder.
package xcipher

import "encoding/binary"

// Mask XORs b in place with key, repeating the 4-byte key across the whole
// slice. It is its own inverse: applying it twice with the same key restores
// the original bytes.
func Mask(b []byte, key [4]byte) {
	if len(b) == 0 {
		return
	}

	keyWord := binary.LittleEndian.Uint32(key[:])

	n := 0
	for ; n+4 <= len(b); n += 4 {
		w := binary.LittleEndian.Uint32(b[n : n+4])
		binary.LittleEndian.PutUint32(b[n:n+4], w^keyWord)
	}
	for ; n < len(b); n++ {
		b[n] ^= key[n%4]
	}
}
