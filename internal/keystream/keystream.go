// Package keystream applies a repeating additive key to byte buffers.
//
// Arithmetic is modulo alphabet.Size: Encode computes (p + k) mod 128 and Decode
// computes (c - k) mod 128, with the key repeating cyclically over the buffer.
// Decoded bytes always lie in the working alphabet, and Decode inverts Encode for
// every plaintext and key byte in 0..127.
package keystream

import "github.com/haricheung/cribcrack/internal/alphabet"

const mask = alphabet.Size - 1

// Decode returns ciphertext minus the cyclic key, modulo the alphabet, optionally
// case-folded. An empty key returns the ciphertext reduced into the alphabet.
func Decode(ciphertext, key []byte, caseFold bool) []byte {
	out := make([]byte, len(ciphertext))
	DecodeInto(out, ciphertext, key, caseFold)
	return out
}

// DecodeInto is Decode writing into dst, which must be at least len(ciphertext) long.
func DecodeInto(dst, ciphertext, key []byte, caseFold bool) {
	kl := len(key)
	for i, c := range ciphertext {
		var k byte
		if kl > 0 {
			k = key[i%kl]
		}
		p := (c - k) & mask
		if caseFold {
			p = alphabet.FoldByte(p)
		}
		dst[i] = p
	}
}

// Encode returns plaintext plus the cyclic key, modulo the alphabet.
func Encode(plaintext, key []byte) []byte {
	out := make([]byte, len(plaintext))
	kl := len(key)
	for i, p := range plaintext {
		var k byte
		if kl > 0 {
			k = key[i%kl]
		}
		out[i] = (p + k) & mask
	}
	return out
}
