// Package alphabet defines the working byte alphabet shared by the models,
// the scorer, the keystream and the presentation layer.
package alphabet

// Size is the number of byte values in the working alphabet (0..127).
const Size = 128

// Placeholder is rendered in place of bytes that have no printable glyph.
const Placeholder = "·"

// FoldByte maps ASCII lower-case letters to upper case. All other bytes pass through.
func FoldByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// Fold returns a case-folded copy of buf. buf is never modified.
func Fold(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = FoldByte(b)
	}
	return out
}

// Contains reports whether b is a member of the working alphabet.
func Contains(b byte) bool {
	return b < Size
}

// Printable renders b as its ASCII glyph, or Placeholder for control and
// out-of-alphabet bytes.
//
// Expectations:
//   - Returns the single-character string for 0x20..0x7E
//   - Returns Placeholder for 0x00..0x1F, 0x7F and every byte >= 0x80
func Printable(b byte) string {
	if b >= 0x20 && b < 0x7f {
		return string(rune(b))
	}
	return Placeholder
}

// Render applies Printable to every byte of buf.
func Render(buf []byte) string {
	out := make([]byte, 0, len(buf))
	for _, b := range buf {
		out = append(out, Printable(b)...)
	}
	return string(out)
}
