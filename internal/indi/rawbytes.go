package indi

import (
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// encoding/xml stops at the first byte that is not valid UTF-8, but some
// drivers write raw single-byte text into number elements. Before the
// tokenizer sees the stream, each such byte b is replaced with the rune
// rawByteBase+b (U+10FF80..U+10FFFF, private use plane 16), which XML
// accepts. Number bodies turn the runes back into the bytes they stand for;
// any other text or attribute holding one is reported as invalid UTF-8.
const rawByteBase rune = 0x10FF00

func isRawByteRune(r rune) bool {
	return r >= rawByteBase+0x80 && r <= rawByteBase+0xFF
}

// escapeRawBytes is the transformer in front of the tokenizer.
type escapeRawBytes struct{ transform.NopResetter }

func (escapeRawBytes) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c < utf8.RuneSelf {
			if nDst == len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			if len(dst)-nDst < utf8.UTFMax {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += utf8.EncodeRune(dst[nDst:], rawByteBase+rune(c))
		} else {
			if len(dst)-nDst < size {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		}
		nSrc += size
	}
	return nDst, nSrc, nil
}

// restoreRawBytes undoes escapeRawBytes. It runs ahead of a charset decoder
// when the stream declares a non-UTF-8 encoding.
type restoreRawBytes struct{ transform.NopResetter }

func (restoreRawBytes) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if isRawByteRune(r) {
			if nDst == len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = byte(r - rawByteBase)
			nDst++
		} else {
			if len(dst)-nDst < size {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		}
		nSrc += size
	}
	return nDst, nSrc, nil
}

// rawBytes returns text as it appeared on the wire.
func rawBytes(text []byte) []byte {
	if !hasRawBytes(text) {
		return text
	}
	out := make([]byte, 0, len(text))
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		if isRawByteRune(r) {
			out = append(out, byte(r-rawByteBase))
		} else {
			out = append(out, text[:size]...)
		}
		text = text[size:]
	}
	return out
}

func hasRawBytes[T ~string | ~[]byte](text T) bool {
	for _, r := range string(text) {
		if isRawByteRune(r) {
			return true
		}
	}
	return false
}
