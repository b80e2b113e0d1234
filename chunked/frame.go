package chunked

import (
	"math/bits"
	"strconv"
)

// 16 hex digits for a 64-bit length plus CRLF.
const maxHeaderLen = 16 + 2

var crlf = []byte("\r\n")

// Terminator is the zero-length chunk that ends every encoded stream.
var Terminator = []byte("0\r\n\r\n")

// AppendFrameHeader appends the size line of an n byte chunk to dst: n in
// lowercase hexadecimal without leading zeros, followed by CRLF.
func AppendFrameHeader(dst []byte, n int) []byte {
	dst = strconv.AppendUint(dst, uint64(n), 16)
	return append(dst, '\r', '\n')
}

// FramedLen returns the encoded size of a payload of n bytes, terminator
// included, as produced by an Encoder with the given chunk size and
// FlushAfterWrite disabled. With FlushAfterWrite the result depends on how the
// payload is split across writes.
func FramedLen(n, chunkSize int) int {
	if chunkSize < 1 || n < 0 {
		return -1
	}
	full, rem := n/chunkSize, n%chunkSize
	total := full * frameLen(chunkSize)
	if rem > 0 {
		total += frameLen(rem)
	}
	return total + len(Terminator)
}

func frameLen(n int) int {
	return hexLen(n) + len(crlf) + n + len(crlf)
}

func hexLen(n int) int {
	if n == 0 {
		return 1
	}
	return (bits.Len64(uint64(n)) + 3) / 4
}
