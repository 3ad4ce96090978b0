package testutil

import "bytes"

// Payload returns exactly size bytes starting with seed and padded with
// '.'. Distinct seeds give distinct payloads of the same size, which is
// what boundary tests need: same length, different content ids.
func Payload(seed string, size int) []byte {
	p := []byte(seed)
	if len(p) >= size {
		return p[:size]
	}
	return append(p, bytes.Repeat([]byte{'.'}, size-len(p))...)
}
