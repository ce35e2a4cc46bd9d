// Package bytesutil provides bounds-checked byte buffer helpers shared by
// the wire codec and the fallback relay.
package bytesutil

import "fmt"

// Slice extracts a sub-range from buf starting at offset with the given
// length. The returned slice aliases buf; callers that retain it across
// mutations should copy it first.
func Slice(buf []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("negative slice bounds: offset %d, length %d", offset, length)
	}
	if offset+length > len(buf) {
		return nil, fmt.Errorf("slice out of range: offset %d, length %d, buffer %d", offset, length, len(buf))
	}
	return buf[offset : offset+length], nil
}

// Copy returns a detached copy of b. A nil input yields a nil output.
func Copy(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
