package protocol

import "math/bits"

// NodeMask is a bitset over TDMA slot ids. Bit i set means a distance to
// the node owning slot i is present, so a mask never carries more than
// MaxNodes bits.
type NodeMask uint32

// AllNodes returns a mask with the low nnodes bits set.
func AllNodes(nnodes int) NodeMask {
	if nnodes >= MaxNodes {
		return NodeMask(^uint32(0))
	}
	return NodeMask(^(^uint32(0) << uint(nnodes)))
}

// Count returns the number of set bits.
func (m NodeMask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Test reports whether bit slot is set.
func (m NodeMask) Test(slot int) bool {
	if slot < 0 || slot >= MaxNodes {
		return false
	}
	return m&(1<<uint(slot)) != 0
}

// Set sets bit slot. Out-of-range slots are ignored.
func (m *NodeMask) Set(slot int) {
	if slot < 0 || slot >= MaxNodes {
		return
	}
	*m |= 1 << uint(slot)
}

// ForEach calls fn for every set bit in ascending order. ord is the
// ordinal of the bit among the set bits (0-based), which is also the
// index of the matching distance in a broadcast frame.
func (m NodeMask) ForEach(fn func(slot, ord int)) {
	ord := 0
	for v := uint32(m); v != 0; {
		slot := bits.TrailingZeros32(v)
		fn(slot, ord)
		ord++
		v &= v - 1
	}
}
