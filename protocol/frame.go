package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// Frame represents a survey broadcast: one node's completed row of the
// range matrix, flooded to all peers during the aggregation slot.
// Layout: PANID(2) | Fctrl(2) | Dst(2) | Src(2) | Code(1) | CellID(2) |
// Seq(4) | SlotID(2) | Mask(4) | Count(Mask) x float32 ranges.
// All fields little-endian. The distance array is ordered by ascending
// set-bit index of Mask.
type Frame struct {
	Src    uint16
	CellID uint16
	Seq    uint32
	SlotID uint16
	Mask   NodeMask
	Ranges []float32
}

// ErrShortBuffer is returned when an encode target cannot hold the frame.
var ErrShortBuffer = errors.New("protocol: buffer too small for frame")

// ErrRangeCount is returned when len(Ranges) does not match Mask.
var ErrRangeCount = errors.New("protocol: range count does not match mask")

// EncodeFrame writes f into buf and returns the number of bytes written.
// buf is reused across cycles by the caller; it must hold
// FrameSize(f.Mask.Count()) bytes.
func EncodeFrame(f *Frame, buf []byte) (int, error) {
	npeers := f.Mask.Count()
	if len(f.Ranges) != npeers {
		return 0, ErrRangeCount
	}
	n := FrameSize(npeers)
	if len(buf) < n {
		return 0, ErrShortBuffer
	}

	binary.LittleEndian.PutUint16(buf[posPANID:], PANID)
	binary.LittleEndian.PutUint16(buf[posFctrl:], FctrlRange16)
	binary.LittleEndian.PutUint16(buf[posDst:], BroadcastAddress)
	binary.LittleEndian.PutUint16(buf[posSrc:], f.Src)
	buf[posCode] = CodeSurveyBroadcast
	binary.LittleEndian.PutUint16(buf[posCellID:], f.CellID)
	binary.LittleEndian.PutUint32(buf[posSeq:], f.Seq)
	binary.LittleEndian.PutUint16(buf[posSlotID:], f.SlotID)
	binary.LittleEndian.PutUint32(buf[posMask:], uint32(f.Mask))

	for i, r := range f.Ranges {
		off := HeaderSize + i*RangeSize
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(r))
	}
	return n, nil
}

// DecodeFrame parses data as a survey broadcast. It returns nil when the
// bytes are not a survey broadcast or are structurally malformed, so a
// caller can pass the frame on to other protocol layers. Field values
// (cell id, sequence, slot bounds) are the receiver's business; only the
// structure and the fixed identity constants are checked here.
func DecodeFrame(data []byte) *Frame {
	if len(data) < HeaderSize {
		return nil
	}
	if binary.LittleEndian.Uint16(data[posPANID:]) != PANID {
		return nil
	}
	if binary.LittleEndian.Uint16(data[posFctrl:]) != FctrlRange16 {
		return nil
	}
	if binary.LittleEndian.Uint16(data[posDst:]) != BroadcastAddress {
		return nil
	}
	if data[posCode] != CodeSurveyBroadcast {
		return nil
	}

	mask := NodeMask(binary.LittleEndian.Uint32(data[posMask:]))
	npeers := mask.Count()
	if len(data) < FrameSize(npeers) {
		return nil
	}

	f := &Frame{
		Src:    binary.LittleEndian.Uint16(data[posSrc:]),
		CellID: binary.LittleEndian.Uint16(data[posCellID:]),
		Seq:    binary.LittleEndian.Uint32(data[posSeq:]),
		SlotID: binary.LittleEndian.Uint16(data[posSlotID:]),
		Mask:   mask,
	}
	if npeers > 0 {
		f.Ranges = make([]float32, npeers)
		for i := range f.Ranges {
			off := HeaderSize + i*RangeSize
			f.Ranges[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		}
	} else {
		f.Ranges = make([]float32, 0)
	}
	return f
}

// Fctrl extracts the frame-control field from raw bytes without a full
// decode. Used by receive paths to reject foreign traffic early.
func Fctrl(data []byte) uint16 {
	if len(data) < posFctrl+2 {
		return 0
	}
	return binary.LittleEndian.Uint16(data[posFctrl:])
}
