package serialdev

// Link framing between the host and a serial-attached UWB module.
// Messages are type(1) + payload, SLIP-delimited so binary frames pass
// through the byte stream unambiguously.
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// Host-to-module commands.
const (
	cmdWriteTx     = 0x01 // frame bytes for the module tx buffer
	cmdTxFctrl     = 0x02 // u16 length
	cmdDelayStart  = 0x03 // u64 absolute device time
	cmdRxTimeout   = 0x04 // u32 microseconds
	cmdStartTx     = 0x05 // acked with evStarted
	cmdStartRx     = 0x06 // acked with evStarted
	cmdNrngRequest = 0x07 // u16 dst, u64 dx time, u32 peer mask
	cmdNrngListen  = 0x08 // u64 dx time, u32 timeout us
	cmdSetAddr     = 0x09 // u16 short addr, u16 cell id
)

// Module-to-host events.
const (
	evRxFrame   = 0x81 // received frame bytes
	evTxDone    = 0x82
	evRxTimeout = 0x83
	evReset     = 0x84
	evRange     = 0x85 // u16 peer slot, f32 distance in meters
	evRngDone   = 0x86 // u32 mask of peers that answered
	evStarted   = 0x87 // u8 1 = started, 0 = start error
	evLog       = 0x88 // utf-8 module diagnostics
)

// slipEncode appends the SLIP framing of msg to dst.
func slipEncode(dst, msg []byte) []byte {
	dst = append(dst, slipEnd)
	for _, b := range msg {
		switch b {
		case slipEnd:
			dst = append(dst, slipEsc, slipEscEnd)
		case slipEsc:
			dst = append(dst, slipEsc, slipEscEsc)
		default:
			dst = append(dst, b)
		}
	}
	return append(dst, slipEnd)
}

// slipDecoder accumulates stream bytes and yields complete messages.
type slipDecoder struct {
	buf     []byte
	escaped bool
}

// feed consumes one stream byte. It returns a completed message and
// true exactly when b closed a non-empty frame.
func (d *slipDecoder) feed(b byte) ([]byte, bool) {
	switch {
	case b == slipEnd:
		d.escaped = false
		if len(d.buf) == 0 {
			return nil, false
		}
		msg := make([]byte, len(d.buf))
		copy(msg, d.buf)
		d.buf = d.buf[:0]
		return msg, true
	case d.escaped:
		d.escaped = false
		switch b {
		case slipEscEnd:
			d.buf = append(d.buf, slipEnd)
		case slipEscEsc:
			d.buf = append(d.buf, slipEsc)
		default:
			// Protocol violation; drop the frame in progress.
			d.buf = d.buf[:0]
		}
	case b == slipEsc:
		d.escaped = true
	default:
		d.buf = append(d.buf, b)
	}
	return nil, false
}
