// Package radio abstracts the UWB transceiver and its completion
// callback chain. Protocol layers register an Interface on a Device;
// backends (serialdev, dw1000, stubdev) feed hardware completion events
// into the chain via the Inject* methods.
package radio

import "sync"

// Transceiver is the minimal surface the survey protocol needs from a
// UWB radio backend. Times are absolute radio-timer values in device
// time units (microseconds shifted left 16 bits, 40-bit wrap), matching
// the delayed-start hardware timer convention.
type Transceiver interface {
	// WriteTx copies a frame into the transmit buffer.
	WriteTx(data []byte) error
	// WriteTxFctrl programs the transmit frame length.
	WriteTxFctrl(length uint16)
	// SetDelayStart programs the absolute start time for the next
	// delayed TX or RX operation.
	SetDelayStart(dxTime uint64)
	// SetRxTimeout programs the receive timeout in microseconds.
	// Zero disables the timeout.
	SetRxTimeout(usec uint32)
	// StartTx begins transmission. A non-nil error means the radio
	// never started and no completion event will follow.
	StartTx() error
	// StartRx enables the receiver, same error contract as StartTx.
	StartRx() error
	// FrameDuration returns the on-air time in microseconds of a
	// frame of the given byte length, preamble included.
	FrameDuration(length int) uint32
	// PreambleDuration returns the SHR preamble time in microseconds.
	PreambleDuration() uint32
}

// InterfaceID distinguishes protocol layers on the callback chain.
type InterfaceID uint8

const (
	IDRng InterfaceID = iota + 1
	IDNrng
	IDCcp
	IDSurvey
)

// Interface is one protocol layer's slice of the MAC callback chain.
// RxComplete returns true when the layer consumed the frame; dispatch
// stops there. The other callbacks are informational and the whole
// chain sees them regardless of return value.
type Interface struct {
	ID         InterfaceID
	RxComplete func(dev *Device, data []byte) bool
	TxComplete func(dev *Device) bool
	RxTimeout  func(dev *Device) bool
	Reset      func(dev *Device) bool
}

// Config carries the device identity fixed at bring-up.
type Config struct {
	ShortAddress uint16
	CellID       uint16
	SlotID       uint16
}

// Device couples a Transceiver backend with the node identity and the
// ordered callback chain. One Device exists per physical radio.
type Device struct {
	Transceiver

	cfg Config

	mu    sync.Mutex
	chain []*Interface
}

// NewDevice wraps a backend with identity cfg.
func NewDevice(t Transceiver, cfg Config) *Device {
	return &Device{Transceiver: t, cfg: cfg}
}

// ShortAddress returns the node's 16-bit source address.
func (d *Device) ShortAddress() uint16 { return d.cfg.ShortAddress }

// CellID returns the node's cell identity.
func (d *Device) CellID() uint16 { return d.cfg.CellID }

// SlotID returns the node's TDMA slot id, which is also its row index
// in the range matrix.
func (d *Device) SlotID() uint16 { return d.cfg.SlotID }

// AppendInterface adds cbs to the end of the callback chain. Appending
// an interface whose ID is already present replaces the previous entry,
// so re-initialization is idempotent.
func (d *Device) AppendInterface(cbs *Interface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.chain {
		if c.ID == cbs.ID {
			d.chain[i] = cbs
			return
		}
	}
	d.chain = append(d.chain, cbs)
}

// RemoveInterface detaches the interface with the given id.
func (d *Device) RemoveInterface(id InterfaceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.chain {
		if c.ID == id {
			d.chain = append(d.chain[:i], d.chain[i+1:]...)
			return
		}
	}
}

func (d *Device) snapshot() []*Interface {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Interface, len(d.chain))
	copy(out, d.chain)
	return out
}

// InjectRxComplete dispatches a received frame along the chain until a
// layer consumes it. Backends call this from their service loops.
func (d *Device) InjectRxComplete(data []byte) bool {
	for _, c := range d.snapshot() {
		if c.RxComplete != nil && c.RxComplete(d, data) {
			return true
		}
	}
	return false
}

// InjectTxComplete notifies the chain that a transmission finished.
func (d *Device) InjectTxComplete() {
	for _, c := range d.snapshot() {
		if c.TxComplete != nil {
			c.TxComplete(d)
		}
	}
}

// InjectRxTimeout notifies the chain that the receive timeout fired.
func (d *Device) InjectRxTimeout() {
	for _, c := range d.snapshot() {
		if c.RxTimeout != nil {
			c.RxTimeout(d)
		}
	}
}

// InjectReset notifies the chain that the radio went through a reset.
func (d *Device) InjectReset() {
	for _, c := range d.snapshot() {
		if c.Reset != nil {
			c.Reset(d)
		}
	}
}
