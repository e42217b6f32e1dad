// Package stubdev implements an in-memory radio backend for tests and
// simulation. Radios joined to the same Air see each other's
// transmissions; completion events are delivered synchronously on the
// caller's goroutine, mirroring the interrupt-context delivery of a
// real driver.
package stubdev

import (
	"errors"
	"sync"

	"uwbsurvey/radio"
)

// ErrStartTx and ErrStartRx are returned when failure injection is armed.
var (
	ErrStartTx = errors.New("stubdev: start tx failed")
	ErrStartRx = errors.New("stubdev: start rx failed")
)

// Radio is a stub Transceiver. Zero value is not usable; call New.
type Radio struct {
	// PreambleUS and BitRateKbps feed the frame-duration model.
	PreambleUS  uint32
	BitRateKbps uint32

	mu        sync.Mutex
	dev       *radio.Device
	air       *Air
	txBuf     []byte
	txLen     uint16
	delay     uint64
	rxTimeout uint32
	listening bool
	failTx    bool
	failRx    bool
	txLog     [][]byte
}

// New creates a stub radio with the default PHY model (6.8 Mb/s data
// rate, 128 us preamble).
func New() *Radio {
	return &Radio{PreambleUS: 128, BitRateKbps: 6800}
}

// Bind attaches the owning device so the stub can inject completion
// events into its callback chain.
func (r *Radio) Bind(dev *radio.Device) { r.dev = dev }

// FailNextTx arms or clears StartTx failure injection.
func (r *Radio) FailNextTx(v bool) {
	r.mu.Lock()
	r.failTx = v
	r.mu.Unlock()
}

// FailNextRx arms or clears StartRx failure injection.
func (r *Radio) FailNextRx(v bool) {
	r.mu.Lock()
	r.failRx = v
	r.mu.Unlock()
}

// WriteTx implements radio.Transceiver.
func (r *Radio) WriteTx(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txBuf = append(r.txBuf[:0], data...)
	return nil
}

// WriteTxFctrl implements radio.Transceiver.
func (r *Radio) WriteTxFctrl(length uint16) {
	r.mu.Lock()
	r.txLen = length
	r.mu.Unlock()
}

// SetDelayStart implements radio.Transceiver.
func (r *Radio) SetDelayStart(dxTime uint64) {
	r.mu.Lock()
	r.delay = dxTime
	r.mu.Unlock()
}

// SetRxTimeout implements radio.Transceiver.
func (r *Radio) SetRxTimeout(usec uint32) {
	r.mu.Lock()
	r.rxTimeout = usec
	r.mu.Unlock()
}

// StartTx delivers the buffered frame to every listening radio on the
// Air, then injects the transmit-complete event.
func (r *Radio) StartTx() error {
	r.mu.Lock()
	if r.failTx {
		r.failTx = false
		r.mu.Unlock()
		return ErrStartTx
	}
	frame := make([]byte, r.txLen)
	copy(frame, r.txBuf)
	r.txLog = append(r.txLog, frame)
	air := r.air
	r.mu.Unlock()

	if air != nil {
		air.transmit(r, frame)
	}
	if r.dev != nil {
		r.dev.InjectTxComplete()
	}
	return nil
}

// StartRx implements radio.Transceiver.
func (r *Radio) StartRx() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRx {
		r.failRx = false
		return ErrStartRx
	}
	r.listening = true
	return nil
}

// FrameDuration implements radio.Transceiver.
func (r *Radio) FrameDuration(length int) uint32 {
	return r.PreambleUS + uint32(length)*8*1000/r.BitRateKbps
}

// PreambleDuration implements radio.Transceiver.
func (r *Radio) PreambleDuration() uint32 { return r.PreambleUS }

// InjectRx bypasses the Air and hands a frame straight to the device
// chain, whether or not the radio is listening.
func (r *Radio) InjectRx(data []byte) bool {
	r.mu.Lock()
	r.listening = false
	r.mu.Unlock()
	if r.dev == nil {
		return false
	}
	return r.dev.InjectRxComplete(data)
}

// FireRxTimeout injects the receive-timeout event and closes the
// window.
func (r *Radio) FireRxTimeout() {
	r.mu.Lock()
	r.listening = false
	r.mu.Unlock()
	if r.dev != nil {
		r.dev.InjectRxTimeout()
	}
}

// FireReset injects the device-reset event.
func (r *Radio) FireReset() {
	if r.dev != nil {
		r.dev.InjectReset()
	}
}

// Listening reports whether the receiver window is open.
func (r *Radio) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// TxLog returns a copy of every frame started so far.
func (r *Radio) TxLog() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.txLog))
	for i, f := range r.txLog {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Air connects stub radios: a transmission by one is offered to every
// other joined radio with an open receive window.
type Air struct {
	mu     sync.Mutex
	radios []*Radio
}

// NewAir creates an empty medium.
func NewAir() *Air { return &Air{} }

// Join adds r to the medium.
func (a *Air) Join(r *Radio) {
	a.mu.Lock()
	a.radios = append(a.radios, r)
	a.mu.Unlock()

	r.mu.Lock()
	r.air = a
	r.mu.Unlock()
}

func (a *Air) transmit(from *Radio, frame []byte) {
	a.mu.Lock()
	peers := make([]*Radio, len(a.radios))
	copy(peers, a.radios)
	a.mu.Unlock()

	for _, p := range peers {
		if p == from {
			continue
		}
		p.mu.Lock()
		open := p.listening
		if open {
			p.listening = false
		}
		dev := p.dev
		p.mu.Unlock()
		if open && dev != nil {
			dev.InjectRxComplete(append([]byte(nil), frame...))
		}
	}
}
