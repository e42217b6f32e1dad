// Package dw1000 implements the survey transceiver over a directly
// attached DW1000, speaking the register protocol on an SPI bus. Only
// the transport subset the survey needs is implemented: tx buffer and
// frame control, the delayed-start timer, the receive frame-wait
// timeout, and completion polling. The ranging engine itself is not
// here; a node pairing this backend with a ranging service wires that
// separately.
package dw1000

import (
	"encoding/binary"
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"uwbsurvey/radio"
)

// PinOutput drives the chip-select line (active low). Keeping it a
// func avoids importing machine-specific pin types on the host.
type PinOutput func(high bool)

// Config carries the PHY settings used for duration math.
type Config struct {
	PreambleUS  uint32
	BitRateKbps uint32
	// PollInterval is the SYS_STATUS polling cadence of Run.
	PollInterval time.Duration
}

// DefaultConfig matches the common 6.8 Mb/s, 128-symbol preamble setup.
func DefaultConfig() Config {
	return Config{
		PreambleUS:   128,
		BitRateKbps:  6800,
		PollInterval: 100 * time.Microsecond,
	}
}

var (
	// ErrBadDevID means the chip did not answer with the DW1000 id.
	ErrBadDevID = errors.New("dw1000: unexpected device id")
	// ErrHpdWarn means the delayed start time was already in the past
	// when the operation was armed; the radio was returned to idle.
	ErrHpdWarn = errors.New("dw1000: delayed start missed (HPDWARN)")
)

// Radio is a register-level DW1000 transport.
type Radio struct {
	spi drivers.SPI
	cs  PinOutput
	cfg Config

	dev *radio.Device

	delayed bool // delayed start armed for the next tx/rx

	quit chan struct{}
	done chan struct{}
}

// New creates the transport on the given bus. Call Init before use.
func New(spi drivers.SPI, cs PinOutput, cfg Config) *Radio {
	return &Radio{spi: spi, cs: cs, cfg: cfg}
}

// Init probes the chip and programs the static configuration: identity
// registers and receive wait timeout enable.
func (r *Radio) Init(shortAddr, panID uint16) error {
	id, err := r.readReg32(regDevID, 0)
	if err != nil {
		return err
	}
	if id != devIDValue {
		return ErrBadDevID
	}

	if err := r.writeReg32(regPanAdr, 0, uint32(panID)<<16|uint32(shortAddr)); err != nil {
		return err
	}

	cfgv, err := r.readReg32(regSysCfg, 0)
	if err != nil {
		return err
	}
	return r.writeReg32(regSysCfg, 0, cfgv|sysCfgRxWtoE)
}

// Bind attaches the owning device for completion injection.
func (r *Radio) Bind(dev *radio.Device) { r.dev = dev }

// Run polls SYS_STATUS and turns status bits into callback-chain
// events until Stop is called. On hardware with an IRQ line the poll
// loop is replaced by the pin interrupt; the dispatch is identical.
func (r *Radio) Run() {
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.quit:
				return
			case <-time.After(r.cfg.PollInterval):
			}
			r.poll()
		}
	}()
}

// Stop ends the Run loop.
func (r *Radio) Stop() {
	if r.quit == nil {
		return
	}
	close(r.quit)
	<-r.done
	r.quit = nil
}

func (r *Radio) poll() {
	status, err := r.readReg32(regSysStatus, 0)
	if err != nil {
		return
	}

	switch {
	case status&sysStatusTxFrs != 0:
		r.writeReg32(regSysStatus, 0, sysStatusTxFrs)
		if r.dev != nil {
			r.dev.InjectTxComplete()
		}

	case status&(sysStatusRxDfr|sysStatusRxFcg) == sysStatusRxDfr|sysStatusRxFcg:
		frame, err := r.readRxFrame()
		r.writeReg32(regSysStatus, 0, sysStatusRxDfr|sysStatusRxFcg)
		if err == nil && r.dev != nil {
			r.dev.InjectRxComplete(frame)
		}

	case status&sysStatusRxFwto != 0:
		r.writeReg32(regSysStatus, 0, sysStatusRxFwto)
		if r.dev != nil {
			r.dev.InjectRxTimeout()
		}

	case status&(sysStatusRfPllLL|sysStatusClkPllLL) != 0:
		r.writeReg32(regSysStatus, 0, sysStatusRfPllLL|sysStatusClkPllLL)
		if r.dev != nil {
			r.dev.InjectReset()
		}

	case status&(sysStatusRxPhe|sysStatusRxFce|sysStatusRxRfsl|sysStatusRxSfdTo) != 0:
		// Receiver errors: clear and re-arm so the window survives a
		// corrupt frame.
		r.writeReg32(regSysStatus, 0, sysStatusRxPhe|sysStatusRxFce|sysStatusRxRfsl|sysStatusRxSfdTo)
		r.writeReg32(regSysCtrl, 0, sysCtrlRxEnab)
	}
}

func (r *Radio) readRxFrame() ([]byte, error) {
	finfo, err := r.readReg32(regRxFinfo, 0)
	if err != nil {
		return nil, err
	}
	n := int(finfo & rxFinfoLenMask)
	if n < 2 {
		return nil, errors.New("dw1000: short rx frame")
	}
	// Trailing 2 bytes are the FCS, already checked by hardware.
	buf := make([]byte, n-2)
	if err := r.readReg(regRxBuffer, 0, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteTx implements radio.Transceiver.
func (r *Radio) WriteTx(data []byte) error {
	return r.writeReg(regTxBuffer, 0, data)
}

// WriteTxFctrl implements radio.Transceiver. length covers the frame
// body; the hardware appends a 2-byte FCS.
func (r *Radio) WriteTxFctrl(length uint16) {
	v, err := r.readReg32(regTxFctrl, 0)
	if err != nil {
		return
	}
	v = v&^uint32(txFctrlLenMask) | uint32(length+2)&txFctrlLenMask
	r.writeReg32(regTxFctrl, 0, v)
}

// SetDelayStart implements radio.Transceiver: programs DX_TIME and
// arms delayed start for the next StartTx/StartRx.
func (r *Radio) SetDelayStart(dxTime uint64) {
	var buf [5]byte
	for i := range buf {
		buf[i] = byte(dxTime >> (8 * i))
	}
	if err := r.writeReg(regDxTime, 0, buf[:]); err == nil {
		r.delayed = true
	}
}

// SetRxTimeout implements radio.Transceiver.
func (r *Radio) SetRxTimeout(usec uint32) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(usec))
	r.writeReg(regRxFwto, 0, buf[:])
}

// StartTx implements radio.Transceiver. A delayed start that already
// missed its time raises HPDWARN; the transceiver is forced off and
// the miss reported, so no completion event follows.
func (r *Radio) StartTx() error {
	ctrl := uint32(sysCtrlTxStrt)
	if r.delayed {
		ctrl |= sysCtrlTxDlys
		r.delayed = false
	}
	if err := r.writeReg32(regSysCtrl, 0, ctrl); err != nil {
		return err
	}
	return r.checkHpdWarn(ctrl&sysCtrlTxDlys != 0)
}

// StartRx implements radio.Transceiver.
func (r *Radio) StartRx() error {
	ctrl := uint32(sysCtrlRxEnab)
	if r.delayed {
		ctrl |= sysCtrlRxDlye
		r.delayed = false
	}
	if err := r.writeReg32(regSysCtrl, 0, ctrl); err != nil {
		return err
	}
	return r.checkHpdWarn(ctrl&sysCtrlRxDlye != 0)
}

func (r *Radio) checkHpdWarn(delayed bool) error {
	if !delayed {
		return nil
	}
	status, err := r.readReg32(regSysStatus, 0)
	if err != nil {
		return err
	}
	if status&sysStatusHpdWarn != 0 {
		r.writeReg32(regSysCtrl, 0, sysCtrlTrxOff)
		r.writeReg32(regSysStatus, 0, sysStatusHpdWarn)
		return ErrHpdWarn
	}
	return nil
}

// FrameDuration implements radio.Transceiver.
func (r *Radio) FrameDuration(length int) uint32 {
	return r.cfg.PreambleUS + uint32(length)*8*1000/r.cfg.BitRateKbps
}

// PreambleDuration implements radio.Transceiver.
func (r *Radio) PreambleDuration() uint32 { return r.cfg.PreambleUS }

// SPI transaction header: bit7 = write, bit6 = sub-index present,
// second byte = low 7 bits of the sub-address.
func header(reg byte, sub uint16, write bool) []byte {
	h := reg & 0x3F
	if write {
		h |= 0x80
	}
	if sub == 0 {
		return []byte{h}
	}
	return []byte{h | 0x40, byte(sub & 0x7F)}
}

func (r *Radio) transfer(hdr, w, rd []byte) error {
	r.cs(false)
	defer r.cs(true)
	if err := r.spi.Tx(hdr, nil); err != nil {
		return err
	}
	return r.spi.Tx(w, rd)
}

func (r *Radio) readReg(reg byte, sub uint16, buf []byte) error {
	return r.transfer(header(reg, sub, false), nil, buf)
}

func (r *Radio) writeReg(reg byte, sub uint16, data []byte) error {
	return r.transfer(header(reg, sub, true), data, nil)
}

func (r *Radio) readReg32(reg byte, sub uint16) (uint32, error) {
	var buf [4]byte
	if err := r.readReg(reg, sub, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (r *Radio) writeReg32(reg byte, sub uint16, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return r.writeReg(reg, sub, buf[:])
}
