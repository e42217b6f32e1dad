// Package serialdev drives a serial-attached UWB module whose firmware
// exposes the transceiver and the multi-node ranging engine over a
// SLIP-framed command protocol. Radio implements both radio.Transceiver
// and nrng.Ranger; completion events read off the serial link are
// injected into the owning device's callback chain.
package serialdev

import (
	"encoding/binary"
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/tarm/serial"

	"uwbsurvey/nrng"
	"uwbsurvey/protocol"
	"uwbsurvey/radio"
)

// Config selects the serial link and the PHY model used for host-side
// duration math.
type Config struct {
	Device string
	Baud   int

	// PreambleUS and BitRateKbps describe the module's PHY settings;
	// they only affect timeout derivation on the host.
	PreambleUS  uint32
	BitRateKbps uint32

	// AckTimeout bounds the wait for a start acknowledgement.
	AckTimeout time.Duration
}

// DefaultConfig returns the standard module link settings.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        115200,
		PreambleUS:  128,
		BitRateKbps: 6800,
		AckTimeout:  250 * time.Millisecond,
	}
}

var (
	// ErrStartTimeout means the module never acknowledged a start.
	ErrStartTimeout = errors.New("serialdev: start not acknowledged")
	// ErrStartFailed is the module's negative start acknowledgement.
	ErrStartFailed = errors.New("serialdev: module reported start error")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("serialdev: link closed")
)

// Radio is a serial-attached UWB module.
type Radio struct {
	cfg  Config
	port io.ReadWriteCloser

	dev *radio.Device

	wmu sync.Mutex // serializes writes to the port
	enc []byte     // reusable encode buffer

	started chan bool // start acknowledgements

	rmu      sync.Mutex
	rngMask  protocol.NodeMask
	rngDists map[int]float32
	rngDone  chan struct{}

	quit chan struct{}
	done chan struct{}
}

// Open connects to the module and starts the event reader.
func Open(cfg Config) (*Radio, error) {
	port, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: cfg.Baud})
	if err != nil {
		return nil, err
	}
	return newRadio(cfg, port), nil
}

// newRadio wires a Radio over any stream, so tests can substitute a
// pipe for the serial port.
func newRadio(cfg Config, port io.ReadWriteCloser) *Radio {
	r := &Radio{
		cfg:      cfg,
		port:     port,
		started:  make(chan bool, 1),
		rngDists: make(map[int]float32),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// Bind attaches the owning device. Identity is pushed to the module so
// its firmware filters and stamps frames consistently.
func (r *Radio) Bind(dev *radio.Device) error {
	r.dev = dev
	msg := make([]byte, 5)
	msg[0] = cmdSetAddr
	binary.LittleEndian.PutUint16(msg[1:], dev.ShortAddress())
	binary.LittleEndian.PutUint16(msg[3:], dev.CellID())
	return r.send(msg)
}

// Close stops the reader and releases the port.
func (r *Radio) Close() error {
	close(r.quit)
	err := r.port.Close()
	<-r.done
	return err
}

func (r *Radio) send(msg []byte) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	r.enc = slipEncode(r.enc[:0], msg)
	_, err := r.port.Write(r.enc)
	return err
}

// WriteTx implements radio.Transceiver.
func (r *Radio) WriteTx(data []byte) error {
	msg := make([]byte, 1+len(data))
	msg[0] = cmdWriteTx
	copy(msg[1:], data)
	return r.send(msg)
}

// WriteTxFctrl implements radio.Transceiver.
func (r *Radio) WriteTxFctrl(length uint16) {
	msg := make([]byte, 3)
	msg[0] = cmdTxFctrl
	binary.LittleEndian.PutUint16(msg[1:], length)
	if err := r.send(msg); err != nil {
		log.Printf("[serialdev] tx fctrl: %v", err)
	}
}

// SetDelayStart implements radio.Transceiver.
func (r *Radio) SetDelayStart(dxTime uint64) {
	msg := make([]byte, 9)
	msg[0] = cmdDelayStart
	binary.LittleEndian.PutUint64(msg[1:], dxTime)
	if err := r.send(msg); err != nil {
		log.Printf("[serialdev] delay start: %v", err)
	}
}

// SetRxTimeout implements radio.Transceiver.
func (r *Radio) SetRxTimeout(usec uint32) {
	msg := make([]byte, 5)
	msg[0] = cmdRxTimeout
	binary.LittleEndian.PutUint32(msg[1:], usec)
	if err := r.send(msg); err != nil {
		log.Printf("[serialdev] rx timeout: %v", err)
	}
}

func (r *Radio) startOp(cmd byte) error {
	// Drain a stale ack left by a lost exchange.
	select {
	case <-r.started:
	default:
	}
	if err := r.send([]byte{cmd}); err != nil {
		return err
	}
	select {
	case ok := <-r.started:
		if !ok {
			return ErrStartFailed
		}
		return nil
	case <-time.After(r.cfg.AckTimeout):
		return ErrStartTimeout
	case <-r.quit:
		return ErrClosed
	}
}

// StartTx implements radio.Transceiver.
func (r *Radio) StartTx() error { return r.startOp(cmdStartTx) }

// StartRx implements radio.Transceiver.
func (r *Radio) StartRx() error { return r.startOp(cmdStartRx) }

// FrameDuration implements radio.Transceiver.
func (r *Radio) FrameDuration(length int) uint32 {
	return r.cfg.PreambleUS + uint32(length)*8*1000/r.cfg.BitRateKbps
}

// PreambleDuration implements radio.Transceiver.
func (r *Radio) PreambleDuration() uint32 { return r.cfg.PreambleUS }

// RequestDelayStart implements nrng.Ranger: the module firmware runs
// the multi-node exchange and streams per-peer distances back.
func (r *Radio) RequestDelayStart(dst uint16, dxTime uint64, mask protocol.NodeMask) error {
	r.rmu.Lock()
	r.rngMask = 0
	for k := range r.rngDists {
		delete(r.rngDists, k)
	}
	done := make(chan struct{})
	r.rngDone = done
	r.rmu.Unlock()

	msg := make([]byte, 15)
	msg[0] = cmdNrngRequest
	binary.LittleEndian.PutUint16(msg[1:], dst)
	binary.LittleEndian.PutUint64(msg[3:], dxTime)
	binary.LittleEndian.PutUint32(msg[11:], uint32(mask))
	if err := r.send(msg); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-time.After(r.exchangeTimeout(mask.Count())):
		return ErrStartTimeout
	case <-r.quit:
		return ErrClosed
	}
}

// Listen implements nrng.Ranger.
func (r *Radio) Listen(dxTime uint64, timeoutUS uint32) error {
	r.rmu.Lock()
	done := make(chan struct{})
	r.rngDone = done
	r.rmu.Unlock()

	msg := make([]byte, 13)
	msg[0] = cmdNrngListen
	binary.LittleEndian.PutUint64(msg[1:], dxTime)
	binary.LittleEndian.PutUint32(msg[9:], timeoutUS)
	if err := r.send(msg); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-time.After(time.Duration(timeoutUS)*time.Microsecond + r.cfg.AckTimeout):
		return ErrStartTimeout
	case <-r.quit:
		return ErrClosed
	}
}

// Ranges implements nrng.Ranger.
func (r *Radio) Ranges(nnodes uint16) (protocol.NodeMask, []float32) {
	r.rmu.Lock()
	defer r.rmu.Unlock()

	mask := r.rngMask & protocol.AllNodes(int(nnodes))
	dists := make([]float32, 0, mask.Count())
	mask.ForEach(func(slot, ord int) {
		dists = append(dists, r.rngDists[slot])
	})
	return mask, dists
}

// exchangeTimeout bounds a full multi-node exchange: one request plus
// one response slot per peer, with link slack.
func (r *Radio) exchangeTimeout(npeers int) time.Duration {
	onAir := time.Duration(r.FrameDuration(nrng.RequestFrameSize)) * time.Microsecond
	return time.Duration(npeers+1)*onAir + r.cfg.AckTimeout
}

func (r *Radio) readLoop() {
	defer close(r.done)
	var dec slipDecoder
	buf := make([]byte, 256)

	for {
		n, err := r.port.Read(buf)
		if err != nil {
			select {
			case <-r.quit:
			default:
				log.Printf("[serialdev] read: %v", err)
			}
			return
		}
		for _, b := range buf[:n] {
			if msg, ok := dec.feed(b); ok {
				r.dispatch(msg)
			}
		}
	}
}

func (r *Radio) dispatch(msg []byte) {
	if len(msg) == 0 {
		return
	}
	payload := msg[1:]

	switch msg[0] {
	case evRxFrame:
		if r.dev != nil {
			r.dev.InjectRxComplete(append([]byte(nil), payload...))
		}
	case evTxDone:
		if r.dev != nil {
			r.dev.InjectTxComplete()
		}
	case evRxTimeout:
		if r.dev != nil {
			r.dev.InjectRxTimeout()
		}
	case evReset:
		if r.dev != nil {
			r.dev.InjectReset()
		}
	case evStarted:
		ok := len(payload) >= 1 && payload[0] == 1
		select {
		case r.started <- ok:
		default:
		}
	case evRange:
		if len(payload) < 6 {
			return
		}
		slot := int(binary.LittleEndian.Uint16(payload))
		dist := math.Float32frombits(binary.LittleEndian.Uint32(payload[2:]))
		r.rmu.Lock()
		r.rngMask.Set(slot)
		r.rngDists[slot] = dist
		r.rmu.Unlock()
	case evRngDone:
		r.rmu.Lock()
		if len(payload) >= 4 {
			r.rngMask = protocol.NodeMask(binary.LittleEndian.Uint32(payload))
		}
		done := r.rngDone
		r.rngDone = nil
		r.rmu.Unlock()
		if done != nil {
			close(done)
		}
	case evLog:
		log.Printf("[module] %s", payload)
	}
}
