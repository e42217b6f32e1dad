// Package survey implements automatic site survey over a TDMA
// superframe: each cycle one node (the surveyor, chosen by the shared
// cycle counter) ranges against every peer, then floods its completed
// row of distances to the network. Over nnodes consecutive cycles every
// node accumulates the full nnodes x nnodes range matrix.
package survey

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"uwbsurvey/nrng"
	"uwbsurvey/protocol"
	"uwbsurvey/radio"
)

// Config holds the tunable parts of a session.
type Config struct {
	// RxTimeoutDelay is added, in microseconds, to every receive
	// timeout derived from a frame duration.
	RxTimeoutDelay uint32

	// CycleSeqShift right-shifts the shared cycle index before it is
	// used as the broadcast sequence number, letting deployments run
	// the survey every 2^shift cycles.
	CycleSeqShift uint

	// TxTimerMask and RxTimerMask truncate computed start times to
	// the radio delayed-start timer granularity. The defaults match
	// the transceiver's 40-bit timer with 512-tick resolution.
	TxTimerMask uint64
	RxTimerMask uint64
}

// DefaultConfig returns the configuration used when Options.Config is
// left zero.
func DefaultConfig() Config {
	return Config{
		RxTimeoutDelay: 512,
		TxTimerMask:    0xFFFFFFFFFE00,
		RxTimerMask:    0xFFFFFFFE00,
	}
}

// Status reflects the outcome of the session's most recent phase.
type Status struct {
	Initialized  bool
	Empty        bool
	StartTxError bool
	StartRxError bool
}

// Row is one line of the range matrix: which peers answered and the
// distance to each, ordered by ascending set bit.
type Row struct {
	Mask   protocol.NodeMask
	Ranges []float32
}

// Options configures session construction.
type Options struct {
	// Config overrides DefaultConfig when any field is non-zero.
	Config *Config
	// Ranger is the multi-node ranging service. Required on first
	// initialization.
	Ranger nrng.Ranger
	// Registerer receives the session's telemetry counters. Defaults
	// to a fresh private registry.
	Registerer prometheus.Registerer
	// OnComplete, when set, is invoked (on its own goroutine) with a
	// matrix report after the last cycle of each full survey round.
	OnComplete func(Report)
}

// Session is the per-device survey state: the range matrix rows, the
// reusable broadcast frame buffer, and the completion interlock shared
// by the aggregation phase and the radio callbacks.
type Session struct {
	dev    *radio.Device
	ranger nrng.Ranger
	nnodes uint16

	cfg        Config
	stats      *Stats
	reg        prometheus.Registerer
	onComplete func(Report)

	sem    *interlock
	seqNum uint32 // atomic; snapshot of the cycle sequence

	rowMu sync.Mutex
	rows  []Row

	frame []byte // reusable broadcast encode buffer

	statusMu sync.Mutex
	status   Status
}

var (
	sessionsMu sync.Mutex
	sessions   = make(map[*radio.Device]*Session)
)

// NewSession creates the survey session for dev, or re-initializes the
// existing one. Re-initialization re-applies configuration and
// re-registers the radio callbacks idempotently; calling it with a
// different nnodes is a contract violation and panics, as does an
// nnodes beyond the node mask width.
func NewSession(dev *radio.Device, nnodes uint16, opts Options) *Session {
	if nnodes == 0 || int(nnodes) > protocol.MaxNodes {
		panic(fmt.Sprintf("survey: nnodes %d outside 1..%d", nnodes, protocol.MaxNodes))
	}

	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	s, ok := sessions[dev]
	if !ok {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		if opts.Ranger == nil {
			panic("survey: Options.Ranger required on first initialization")
		}
		s = &Session{
			dev:    dev,
			ranger: opts.Ranger,
			nnodes: nnodes,
			reg:    reg,
			stats:  newStats(reg),
			sem:    newInterlock(),
			rows:   make([]Row, nnodes),
			frame:  make([]byte, protocol.FrameSize(int(nnodes))),
		}
		for i := range s.rows {
			s.rows[i].Ranges = make([]float32, 0, nnodes)
		}
		sessions[dev] = s
	} else if s.nnodes != nnodes {
		panic(fmt.Sprintf("survey: session on device already initialized with nnodes=%d, got %d", s.nnodes, nnodes))
	}

	if opts.Config != nil {
		s.cfg = *opts.Config
	} else {
		s.cfg = DefaultConfig()
	}
	if opts.Ranger != nil {
		s.ranger = opts.Ranger
	}
	if opts.OnComplete != nil {
		s.onComplete = opts.OnComplete
	}

	dev.AppendInterface(s.macInterface())

	s.statusMu.Lock()
	s.status.Initialized = true
	s.statusMu.Unlock()
	return s
}

// Close detaches the session from its device and forgets it. A later
// NewSession starts fresh.
func (s *Session) Close() {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	s.dev.RemoveInterface(radio.IDSurvey)
	s.statusMu.Lock()
	s.status.Initialized = false
	s.statusMu.Unlock()
	delete(sessions, s.dev)
}

// NumNodes returns the fixed survey size.
func (s *Session) NumNodes() uint16 { return s.nnodes }

// Status returns a copy of the last-operation outcome flags.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Stats exposes the session's telemetry counters.
func (s *Session) Stats() *Stats { return s.stats }

// Seq returns the cycle sequence snapshot of the current phase.
func (s *Session) Seq() uint32 {
	return atomic.LoadUint32(&s.seqNum)
}

func (s *Session) setSeq(v uint32) {
	atomic.StoreUint32(&s.seqNum, v)
}

// Row returns a copy of matrix row i.
func (s *Session) Row(i uint16) Row {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	if int(i) >= len(s.rows) {
		return Row{}
	}
	return copyRow(s.rows[i])
}

// Matrix returns a copy of all rows, indexed by slot id.
func (s *Session) Matrix() []Row {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	out := make([]Row, len(s.rows))
	for i := range s.rows {
		out[i] = copyRow(s.rows[i])
	}
	return out
}

// Complete reports whether every row carries a distance to every other
// node, i.e. the survey round filled the whole matrix.
func (s *Session) Complete() bool {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	for i := range s.rows {
		if s.rows[i].Mask.Count() != int(s.nnodes)-1 {
			return false
		}
	}
	return true
}

// setRow replaces row i under the row lock. The distances slice is
// copied into the row's preallocated storage.
func (s *Session) setRow(i uint16, mask protocol.NodeMask, dists []float32) {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	r := &s.rows[i]
	r.Mask = mask
	r.Ranges = append(r.Ranges[:0], dists[:mask.Count()]...)
}

func copyRow(r Row) Row {
	out := Row{Mask: r.Mask, Ranges: make([]float32, len(r.Ranges))}
	copy(out.Ranges, r.Ranges)
	return out
}

func (s *Session) setEmpty(v bool) {
	s.statusMu.Lock()
	s.status.Empty = v
	s.statusMu.Unlock()
}

func (s *Session) setStartTxError(v bool) {
	s.statusMu.Lock()
	s.status.StartTxError = v
	s.statusMu.Unlock()
}

func (s *Session) setStartRxError(v bool) {
	s.statusMu.Lock()
	s.status.StartRxError = v
	s.statusMu.Unlock()
}
