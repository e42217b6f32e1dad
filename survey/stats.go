package survey

import "github.com/prometheus/client_golang/prometheus"

// Stats counts survey protocol events. One instance per session,
// registered against the session's Registerer at creation and kept
// across re-initialization.
type Stats struct {
	Request       prometheus.Counter
	Listen        prometheus.Counter
	RxUnsolicited prometheus.Counter
	StartTxError  prometheus.Counter
	StartRxError  prometheus.Counter
	Broadcaster   prometheus.Counter
	Receiver      prometheus.Counter
	RxTimeout     prometheus.Counter
	Reset         prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "survey",
		Name:      name,
		Help:      help,
	})
}

func newStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		Request:       newCounter("request_total", "Ranging requests issued as surveyor"),
		Listen:        newCounter("listen_total", "Ranging listen windows as peer"),
		RxUnsolicited: newCounter("rx_unsolicited_total", "Frames received with no operation outstanding"),
		StartTxError:  newCounter("start_tx_error_total", "Failed delayed transmit starts"),
		StartRxError:  newCounter("start_rx_error_total", "Failed receive starts"),
		Broadcaster:   newCounter("broadcast_total", "Row broadcasts attempted as surveyor"),
		Receiver:      newCounter("receive_total", "Row receive windows as peer"),
		RxTimeout:     newCounter("rx_timeout_total", "Receive timeouts while waiting for a row"),
		Reset:         newCounter("reset_total", "Device resets releasing an outstanding operation"),
	}
	reg.MustRegister(
		s.Request, s.Listen, s.RxUnsolicited,
		s.StartTxError, s.StartRxError,
		s.Broadcaster, s.Receiver, s.RxTimeout, s.Reset,
	)
	return s
}
