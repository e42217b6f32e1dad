// surveyd runs the site survey on a host with a serial-attached UWB
// module: soft TDMA scheduling, the survey session, and an HTTP surface
// exposing the live range matrix and prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uwbsurvey/radio"
	"uwbsurvey/radio/serialdev"
	"uwbsurvey/survey"
	"uwbsurvey/tdma"
)

var (
	device    = flag.String("device", "/dev/ttyACM0", "Serial device of the UWB module")
	baud      = flag.Int("baud", 115200, "Serial baud rate")
	nodes     = flag.Uint("nodes", 4, "Number of nodes in the survey")
	slot      = flag.Uint("slot", 0, "This node's TDMA slot id")
	addr      = flag.Uint("address", 0x1000, "16-bit short address")
	cell      = flag.Uint("cell", 1, "Cell identity")
	nslots    = flag.Uint("nslots", 16, "Slots per superframe")
	rngSlot   = flag.Uint("rng-slot", 1, "Superframe slot of the acquisition phase")
	bcastSlot = flag.Uint("bcast-slot", 2, "Superframe slot of the aggregation phase")
	period    = flag.Duration("period", 250*time.Millisecond, "Superframe period")
	listen    = flag.String("listen", ":8080", "HTTP listen address")
)

func main() {
	flag.Parse()

	link, err := serialdev.Open(serialdev.Config{
		Device:      *device,
		Baud:        *baud,
		PreambleUS:  128,
		BitRateKbps: 6800,
		AckTimeout:  250 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("open %s: %v", *device, err)
	}
	defer link.Close()

	dev := radio.NewDevice(link, radio.Config{
		ShortAddress: uint16(*addr),
		CellID:       uint16(*cell),
		SlotID:       uint16(*slot),
	})
	if err := link.Bind(dev); err != nil {
		log.Fatalf("bind module: %v", err)
	}

	reg := prometheus.NewRegistry()
	sess := survey.NewSession(dev, uint16(*nodes), survey.Options{
		Ranger:     link,
		Registerer: reg,
		OnComplete: logReport,
	})
	defer sess.Close()

	sched := tdma.NewScheduler(*period, uint16(*nslots))
	sched.AssignSlot(uint16(*rngSlot), sess.RangeSlot)
	sched.AssignSlot(uint16(*bcastSlot), sess.BroadcastSlot)
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/matrix", matrixHandler(sess))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: *listen, Handler: mux}

	go func() {
		log.Printf("surveyd: %d nodes, slot %d, serving on %s", *nodes, *slot, *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func logReport(r survey.Report) {
	b, err := r.Encode()
	if err != nil {
		log.Printf("encode report: %v", err)
		return
	}
	log.Printf("survey complete: %s", b)
}

func matrixHandler(sess *survey.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := struct {
			Nodes    uint16       `json:"nodes"`
			Complete bool         `json:"complete"`
			Rows     []survey.Row `json:"rows"`
		}{
			Nodes:    sess.NumNodes(),
			Complete: sess.Complete(),
			Rows:     sess.Matrix(),
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("encode matrix: %v", err)
		}
	}
}
