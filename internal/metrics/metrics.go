// Package metrics defines pimc's and mclst's prometheus counters/gauges,
// grounded on internal/bgp/metrics.go's promauto-registered metric-set
// shape, and serves them the way cmd/doublezerod/main.go does: only when
// --metrics-addr is set, on its own listener with a "/metrics" handle.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PIMHelloSent counts Hello packets transmitted by pimc.
	PIMHelloSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pimc_hello_sent_total",
		Help: "Total number of PIM Hello packets sent",
	})

	// PIMJoinPruneSent counts Join/Prune packets transmitted by pimc.
	PIMJoinPruneSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pimc_joinprune_sent_total",
		Help: "Total number of PIM Join/Prune packets sent",
	})

	// PIMSendErrors counts transmit failures on the raw PIM socket.
	PIMSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pimc_send_errors_total",
		Help: "Total number of PIM packet send failures",
	})

	// MclstPacketsReceived counts datagrams mclst classified AcceptedShow.
	MclstPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mclst_packets_received_total",
		Help: "Total number of datagrams received and accepted per flow",
	}, []string{"source", "dport"})

	// MclstBytesReceived counts UDP payload bytes per flow; unlike
	// FlowStats, it does not add the per-packet framing overhead.
	MclstBytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mclst_bytes_received_total",
		Help: "Total number of UDP payload bytes received per flow",
	}, []string{"source", "dport"})

	// MclstTimeouts counts keep-alive timeout events reported by the Timer.
	MclstTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mclst_timeouts_total",
		Help: "Total number of receive keep-alive timeouts",
	})
)

// Serve starts the prometheus HTTP endpoint on addr and returns once the
// listener is ready; it shuts the server down when ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	go func() {
		srv.Serve(listener)
	}()

	return nil
}
