// Command pimc drives a single upstream PIM-SM v2 neighbor from a
// declarative YAML join/prune configuration, without running a full
// routing daemon (spec.md §1). Wiring follows the teacher's
// cmd/doublezerod/main.go: signal.NotifyContext for shutdown,
// a gated prometheus listener, and slog for structured logging.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pimclib/pimc-toolkit/internal/intf"
	"github.com/pimclib/pimc-toolkit/internal/logx"
	"github.com/pimclib/pimc-toolkit/internal/metrics"
	"github.com/pimclib/pimc-toolkit/internal/pimconfig"
	"github.com/pimclib/pimc-toolkit/internal/pktbuild"
	"github.com/pimclib/pimc-toolkit/internal/planner"
	"github.com/pimclib/pimc-toolkit/internal/sched"
	"github.com/pimclib/pimc-toolkit/internal/transport"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitRuntime exitCode = 1
	exitUsage   exitCode = 2
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) exitCode {
	var (
		verbose     bool
		noColors    bool
		metricsAddr string
	)

	ranE := false
	code := exitSuccess

	cmd := &cobra.Command{
		Use:           "pimc <config.yaml>",
		Short:         "Emit PIM-SM v2 Hello and Join/Prune messages from a declarative configuration",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			ranE = true
			c, err := runDaemon(posArgs[0], verbose, noColors, metricsAddr)
			code = c
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "raise console log level to debug")
	cmd.Flags().BoolVar(&noColors, "no-colors", false, "disable ANSI color in console log output")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (disabled if empty)")
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		if !ranE {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		fmt.Fprintln(os.Stderr, err)
		return code
	}
	return code
}

// runDaemon loads the configuration, opens the transport, and runs the
// scheduler loop until a termination signal arrives.
func runDaemon(configPath string, verbose, noColors bool, metricsAddr string) (exitCode, error) {
	doc, err := pimconfig.Load(configPath)
	if err != nil {
		return exitUsage, err
	}

	logger, closeLog, err := logx.New(logx.Options{
		Verbose: verbose || doc.Logging.Level <= pimconfig.LevelDebug,
		Prefix:  "pimc",
		Dir:     doc.Logging.Dir,
		NoColor: noColors,
	})
	if err != nil {
		return exitRuntime, err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if metricsAddr != "" {
		if err := metrics.Serve(ctx, metricsAddr); err != nil {
			return exitRuntime, fmt.Errorf("pimc: starting metrics server: %w", err)
		}
		logger.Info("prometheus metrics server started", "address", metricsAddr)
	}

	ifaces, err := intf.Load()
	if err != nil {
		return exitRuntime, fmt.Errorf("pimc: loading interface table: %w", err)
	}
	info, err := ifaces.Resolve(doc.PIMSM.IntfAddr.String())
	if err != nil {
		return exitRuntime, fmt.Errorf("pimc: resolving PIM-SM intfAddr %s: %w", doc.PIMSM.IntfAddr, err)
	}

	conn, err := transport.Open(info.Name)
	if err != nil {
		return exitRuntime, fmt.Errorf("pimc: opening transport on %s: %w", info.Name, err)
	}
	defer conn.Close()

	genID := rand.New(rand.NewSource(time.Now().UnixNano())).Uint32()

	updates := planner.BuildUpdates(doc.Multicast, doc.PIMSM)
	updatePkts, err := pktbuild.UpdatePackets(updates)
	if err != nil {
		return exitRuntime, fmt.Errorf("pimc: building Join/Prune packets: %w", err)
	}
	withdrawPkts, err := pktbuild.UpdatePackets(planner.InverseAll(updates))
	if err != nil {
		return exitRuntime, fmt.Errorf("pimc: building withdrawal packets: %w", err)
	}

	sendHello := func(now time.Time) error {
		pkt, err := pktbuild.HelloPacket(doc.PIMSM.HelloHoldtime, doc.PIMSM.DRPriority, genID)
		if err != nil {
			return err
		}
		if err := conn.Send(pkt); err != nil {
			metrics.PIMSendErrors.Inc()
			return err
		}
		metrics.PIMHelloSent.Inc()
		logger.Debug("sent Hello", "holdtime", doc.PIMSM.HelloHoldtime, "neighbor", doc.PIMSM.Neighbor)
		return nil
	}

	sendUpdates := func(now time.Time) error {
		for _, pkt := range updatePkts {
			if err := conn.Send(pkt); err != nil {
				metrics.PIMSendErrors.Inc()
				return err
			}
			metrics.PIMJoinPruneSent.Inc()
		}
		logger.Debug("sent Join/Prune updates", "count", len(updatePkts))
		return nil
	}

	goodbye := func() error {
		logger.Info("shutting down: withdrawing join/prune state")
		for _, pkt := range withdrawPkts {
			if err := conn.Send(pkt); err != nil {
				metrics.PIMSendErrors.Inc()
				return fmt.Errorf("pimc: sending withdrawal: %w", err)
			}
			metrics.PIMJoinPruneSent.Inc()
		}
		goodbyePkt, err := pktbuild.GoodbyeHello(doc.PIMSM.DRPriority, genID)
		if err != nil {
			return fmt.Errorf("pimc: building goodbye Hello: %w", err)
		}
		if err := conn.Send(goodbyePkt); err != nil {
			metrics.PIMSendErrors.Inc()
			return fmt.Errorf("pimc: sending goodbye Hello: %w", err)
		}
		metrics.PIMHelloSent.Inc()
		return nil
	}

	loop := sched.New([]sched.Emitter{
		&sched.HelloEmitter{Period: time.Duration(doc.PIMSM.HelloPeriod) * time.Second, Send: sendHello},
		&sched.JPUpdateEmitter{Period: time.Duration(doc.PIMSM.JPPeriod) * time.Second, Send: sendUpdates},
	}, goodbye)

	logger.Info("pimc started", "neighbor", doc.PIMSM.Neighbor, "interface", info.Name, "groups", len(doc.Multicast.Groups))
	loop.Start()

	<-ctx.Done()
	logger.Info("received shutdown signal")
	if err := loop.Stop(); err != nil {
		return exitRuntime, fmt.Errorf("pimc: %w", err)
	}
	return exitSuccess, nil
}
