// Command bullet reads telemetry from an Aillio Bullet R1 roaster and drives its
// modes and actuators.
//
// Usage:
//
//	bullet [flags]
//
// Without -i or -watch a single sample is printed. A configured bridge port
// implies -watch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/gobullet/pkg/bridge"
	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/roaster"
	"github.com/itohio/gobullet/pkg/sample"
	"github.com/itohio/gobullet/pkg/trace"
	"github.com/itohio/gobullet/pkg/transfer"
	"github.com/itohio/gobullet/pkg/usb"
)

func main() {
	var (
		configFlag      = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag        = flag.Bool("mock", false, "Use the simulated roaster instead of USB")
		interactiveFlag = flag.Bool("i", false, "Interactive console")
		watchFlag       = flag.Bool("watch", false, "Stream telemetry until interrupted")
		traceFlag       = flag.String("trace", "", "Write a CBOR transfer trace to this file (overrides config)")
		dumpFlag        = flag.String("dump", "", "Print the events of a trace file and exit")
		labelFlag       = flag.String("label", "", "Only dump events with this transfer label")
		bridgeFlag      = flag.String("bridge", "", "Serve TC4 on this serial port (overrides config)")
		unitsFlag       = flag.String("units", "", "Temperature units, C or F (overrides config)")
		portsFlag       = flag.Bool("ports", false, "List serial ports and exit")
		verboseFlag     = flag.Bool("v", false, "Debug logging, including every transfer")
	)
	flag.Parse()

	if *portsFlag {
		if err := listPorts(os.Stdout); err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		return
	}

	if *dumpFlag != "" {
		if err := dumpTrace(os.Stdout, *dumpFlag, *labelFlag); err != nil {
			log.Fatalf("Failed to dump trace: %v", err)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *traceFlag != "" {
		cfg.Trace.File = *traceFlag
	}
	if *bridgeFlag != "" {
		cfg.Bridge.Port = *bridgeFlag
	}
	if *unitsFlag != "" {
		cfg.Bridge.Units = *unitsFlag
	}
	if *verboseFlag {
		cfg.Log.Level = "debug"
	}

	unit, err := sample.ParseUnit(cfg.Bridge.Units)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	tracer, closeTrace, err := openTracer(cfg, logger, *verboseFlag)
	if err != nil {
		log.Fatalf("Failed to open trace: %v", err)
	}
	defer closeTrace()

	transport, err := openTransport(cfg, logger, *mockFlag)
	if err != nil {
		if errors.Is(err, usb.ErrDeviceNotFound) {
			log.Fatalf("%v; is the roaster plugged in and switched on?", err)
		}
		log.Fatalf("Failed to open roaster: %v", err)
	}

	session := roaster.New(transport, cfg, logger, tracer)
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("failed to close session", "error", err)
		}
	}()
	logger.Debug("session", "id", session.SessionID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to read roaster", "error", err)
		return
	}

	if cfg.Bridge.Port != "" {
		b := bridge.New(cfg.Bridge.Port, cfg.Bridge.BaudRate, unit, session.Latest, logger)
		if err := b.Connect(); err != nil {
			logger.Error("failed to start bridge", "error", err)
			return
		}
		defer b.Close()
	}

	switch {
	case *interactiveFlag:
		c, err := newConsole(session, cfg, unit, logger)
		if err != nil {
			logger.Error("failed to start console", "error", err)
			return
		}
		c.Run(ctx, stop)

	case *watchFlag || cfg.Bridge.Port != "":
		if err := watch(ctx, session, unit, os.Stdout, logger); err != nil {
			logger.Error("watch stopped", "error", err)
		}

	default:
		fmt.Println(sample.FromSnapshot(session.Latest(), unit))
	}
}

// openTransport returns the simulated roaster or the USB device.
func openTransport(cfg *config.Config, logger *slog.Logger, mock bool) (transfer.Transport, error) {
	if mock {
		logger.Info("using simulated roaster")
		return roaster.NewMock(&cfg.Mock), nil
	}
	return usb.Open(cfg.Device, logger)
}

// openTracer combines the file trace and, when verbose, a debug log of every
// transfer.
func openTracer(cfg *config.Config, logger *slog.Logger, verbose bool) (trace.Logger, func(), error) {
	var (
		loggers []trace.Logger
		closers []io.Closer
	)

	if cfg.Trace.File != "" {
		fl, err := trace.NewFileLogger(cfg.Trace.File)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closers = append(closers, fl)
		logger.Info("tracing transfers", "file", cfg.Trace.File)
	}
	if verbose {
		loggers = append(loggers, trace.NewSlogAdapter(logger))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close trace", "error", err)
			}
		}
	}
	return trace.NewMultiLogger(loggers...), closeAll, nil
}

func listPorts(w io.Writer) error {
	ports, err := bridge.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p.Description)
	}
	return nil
}

func dumpTrace(w io.Writer, path, label string) error {
	r, err := trace.NewReader(path, label)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s #%-5d %-8s %-3s ep=%d %-13s len=%-2d %-9s % x\n",
			ev.Timestamp.Format("15:04:05.000000"), ev.SessionID[:min(8, len(ev.SessionID))],
			ev.TransferID, ev.Kind, ev.Direction, ev.Endpoint, ev.Label, ev.Length, ev.Status, ev.Data)
	}
}
