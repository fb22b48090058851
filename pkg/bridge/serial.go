// Package bridge serves roaster telemetry over a serial line using the TC4 text
// protocol, so roast loggers that speak TC4 can read bean and drum temperatures.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/itohio/gobullet/pkg/roaster"
	"github.com/itohio/gobullet/pkg/sample"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the TC4 default line speed.
const DefaultBaudRate = 115200

// Source returns the latest telemetry. It is called from the bridge goroutine.
type Source func() roaster.Snapshot

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.IsUSB {
				desc = fmt.Sprintf("%s (USB %s:%s %s)", d.Name, d.VID, d.PID, d.Product)
			}
			result = append(result, Port{Name: d.Name, Description: desc})
		}
		return result, nil
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial answers TC4 commands on a serial port.
type Serial struct {
	port     string
	baudRate int
	source   Source
	log      *slog.Logger

	mu        sync.RWMutex
	unit      sample.Unit
	conn      serial.Port
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// New creates a bridge for port. Readings are taken from source and reported in
// unit until the peer asks for another one.
func New(port string, baudRate int, unit sample.Unit, source Source, log *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if unit != sample.Fahrenheit {
		unit = sample.Celsius
	}
	if log == nil {
		log = slog.Default()
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		source:   source,
		log:      log,
		unit:     unit,
	}
}

// Unit returns the temperature unit currently reported.
func (b *Serial) Unit() sample.Unit {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unit
}

// Connect opens the serial port and starts answering commands.
func (b *Serial) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: b.baudRate,
	}

	port, err := serial.Open(b.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", b.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.conn = port
	b.cancel = cancel
	b.done = make(chan struct{})
	b.connected = true

	go func() {
		defer close(b.done)
		if err := b.Serve(ctx, port); err != nil {
			b.log.Warn("bridge stopped", "port", b.port, "error", err)
		}
	}()

	b.log.Info("bridge listening", "port", b.port, "baud", b.baudRate, "unit", b.unit)
	return nil
}

// Close closes the port and waits for the serving goroutine.
func (b *Serial) Close() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.cancel()
	err := b.conn.Close()
	done := b.done
	b.conn = nil
	b.connected = false
	b.mu.Unlock()

	<-done

	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected returns whether the bridge port is open.
func (b *Serial) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Serve reads commands line by line from rw and writes the replies until rw is
// exhausted or ctx is done.
func (b *Serial) Serve(ctx context.Context, rw io.ReadWriter) error {
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply := b.handle(line)
		if reply == "" {
			continue
		}
		if _, err := io.WriteString(rw, reply); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read command: %w", err)
	}
	return nil
}

// handle answers one TC4 command line. Unsupported commands get no reply.
func (b *Serial) handle(line string) string {
	name, args, _ := strings.Cut(line, ";")
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "READ":
		return b.read()

	case "UNITS":
		unit, err := sample.ParseUnit(args)
		if err != nil {
			b.log.Warn("bridge unit rejected", "args", args, "error", err)
			return ""
		}
		b.mu.Lock()
		b.unit = unit
		b.mu.Unlock()
		b.log.Debug("bridge unit", "unit", unit)
		return "#\n"

	case "CHAN", "FILT":
		return "#\n"

	default:
		b.log.Debug("bridge command ignored", "line", line)
		return ""
	}
}

// read formats ambient,ET,BT,heater,fan. The roaster has no ambient sensor.
func (b *Serial) read() string {
	var snap roaster.Snapshot
	if b.source != nil {
		snap = b.source()
	}
	r := sample.FromSnapshot(snap, b.Unit())
	return fmt.Sprintf("%.1f,%.1f,%.1f,%d,%d\n", 0.0, r.Drum, r.Bean, r.Heater, r.Fan)
}
