// Package usb opens the roaster on the USB bus and runs bulk transfers for the
// exchange engine.
package usb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/transfer"
)

var (
	// ErrDeviceNotFound is returned when no device matches the configured VID:PID.
	ErrDeviceNotFound = errors.New("roaster not found")
	// ErrClosed is returned by Submit and Wait after Close.
	ErrClosed = errors.New("usb device closed")
)

// completionBuffer bounds how many finished transfers may wait for the pump.
const completionBuffer = 16

// Device is a claimed roaster interface with its two bulk endpoints.
//
// Every submitted transfer runs on its own goroutine. Completions are only handed
// out through Wait, so completion handlers run on the goroutine that pumps.
type Device struct {
	log *slog.Logger

	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	timeout     time.Duration
	completions chan *transfer.Transfer

	run    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Ensure Device implements transfer.Transport.
var _ transfer.Transport = (*Device)(nil)

// Open finds the roaster, detaches any kernel driver and claims the configured
// interface and endpoints.
func Open(c config.DeviceConfig, log *slog.Logger) (*Device, error) {
	if log == nil {
		log = slog.Default()
	}

	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(c.VendorID), gousb.ID(c.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to open %04x:%04x: %w", c.VendorID, c.ProductID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w (VID=0x%04X PID=0x%04X)", ErrDeviceNotFound, c.VendorID, c.ProductID)
	}

	fail := func(format string, err error, closers ...func()) (*Device, error) {
		for _, closeFn := range closers {
			closeFn()
		}
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf(format, err)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		return fail("failed to detach kernel driver: %w", err)
	}

	num, err := dev.ActiveConfigNum()
	if err != nil {
		return fail("failed to get active config: %w", err)
	}
	cfg, err := dev.Config(num)
	if err != nil {
		return fail("failed to get config: %w", err)
	}

	intf, err := cfg.Interface(c.Interface, 0)
	if err != nil {
		return fail("failed to claim interface: %w", err, func() { cfg.Close() })
	}
	done := func() {
		intf.Close()
		cfg.Close()
	}

	in, err := intf.InEndpoint(int(c.InEndpoint))
	if err != nil {
		return fail("failed to open bulk in endpoint: %w", err, done)
	}
	out, err := intf.OutEndpoint(int(c.OutEndpoint))
	if err != nil {
		return fail("failed to open bulk out endpoint: %w", err, done)
	}

	log.Info("roaster opened", "vid", fmt.Sprintf("%04x", c.VendorID), "pid", fmt.Sprintf("%04x", c.ProductID), "config", num, "interface", c.Interface)

	run, cancel := context.WithCancel(context.Background())
	return &Device{
		log:         log,
		ctx:         ctx,
		dev:         dev,
		cfg:         cfg,
		intf:        intf,
		in:          in,
		out:         out,
		timeout:     c.TransferTimeout,
		completions: make(chan *transfer.Transfer, completionBuffer),
		run:         run,
		cancel:      cancel,
	}, nil
}

// Submit starts t in the background and returns immediately.
func (d *Device) Submit(t *transfer.Transfer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.wg.Add(1)
	go d.execute(t)
	return nil
}

// Wait returns the next finished transfer.
func (d *Device) Wait(ctx context.Context) (*transfer.Transfer, error) {
	select {
	case t := <-d.completions:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.run.Done():
		return nil, ErrClosed
	}
}

// Close cancels in-flight transfers and releases the interface, device and
// libusb context.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()

	d.intf.Close()
	return errors.Join(d.cfg.Close(), d.dev.Close(), d.ctx.Close())
}

func (d *Device) execute(t *transfer.Transfer) {
	defer d.wg.Done()

	ctx := d.run
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var (
		n   int
		err error
	)
	switch t.Direction {
	case transfer.Out:
		n, err = d.out.WriteContext(ctx, t.Buffer)
	case transfer.In:
		n, err = d.in.ReadContext(ctx, t.Buffer)
	default:
		err = fmt.Errorf("unknown direction %d", t.Direction)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}

	t.Actual = n
	t.Status = statusOf(err)
	if err != nil {
		d.log.Debug("bulk transfer failed", "label", t.Label, "status", t.Status, "error", err)
	}

	select {
	case d.completions <- t:
	case <-d.run.Done():
	}
}

// statusOf maps a gousb or context error onto the transfer status taxonomy.
func statusOf(err error) transfer.Status {
	if err == nil {
		return transfer.StatusCompleted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transfer.StatusTimedOut
	}
	if errors.Is(err, context.Canceled) {
		return transfer.StatusCancelled
	}

	var ts gousb.TransferStatus
	if errors.As(err, &ts) {
		switch ts {
		case gousb.TransferCompleted:
			return transfer.StatusCompleted
		case gousb.TransferTimedOut:
			return transfer.StatusTimedOut
		case gousb.TransferCancelled:
			return transfer.StatusCancelled
		case gousb.TransferStall:
			return transfer.StatusStalled
		case gousb.TransferNoDevice:
			return transfer.StatusNoDevice
		case gousb.TransferOverflow:
			return transfer.StatusOverflow
		default:
			return transfer.StatusError
		}
	}

	var ue gousb.Error
	if errors.As(err, &ue) {
		switch ue {
		case gousb.ErrorTimeout:
			return transfer.StatusTimedOut
		case gousb.ErrorInterrupted:
			return transfer.StatusCancelled
		case gousb.ErrorPipe:
			return transfer.StatusStalled
		case gousb.ErrorNoDevice:
			return transfer.StatusNoDevice
		case gousb.ErrorOverflow:
			return transfer.StatusOverflow
		}
	}
	return transfer.StatusError
}
