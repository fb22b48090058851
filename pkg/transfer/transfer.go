// Package transfer implements the asynchronous bulk transfer exchange used to talk
// to the roaster: transfers are submitted without blocking and make progress only
// while the caller pumps the engine.
package transfer

import (
	"context"
	"fmt"

	"github.com/itohio/gobullet/pkg/trace"
)

// Direction is the data direction of a transfer relative to the host.
type Direction uint8

const (
	In Direction = iota
	Out
)

// String returns "IN" or "OUT".
func (d Direction) String() string {
	if d == In {
		return "IN"
	}
	return "OUT"
}

func (d Direction) trace() trace.Direction {
	if d == In {
		return trace.DirectionIn
	}
	return trace.DirectionOut
}

// Status is the completion status reported by the transport.
type Status uint8

const (
	StatusCompleted Status = iota
	StatusError
	StatusTimedOut
	StatusCancelled
	StatusStalled
	StatusNoDevice
	StatusOverflow
)

var statusNames = [...]string{
	StatusCompleted: "completed",
	StatusError:     "error",
	StatusTimedOut:  "timed out",
	StatusCancelled: "cancelled",
	StatusStalled:   "stalled",
	StatusNoDevice:  "no device",
	StatusOverflow:  "overflow",
}

// String returns the human readable status.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Handler is invoked on the pumping goroutine when a transfer completes
// successfully. Returning an error aborts the pump.
type Handler func(t *Transfer) error

// Transfer is a single outstanding bulk transfer.
type Transfer struct {
	ID        uint64
	Direction Direction
	Endpoint  uint8
	Label     string // Operation name used in diagnostics

	// Buffer holds the payload of a write, or receives the data of a read.
	Buffer []byte
	// Actual is the number of bytes the transport moved.
	Actual int
	// Status is set by the transport before the transfer is handed back by Wait.
	Status Status

	onComplete Handler
}

// Data returns the bytes actually transferred.
func (t *Transfer) Data() []byte {
	if t.Actual < 0 || t.Actual > len(t.Buffer) {
		return t.Buffer
	}
	return t.Buffer[:t.Actual]
}

// Transport executes transfers against a device.
type Transport interface {
	// Submit starts t asynchronously and returns without waiting for it.
	Submit(t *Transfer) error
	// Wait blocks until the next submitted transfer completes and returns it with
	// Status and Actual filled in.
	Wait(ctx context.Context) (*Transfer, error)
	// Close releases the device.
	Close() error
}

// TransferError reports a transfer that completed with a status other than
// StatusCompleted.
type TransferError struct {
	Label  string
	Status Status
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("usb transfer failed during %s: %s (%d)", e.Label, e.Status, uint8(e.Status))
}
