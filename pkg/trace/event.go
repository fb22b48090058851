package trace

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single captured transfer event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	Timestamp  time.Time `cbor:"1,keyasint"`
	SessionID  string    `cbor:"2,keyasint"`
	Kind       Kind      `cbor:"3,keyasint"`
	Direction  Direction `cbor:"4,keyasint"`
	Endpoint   uint8     `cbor:"5,keyasint"`
	TransferID uint64    `cbor:"6,keyasint"`
	Label      string    `cbor:"7,keyasint"`

	// Length is the payload size for writes and the requested size for reads.
	Length int `cbor:"8,keyasint"`

	// Data holds the written payload on submit and the received bytes on a read
	// completion.
	Data []byte `cbor:"9,keyasint,omitempty"`

	// Status is set on completion events.
	Status string `cbor:"10,keyasint,omitempty"`
}

// Kind tells submissions and completions apart.
type Kind uint8

const (
	KindSubmit   Kind = 0
	KindComplete Kind = 1
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSubmit:
		return "SUBMIT"
	case KindComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates the transfer direction relative to the host.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// NewSessionID returns a fresh identifier for tagging the events of one session.
func NewSessionID() string {
	return uuid.NewString()
}
