package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Size is the length of every telemetry reply read from the roaster.
	Size = 64
	// Canary marks a complete Stats frame. Any other value means the roaster has
	// nothing more to report for this poll.
	Canary uint32 = 2868903935
)

// Stats frame offsets.
const (
	offBeanTemperature  = 0
	offRateOfRise       = 4
	offDrumTemperature  = 8
	offFanSpeedLevel    = 26
	offHeaterPowerLevel = 27
	offDrumSpeedLevel   = 28
	offIndex            = 30
	offCanary           = 60
)

// Status frame offsets.
const (
	offEnergy             = 0
	offPreheatTemperature = 40
	offMode               = 42
)

// ErrMalformed is returned when a buffer of the wrong length reaches the codec.
var ErrMalformed = errors.New("malformed frame")

// Stats is the decoded temperature and actuator telemetry frame.
type Stats struct {
	BeanTemperature  float32 // °C
	RateOfRise       float32 // °C/min
	DrumTemperature  float32 // °C
	FanSpeedLevel    uint8
	HeaterPowerLevel uint8
	DrumSpeedLevel   uint8
	Index            uint16 // Sequence number assigned by the roaster
	Canary           uint32
}

// Valid reports whether the frame carries the completion canary.
func (s Stats) Valid() bool {
	return s.Canary == Canary
}

// Status is the decoded operating status frame.
type Status struct {
	Energy             float32
	PreheatTemperature uint8
	Mode               Mode
}

// UnknownStats returns the placeholder used before the first valid Stats frame.
func UnknownStats() Stats {
	return Stats{
		BeanTemperature: -1,
		RateOfRise:      -1,
		DrumTemperature: -1,
	}
}

// UnknownStatus returns the placeholder used before the first Status frame.
func UnknownStatus() Status {
	return Status{
		Energy: -1,
		Mode:   ModeUnknown,
	}
}

// DecodeStats decodes a 64 byte Stats reply. A frame with a mismatching canary is
// returned without error; callers check Valid.
func DecodeStats(b []byte) (Stats, error) {
	if len(b) != Size {
		return Stats{}, fmt.Errorf("%w: stats frame is %d bytes, want %d", ErrMalformed, len(b), Size)
	}

	return Stats{
		BeanTemperature:  float32le(b[offBeanTemperature:]),
		RateOfRise:       float32le(b[offRateOfRise:]),
		DrumTemperature:  float32le(b[offDrumTemperature:]),
		FanSpeedLevel:    b[offFanSpeedLevel],
		HeaterPowerLevel: b[offHeaterPowerLevel],
		DrumSpeedLevel:   b[offDrumSpeedLevel],
		Index:            binary.LittleEndian.Uint16(b[offIndex:]),
		Canary:           binary.LittleEndian.Uint32(b[offCanary:]),
	}, nil
}

// DecodeStatus decodes a 64 byte Status reply.
func DecodeStatus(b []byte) (Status, error) {
	if len(b) != Size {
		return Status{}, fmt.Errorf("%w: status frame is %d bytes, want %d", ErrMalformed, len(b), Size)
	}

	return Status{
		Energy:             float32le(b[offEnergy:]),
		PreheatTemperature: b[offPreheatTemperature],
		Mode:               Mode(b[offMode]),
	}, nil
}

// EncodeStats lays out s at the wire offsets. Reserved bytes are zero.
func EncodeStats(s Stats) []byte {
	b := make([]byte, Size)
	putFloat32le(b[offBeanTemperature:], s.BeanTemperature)
	putFloat32le(b[offRateOfRise:], s.RateOfRise)
	putFloat32le(b[offDrumTemperature:], s.DrumTemperature)
	b[offFanSpeedLevel] = s.FanSpeedLevel
	b[offHeaterPowerLevel] = s.HeaterPowerLevel
	b[offDrumSpeedLevel] = s.DrumSpeedLevel
	binary.LittleEndian.PutUint16(b[offIndex:], s.Index)
	binary.LittleEndian.PutUint32(b[offCanary:], s.Canary)
	return b
}

// EncodeStatus lays out s at the wire offsets. Reserved bytes are zero and the
// mode is truncated to its 8-bit wire code.
func EncodeStatus(s Status) []byte {
	b := make([]byte, Size)
	putFloat32le(b[offEnergy:], s.Energy)
	b[offPreheatTemperature] = s.PreheatTemperature
	b[offMode] = uint8(s.Mode)
	return b
}

// Fahrenheit converts a Celsius temperature.
func Fahrenheit(celsius float32) float32 {
	return celsius*9/5 + 32
}

func float32le(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putFloat32le(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
