// Package sample turns roaster telemetry into display readings.
package sample

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/roaster"
)

// Unit is a temperature scale.
type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

// ErrInvalidUnit is returned by ParseUnit for anything but C or F.
var ErrInvalidUnit = errors.New("invalid temperature unit")

// ParseUnit accepts "C", "F" and their long names in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CELSIUS":
		return Celsius, nil
	case "F", "FAHRENHEIT":
		return Fahrenheit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
}

// Reading represents one telemetry snapshot in display units.
type Reading struct {
	Timestamp  time.Time
	Unit       Unit
	Known      bool    // Telemetry has been received
	Bean       float32 // Bean temperature
	Drum       float32 // Drum temperature
	RateOfRise float32 // Bean temperature change per minute
	Preheat    float32 // Preheat target temperature
	Fan        int
	Heater     int
	DrumLevel  int
	Mode       frame.Mode
	Energy     float32
	Index      uint16
}

// Convert builds a Reading from decoded frames. Temperatures are rounded to a
// tenth of a degree; values that are not finite become 0.
func Convert(stats frame.Stats, status frame.Status, unit Unit, at time.Time) Reading {
	if unit != Fahrenheit {
		unit = Celsius
	}

	return Reading{
		Timestamp:  at,
		Unit:       unit,
		Known:      true,
		Bean:       temperature(stats.BeanTemperature, unit),
		Drum:       temperature(stats.DrumTemperature, unit),
		RateOfRise: rate(stats.RateOfRise, unit),
		Preheat:    temperature(float32(status.PreheatTemperature), unit),
		Fan:        int(stats.FanSpeedLevel),
		Heater:     int(stats.HeaterPowerLevel),
		DrumLevel:  int(stats.DrumSpeedLevel),
		Mode:       status.Mode,
		Energy:     finite(status.Energy),
		Index:      stats.Index,
	}
}

// FromSnapshot converts the session cache. Before the first Stats frame the
// reading is zero valued with Known unset.
func FromSnapshot(snap roaster.Snapshot, unit Unit) Reading {
	if !snap.StatsKnown {
		if unit != Fahrenheit {
			unit = Celsius
		}
		return Reading{Timestamp: snap.UpdatedAt, Unit: unit, Mode: snap.Status.Mode}
	}
	return Convert(snap.Stats, snap.Status, unit, snap.UpdatedAt)
}

// String formats the reading for a terminal line.
func (r Reading) String() string {
	if !r.Known {
		return fmt.Sprintf("%s no telemetry yet (mode %s)", r.Timestamp.Format(time.TimeOnly), r.Mode)
	}
	return fmt.Sprintf("%s #%d %-10s BT %6.1f°%s ET %6.1f°%s RoR %6.1f  fan %2d heater %d drum %d",
		r.Timestamp.Format(time.TimeOnly), r.Index, r.Mode,
		r.Bean, r.Unit, r.Drum, r.Unit, r.RateOfRise,
		r.Fan, r.Heater, r.DrumLevel)
}

// Converter is a function type that converts a Snapshot channel to a Reading channel.
type Converter func(in <-chan roaster.Snapshot) <-chan Reading

// NewConverter creates a converter function that turns snapshots into readings
// in unit. Readings are dropped when the consumer falls a second behind.
func NewConverter(unit Unit, bufSize int, log *slog.Logger) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}
	if log == nil {
		log = slog.Default()
	}

	return func(in <-chan roaster.Snapshot) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			for snap := range in {
				select {
				case out <- FromSnapshot(snap, unit):
				case <-time.After(time.Second):
					log.Warn("converter output channel full, dropping reading")
				}
			}
		}()

		return out
	}
}

func temperature(celsius float32, unit Unit) float32 {
	if unit == Fahrenheit {
		celsius = frame.Fahrenheit(celsius)
	}
	return round(finite(celsius))
}

// rate scales a per-minute temperature change. Offsets cancel out for rates.
func rate(celsius float32, unit Unit) float32 {
	if unit == Fahrenheit {
		celsius = celsius * 9 / 5
	}
	return round(finite(celsius))
}

func finite(v float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0
	}
	return v
}

// round rounds to the nearest tenth, halves up.
func round(v float32) float32 {
	return math32.Floor(v*10+0.5) / 10
}
