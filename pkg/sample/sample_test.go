package sample

import (
	"math"
	"testing"
	"time"

	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/roaster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrames() (frame.Stats, frame.Status) {
	return frame.Stats{
			BeanTemperature:  180.04,
			RateOfRise:       10,
			DrumTemperature:  210.5,
			FanSpeedLevel:    5,
			HeaterPowerLevel: 7,
			DrumSpeedLevel:   6,
			Index:            42,
			Canary:           frame.Canary,
		}, frame.Status{
			Energy:             1.5,
			PreheatTemperature: 200,
			Mode:               frame.ModeRoasting,
		}
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"C", Celsius, false},
		{"c", Celsius, false},
		{" celsius ", Celsius, false},
		{"F", Fahrenheit, false},
		{"Fahrenheit", Fahrenheit, false},
		{"K", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnit(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUnit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert_Celsius(t *testing.T) {
	stats, status := testFrames()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	r := Convert(stats, status, Celsius, at)

	assert.True(t, r.Known)
	assert.Equal(t, at, r.Timestamp)
	assert.Equal(t, Celsius, r.Unit)
	assert.InDelta(t, 180.0, r.Bean, 1e-4)
	assert.InDelta(t, 210.5, r.Drum, 1e-4)
	assert.InDelta(t, 10.0, r.RateOfRise, 1e-4)
	assert.InDelta(t, 200.0, r.Preheat, 1e-4)
	assert.Equal(t, 5, r.Fan)
	assert.Equal(t, 7, r.Heater)
	assert.Equal(t, 6, r.DrumLevel)
	assert.Equal(t, frame.ModeRoasting, r.Mode)
	assert.Equal(t, uint16(42), r.Index)
}

func TestConvert_Fahrenheit(t *testing.T) {
	stats, status := testFrames()

	r := Convert(stats, status, Fahrenheit, time.Now())

	assert.Equal(t, Fahrenheit, r.Unit)
	assert.InDelta(t, 356.1, r.Bean, 1e-3)
	assert.InDelta(t, 410.9, r.Drum, 1e-3)
	assert.InDelta(t, 18.0, r.RateOfRise, 1e-4, "rate of rise scales without offset")
	assert.InDelta(t, 392.0, r.Preheat, 1e-4)
}

func TestConvert_UnknownUnitFallsBackToCelsius(t *testing.T) {
	stats, status := testFrames()

	r := Convert(stats, status, Unit("K"), time.Now())
	assert.Equal(t, Celsius, r.Unit)
	assert.InDelta(t, 180.0, r.Bean, 1e-4)
}

func TestConvert_NonFinite(t *testing.T) {
	stats, status := testFrames()
	stats.BeanTemperature = float32(math.NaN())
	stats.RateOfRise = float32(math.Inf(1))
	status.Energy = float32(math.Inf(-1))

	r := Convert(stats, status, Fahrenheit, time.Now())
	assert.Equal(t, float32(0), r.Bean)
	assert.Equal(t, float32(0), r.RateOfRise)
	assert.Equal(t, float32(0), r.Energy)
}

func TestFromSnapshot(t *testing.T) {
	stats, status := testFrames()

	unknown := FromSnapshot(roaster.Snapshot{Stats: frame.UnknownStats(), Status: frame.UnknownStatus()}, Fahrenheit)
	assert.False(t, unknown.Known)
	assert.Equal(t, Fahrenheit, unknown.Unit)
	assert.Equal(t, frame.ModeUnknown, unknown.Mode)
	assert.Contains(t, unknown.String(), "no telemetry")

	known := FromSnapshot(roaster.Snapshot{Stats: stats, Status: status, StatsKnown: true, StatusKnown: true}, Celsius)
	assert.True(t, known.Known)
	assert.Equal(t, 5, known.Fan)
	assert.Contains(t, known.String(), "roasting")
	assert.Contains(t, known.String(), "BT  180.0°C")
}

func TestConverter(t *testing.T) {
	stats, status := testFrames()

	in := make(chan roaster.Snapshot, 2)
	out := NewConverter(Fahrenheit, 2, nil)(in)

	in <- roaster.Snapshot{Stats: stats, Status: status, StatsKnown: true, StatusKnown: true}
	in <- roaster.Snapshot{Stats: frame.UnknownStats(), Status: frame.UnknownStatus()}
	close(in)

	var readings []Reading
	for r := range out {
		readings = append(readings, r)
	}

	require.Len(t, readings, 2)
	assert.True(t, readings[0].Known)
	assert.Equal(t, Fahrenheit, readings[0].Unit)
	assert.False(t, readings[1].Known)
}
