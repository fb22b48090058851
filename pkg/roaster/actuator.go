package roaster

import (
	"context"
	"fmt"
	"slices"

	"github.com/itohio/gobullet/pkg/frame"
)

// Actuator describes one adjustable roaster output.
type Actuator struct {
	Name     string
	Min, Max int
	Level    func(frame.Stats) int
	Up, Down []byte       // Relative step commands
	Absolute bool         // Levels are set with a single absolute command
	Modes    []frame.Mode // Modes in which the roaster accepts changes
}

var (
	// Fan is the exhaust fan, 0 to 12.
	Fan = Actuator{
		Name:  "fan",
		Min:   0,
		Max:   12,
		Level: func(st frame.Stats) int { return int(st.FanSpeedLevel) },
		Up:    cmdFanUp,
		Down:  cmdFanDown,
		Modes: []frame.Mode{frame.ModeRoasting, frame.ModeCooling},
	}
	// Heater is the induction heater power, 0 to 9.
	Heater = Actuator{
		Name:  "heater",
		Min:   0,
		Max:   9,
		Level: func(st frame.Stats) int { return int(st.HeaterPowerLevel) },
		Up:    cmdHeaterUp,
		Down:  cmdHeaterDown,
		Modes: []frame.Mode{frame.ModeRoasting},
	}
	// Drum is the drum rotation speed, 1 to 9.
	Drum = Actuator{
		Name:     "drum",
		Min:      1,
		Max:      9,
		Level:    func(st frame.Stats) int { return int(st.DrumSpeedLevel) },
		Absolute: true,
		Modes:    []frame.Mode{frame.ModeRoasting, frame.ModeCooling},
	}
)

// Eligible reports whether the roaster accepts changes to a in mode m.
func (a Actuator) Eligible(m frame.Mode) bool {
	return slices.Contains(a.Modes, m)
}

// Valid reports whether level is within the actuator's range.
func (a Actuator) Valid(level int) bool {
	return level >= a.Min && level <= a.Max
}

// SetLevel converges the actuator to target. Out of range targets fail with
// ErrInvalidLevel before any I/O. Outside the actuator's modes the call does
// nothing. Every step is confirmed by waiting for the reported level to move.
func (s *Session) SetLevel(ctx context.Context, a Actuator, target int) error {
	if !a.Valid(target) {
		return fmt.Errorf("%w: %s level %d outside %d..%d", ErrInvalidLevel, a.Name, target, a.Min, a.Max)
	}
	if err := s.ensureKnown(ctx); err != nil {
		return err
	}

	mode := s.Mode()
	if !a.Eligible(mode) {
		s.log.Debug("level change ignored", "actuator", a.Name, "mode", mode)
		return nil
	}
	s.log.Debug("set level", "actuator", a.Name, "target", target)

	if a.Absolute {
		if a.Level(s.Latest().Stats) == target {
			return nil
		}
		if err := s.write(ctx, drumSetCommand(target), a.Name+"Set"); err != nil {
			return err
		}
		return s.WaitUntil(ctx, fmt.Sprintf("%s is %d", a.Name, target), func(snap Snapshot) bool {
			return a.Level(snap.Stats) == target
		})
	}

	for {
		current := a.Level(s.Latest().Stats)
		if current == target {
			return nil
		}

		cmd, label := a.Up, a.Name+"Up"
		if current > target {
			cmd, label = a.Down, a.Name+"Down"
		}
		if err := s.write(ctx, cmd, label); err != nil {
			return err
		}

		err := s.WaitUntil(ctx, fmt.Sprintf("%s is not %d", a.Name, current), func(snap Snapshot) bool {
			return a.Level(snap.Stats) != current
		})
		if err != nil {
			return err
		}
	}
}

// SetFanLevel converges the fan to level.
func (s *Session) SetFanLevel(ctx context.Context, level int) error {
	return s.SetLevel(ctx, Fan, level)
}

// SetHeaterLevel converges the heater to level.
func (s *Session) SetHeaterLevel(ctx context.Context, level int) error {
	return s.SetLevel(ctx, Heater, level)
}

// SetDrumLevel sets the drum speed to level.
func (s *Session) SetDrumLevel(ctx context.Context, level int) error {
	return s.SetLevel(ctx, Drum, level)
}

// FanUp sends a single fan step up without waiting for it to take effect.
func (s *Session) FanUp(ctx context.Context) error {
	return s.step(ctx, Fan, true)
}

// FanDown sends a single fan step down.
func (s *Session) FanDown(ctx context.Context) error {
	return s.step(ctx, Fan, false)
}

// HeaterUp sends a single heater step up.
func (s *Session) HeaterUp(ctx context.Context) error {
	return s.step(ctx, Heater, true)
}

// HeaterDown sends a single heater step down.
func (s *Session) HeaterDown(ctx context.Context) error {
	return s.step(ctx, Heater, false)
}

// DrumUp raises the drum speed by one. At the top of the range it does nothing.
func (s *Session) DrumUp(ctx context.Context) error {
	return s.nudge(ctx, Drum, 1)
}

// DrumDown lowers the drum speed by one.
func (s *Session) DrumDown(ctx context.Context) error {
	return s.nudge(ctx, Drum, -1)
}

func (s *Session) step(ctx context.Context, a Actuator, up bool) error {
	if err := s.ensureKnown(ctx); err != nil {
		return err
	}
	if mode := s.Mode(); !a.Eligible(mode) {
		s.log.Debug("step ignored", "actuator", a.Name, "mode", mode)
		return nil
	}
	if up {
		return s.write(ctx, a.Up, a.Name+"Up")
	}
	return s.write(ctx, a.Down, a.Name+"Down")
}

func (s *Session) nudge(ctx context.Context, a Actuator, delta int) error {
	if err := s.ensureKnown(ctx); err != nil {
		return err
	}
	next := a.Level(s.Latest().Stats) + delta
	if !a.Valid(next) {
		return nil
	}
	return s.SetLevel(ctx, a, next)
}

// ensureKnown samples, within the retry bound, until both caches hold a valid
// frame. A not-ready first frame would otherwise leave the mode unknown and make
// every mode-gated call a no-op.
func (s *Session) ensureKnown(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return s.WaitUntil(ctx, "telemetry known", func(snap Snapshot) bool {
		return snap.StatsKnown && snap.StatusKnown
	})
}
