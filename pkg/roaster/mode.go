package roaster

import (
	"context"
	"fmt"

	"github.com/itohio/gobullet/pkg/frame"
)

// Press sends the single mode-advance command. It does not wait for the mode to
// change.
func (s *Session) Press(ctx context.Context) error {
	s.log.Debug("prs")
	return s.write(ctx, cmdPress, "prs")
}

// AdvanceMode presses once and waits, within the retry bound, until the reported
// mode differs from the mode before the press.
func (s *Session) AdvanceMode(ctx context.Context) error {
	if err := s.ensureKnown(ctx); err != nil {
		return err
	}
	before := s.Mode()
	if err := s.Press(ctx); err != nil {
		return err
	}
	return s.WaitUntil(ctx, fmt.Sprintf("mode is not %s", before), func(snap Snapshot) bool {
		return snap.Status.Mode != before
	})
}

// UntilMode presses until the roaster reports target. Each press is confirmed
// with AdvanceMode. Pressing through every mode without meeting target fails with
// ErrModeUnreachable.
func (s *Session) UntilMode(ctx context.Context, target frame.Mode) error {
	if !target.Known() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, target)
	}
	s.log.Debug("until mode", "target", target)

	if err := s.ensureKnown(ctx); err != nil {
		return err
	}

	seen := make(map[frame.Mode]bool)
	for {
		current := s.Mode()
		if current == target {
			return nil
		}
		if seen[current] {
			return fmt.Errorf("%w: %s, cycled back to %s", ErrModeUnreachable, target, current)
		}
		seen[current] = true

		if err := s.AdvanceMode(ctx); err != nil {
			return err
		}
	}
}

// StartRoaster wakes the roaster with one press if it reports OFF.
func (s *Session) StartRoaster(ctx context.Context) error {
	s.log.Debug("start roaster")
	if err := s.ensureKnown(ctx); err != nil {
		return err
	}
	if s.Mode() != frame.ModeOff {
		return nil
	}
	return s.Press(ctx)
}

// Preheat brings the roaster to PREHEATING.
func (s *Session) Preheat(ctx context.Context) error {
	return s.UntilMode(ctx, frame.ModePreheating)
}

// LoadBeans brings the roaster to LOAD_BEANS.
func (s *Session) LoadBeans(ctx context.Context) error {
	return s.UntilMode(ctx, frame.ModeLoadBeans)
}

// Roast brings the roaster to ROASTING.
func (s *Session) Roast(ctx context.Context) error {
	return s.UntilMode(ctx, frame.ModeRoasting)
}

// Cool brings the roaster to COOLING.
func (s *Session) Cool(ctx context.Context) error {
	return s.UntilMode(ctx, frame.ModeCooling)
}

// Off powers the roaster down.
func (s *Session) Off(ctx context.Context) error {
	return s.UntilMode(ctx, frame.ModeOff)
}

// WaitUntil samples until cond holds for the cached telemetry. After MaxRetries
// samples without cond holding it fails with a ChangeTimeoutError. When a sample
// did not advance the stats index the roaster is given SettleDelay before the next
// one.
func (s *Session) WaitUntil(ctx context.Context, name string, cond func(Snapshot) bool) error {
	samples := 0
	for {
		snap := s.Latest()
		if cond(snap) {
			return nil
		}
		if samples >= s.control.MaxRetries {
			return &ChangeTimeoutError{Name: name, Samples: samples}
		}

		if err := s.Sample(ctx); err != nil {
			return err
		}
		samples++

		if s.Latest().Stats.Index == snap.Stats.Index {
			if err := sleep(ctx, s.control.SettleDelay); err != nil {
				return err
			}
		}
	}
}
