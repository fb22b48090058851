package roaster

import (
	"context"
	"fmt"

	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/transfer"
)

// phase is the position of the poll chain within its round trips.
type phase uint8

const (
	phaseIdle phase = iota
	phaseStatsWrite
	phaseStatsRead
	phaseStatusWrite
	phaseStatusRead
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseStatsWrite:
		return "stats-write"
	case phaseStatsRead:
		return "stats-read"
	case phaseStatusWrite:
		return "status-write"
	case phaseStatusRead:
		return "status-read"
	default:
		return "invalid"
	}
}

// poller chains the stats and status round trips. Every completion advances the
// phase by one step; the chain ends in phaseIdle either after a single pair, when
// stopped, or when the roaster answers with a stats frame missing its canary.
type poller struct {
	s *Session

	phase      phase
	continuous bool // Restart the stats round trip after each status
	stop       bool // End the chain after the current round trip
	notReady   bool // The last chain ended on a stats frame without canary
	pairs      int  // Completed stats+status pairs in the current chain
}

func (p *poller) start(continuous bool) error {
	if p.phase != phaseIdle {
		return ErrChainBusy
	}
	p.continuous = continuous
	p.stop = false
	p.notReady = false
	p.pairs = 0
	return p.requestStats()
}

func (p *poller) reset() {
	p.phase = phaseIdle
	p.continuous = false
}

func (p *poller) requestStats() error {
	p.s.log.Debug("requestStats")
	p.phase = phaseStatsWrite
	if err := p.s.engine.SubmitWrite(p.s.outEndpoint, cmdRequestStats, "requestStats", p.advance); err != nil {
		p.reset()
		return err
	}
	return nil
}

func (p *poller) requestStatus() error {
	p.s.log.Debug("requestStatus")
	p.phase = phaseStatusWrite
	return p.s.engine.SubmitWrite(p.s.outEndpoint, cmdRequestStatus, "requestStatus", p.advance)
}

// advance is the completion handler for every transfer of the chain.
func (p *poller) advance(t *transfer.Transfer) error {
	switch p.phase {
	case phaseStatsWrite:
		p.phase = phaseStatsRead
		return p.s.engine.SubmitRead(p.s.inEndpoint, frame.Size, "statsRead", p.advance)

	case phaseStatsRead:
		stats, err := frame.DecodeStats(t.Data())
		if err != nil {
			p.reset()
			return fmt.Errorf("failed to decode stats: %w", err)
		}
		if !stats.Valid() {
			p.s.log.Debug("stats finished", "canary", stats.Canary)
			p.notReady = true
			p.reset()
			return nil
		}
		p.s.log.Debug("got stats", "index", stats.Index)
		p.s.storeStats(stats)
		return p.requestStatus()

	case phaseStatusWrite:
		p.phase = phaseStatusRead
		return p.s.engine.SubmitRead(p.s.inEndpoint, frame.Size, "statusRead", p.advance)

	case phaseStatusRead:
		status, err := frame.DecodeStatus(t.Data())
		if err != nil {
			p.reset()
			return fmt.Errorf("failed to decode status: %w", err)
		}
		p.s.log.Debug("got status", "mode", status.Mode)
		p.s.storeStatus(status)
		p.pairs++
		if p.continuous && !p.stop {
			return p.requestStats()
		}
		p.reset()
		return nil

	default:
		return fmt.Errorf("unexpected completion of %s in phase %s", t.Label, p.phase)
	}
}

// Sample performs one stats round trip and the status round trip it triggers,
// blocking until both have settled. A stats frame without canary is not an
// error: the cache is left untouched and the call pauses for NotReadyDelay.
func (s *Session) Sample(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	s.log.Debug("sample")

	if err := s.poll.start(false); err != nil {
		return err
	}
	if err := s.engine.PumpUntilIdle(ctx); err != nil {
		s.abort()
		return err
	}
	if s.poll.notReady {
		return sleep(ctx, s.control.NotReadyDelay)
	}
	return nil
}

// Stream runs the continuous stats/status chain until ctx is cancelled. When the
// roaster reports it has no more data the chain pauses for NotReadyDelay and
// starts again. On cancellation the round trip in flight is allowed to finish,
// bounded by DrainTimeout, and Stream returns nil.
func (s *Session) Stream(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	s.log.Debug("stream")

	for {
		if err := s.poll.start(true); err != nil {
			return err
		}

		err := s.engine.PumpUntilIdle(ctx)
		if ctx.Err() != nil {
			return s.stopChain()
		}
		if err != nil {
			s.abort()
			return err
		}

		if err := sleep(ctx, s.control.NotReadyDelay); err != nil {
			return nil
		}
	}
}

// abort resets the chain after a failed pump and discards whatever is still in
// flight, so a later poll does not receive completions of this one.
func (s *Session) abort() {
	s.poll.reset()
	if s.engine.Outstanding() == 0 {
		return
	}

	ctx, cancel := s.drainContext()
	defer cancel()
	if err := s.engine.Drain(ctx); err != nil {
		s.log.Warn("failed to drain transfers", "error", err)
	}
}

func (s *Session) drainContext() (context.Context, context.CancelFunc) {
	if s.control.DrainTimeout > 0 {
		return context.WithTimeout(context.Background(), s.control.DrainTimeout)
	}
	return context.WithCancel(context.Background())
}

// stopChain asks the chain to end after the current round trip and pumps it to
// idle.
func (s *Session) stopChain() error {
	s.poll.stop = true

	ctx, cancel := s.drainContext()
	defer cancel()

	if err := s.engine.PumpUntilIdle(ctx); err != nil {
		s.abort()
		return fmt.Errorf("failed to stop poll chain: %w", err)
	}
	s.poll.reset()
	return nil
}
