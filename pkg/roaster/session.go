// Package roaster drives an Aillio Bullet R1 coffee roaster: it keeps the latest
// telemetry frames, walks the operating mode state machine and converges the fan,
// heater and drum levels through the roaster's relative step commands.
//
// A Session is driven from a single goroutine. Transfers only make progress while
// a Session method is pumping them; completion handlers run on that goroutine.
// The telemetry cache may be read from other goroutines through Latest.
package roaster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/trace"
	"github.com/itohio/gobullet/pkg/transfer"
)

// Snapshot is a copy of the session's telemetry cache.
type Snapshot struct {
	Stats       frame.Stats
	Status      frame.Status
	StatsKnown  bool // A valid Stats frame has been received
	StatusKnown bool // A Status frame has been received
	UpdatedAt   time.Time
}

// Session owns the exchange engine for one open roaster.
type Session struct {
	transport transfer.Transport
	engine    *transfer.Engine
	log       *slog.Logger

	inEndpoint  uint8
	outEndpoint uint8
	control     config.ControlConfig

	mu     sync.RWMutex
	latest Snapshot

	callbacks []func(Snapshot)
	cbMu      sync.RWMutex

	poll   poller
	closed bool
}

// New creates a session on an already opened transport. The session takes
// ownership of the transport and closes it in Close. A nil logger uses
// slog.Default and a nil tracer discards transfer events.
func New(transport transfer.Transport, cfg *config.Config, log *slog.Logger, tracer trace.Logger) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}

	control := cfg.Control
	if control.MaxRetries <= 0 {
		control.MaxRetries = config.Default().Control.MaxRetries
	}

	s := &Session{
		transport:   transport,
		engine:      transfer.NewEngine(transport, log, tracer),
		log:         log,
		inEndpoint:  cfg.Device.InEndpoint,
		outEndpoint: cfg.Device.OutEndpoint,
		control:     control,
		latest: Snapshot{
			Stats:  frame.UnknownStats(),
			Status: frame.UnknownStatus(),
		},
	}
	s.poll.s = s
	return s
}

// Start performs the initial sample so that mode and levels are known.
func (s *Session) Start(ctx context.Context) error {
	s.log.Debug("roaster start")
	return s.Sample(ctx)
}

// Close stops any poll chain, waits for in-flight transfers for at most the
// configured drain timeout and releases the transport. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.poll.stop = true

	ctx, cancel := s.drainContext()
	defer cancel()

	var drainErr error
	if n := s.engine.Outstanding(); n > 0 {
		s.log.Debug("draining transfers", "outstanding", n)
		drainErr = s.engine.Drain(ctx)
	}
	s.poll.reset()

	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	if drainErr != nil {
		return fmt.Errorf("failed to drain transfers: %w", drainErr)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	return s.closed
}

// SessionID identifies this session in transfer traces.
func (s *Session) SessionID() string {
	return s.engine.SessionID()
}

// Latest returns a copy of the telemetry cache.
func (s *Session) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Mode returns the cached operating mode, ModeUnknown before the first Status.
func (s *Session) Mode() frame.Mode {
	return s.Latest().Status.Mode
}

// BeanTemperature returns the cached bean temperature in °C.
func (s *Session) BeanTemperature() float32 {
	return s.Latest().Stats.BeanTemperature
}

// DrumTemperature returns the cached drum temperature in °C.
func (s *Session) DrumTemperature() float32 {
	return s.Latest().Stats.DrumTemperature
}

// FanSpeedLevel returns the cached fan level.
func (s *Session) FanSpeedLevel() int {
	return int(s.Latest().Stats.FanSpeedLevel)
}

// HeaterPowerLevel returns the cached heater level.
func (s *Session) HeaterPowerLevel() int {
	return int(s.Latest().Stats.HeaterPowerLevel)
}

// DrumSpeedLevel returns the cached drum level.
func (s *Session) DrumSpeedLevel() int {
	return int(s.Latest().Stats.DrumSpeedLevel)
}

// OnUpdate registers a callback invoked after every cache update. Callbacks run
// on the goroutine driving the session and should return quickly.
func (s *Session) OnUpdate(callback func(Snapshot)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

func (s *Session) storeStats(stats frame.Stats) {
	s.mu.Lock()
	s.latest.Stats = stats
	s.latest.StatsKnown = true
	s.latest.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.notifyCallbacks()
}

func (s *Session) storeStatus(status frame.Status) {
	s.mu.Lock()
	s.latest.Status = status
	s.latest.StatusKnown = true
	s.latest.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.notifyCallbacks()
}

func (s *Session) notifyCallbacks() {
	snap := s.Latest()

	s.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(snap)
		}
	}
}

// write sends a single command and pumps until it and anything it triggered
// have completed.
func (s *Session) write(ctx context.Context, payload []byte, label string) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.engine.SubmitWrite(s.outEndpoint, payload, label, nil); err != nil {
		return err
	}
	return s.engine.PumpUntilIdle(ctx)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
