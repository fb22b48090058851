package roaster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/chewxy/math32"
	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/transfer"
)

// Names under which the Mock counts the commands it receives.
const (
	MockRequestStats  = "requestStats"
	MockRequestStatus = "requestStatus"
	MockPress         = "press"
	MockFanUp         = "fanUp"
	MockFanDown       = "fanDown"
	MockHeaterUp      = "heaterUp"
	MockHeaterDown    = "heaterDown"
	MockDrumSet       = "drumSet"
	MockUnknown       = "unknown"
)

const (
	mockAmbient    = 22
	mockPreheat    = 200
	mockHeaterGain = 2.5 // Steady state °C per heater level above ambient
	mockFanLoss    = 4   // Steady state °C lost per fan level
	mockTimeConst  = 8   // Stats reads to close about 63% of the gap
)

var errMockClosed = errors.New("mock roaster closed")

// Mock simulates a roaster behind the transfer.Transport contract. Transfers
// complete synchronously in submission order; Wait hands them out one by one.
type Mock struct {
	cfg config.MockConfig

	mu     sync.Mutex
	queue  []*transfer.Transfer
	closed bool

	reply    string // Frame requested by the last request command
	mode     frame.Mode
	fan      int
	heater   int
	drum     int
	bean     float32
	drumTemp float32
	ror      float32
	energy   float32
	index    uint16
	burst    int

	pending  []mockEffect
	counts   map[string]int
	injected map[string]transfer.Status
	served   frame.Stats
}

type mockEffect struct {
	due   int // Stats reads left before apply
	apply func()
}

// Ensure Mock implements transfer.Transport.
var _ transfer.Transport = (*Mock)(nil)

// NewMock creates a simulated roaster. A nil cfg uses the configuration defaults.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	return &Mock{
		cfg:      *cfg,
		mode:     frame.Mode(cfg.StartMode),
		fan:      cfg.FanLevel,
		heater:   cfg.HeaterLevel,
		drum:     cfg.DrumLevel,
		bean:     cfg.BeanTemperature,
		drumTemp: cfg.DrumTemperature,
		counts:   make(map[string]int),
		injected: make(map[string]transfer.Status),
	}
}

// Submit executes t against the simulated state and queues its completion.
func (m *Mock) Submit(t *transfer.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errMockClosed
	}

	t.Status = transfer.StatusCompleted
	if st, ok := m.injected[t.Label]; ok {
		delete(m.injected, t.Label)
		t.Status = st
	}

	if t.Status == transfer.StatusCompleted {
		switch t.Direction {
		case transfer.Out:
			m.command(t.Buffer)
			t.Actual = len(t.Buffer)
		case transfer.In:
			t.Actual = copy(t.Buffer, m.respond())
		}
	}

	m.queue = append(m.queue, t)
	return nil
}

// Wait returns the oldest completed transfer.
func (m *Mock) Wait(ctx context.Context) (*transfer.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, errors.New("mock roaster has no transfer in flight")
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	return t, nil
}

// Close stops the simulated roaster. Queued completions are discarded.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
	return nil
}

// InjectStatus makes the next transfer with label complete with status.
func (m *Mock) InjectStatus(label string, status transfer.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected[label] = status
}

// Count returns how many commands of the given kind were received.
func (m *Mock) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[kind]
}

// LastStats returns the last valid Stats frame handed out.
func (m *Mock) LastStats() frame.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served
}

// SetMode forces the simulated mode.
func (m *Mock) SetMode(mode frame.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

func (m *Mock) command(b []byte) {
	kind := MockUnknown
	var apply func()

	switch {
	case bytes.Equal(b, cmdRequestStats):
		kind = MockRequestStats
		m.reply = MockRequestStats
	case bytes.Equal(b, cmdRequestStatus):
		kind = MockRequestStatus
		m.reply = MockRequestStatus
	case bytes.Equal(b, cmdPress):
		kind = MockPress
		apply = m.press
	case bytes.Equal(b, cmdFanUp):
		kind = MockFanUp
		apply = func() { m.fan = clamp(m.fan+1, Fan) }
	case bytes.Equal(b, cmdFanDown):
		kind = MockFanDown
		apply = func() { m.fan = clamp(m.fan-1, Fan) }
	case bytes.Equal(b, cmdHeaterUp):
		kind = MockHeaterUp
		apply = func() { m.heater = clamp(m.heater+1, Heater) }
	case bytes.Equal(b, cmdHeaterDown):
		kind = MockHeaterDown
		apply = func() { m.heater = clamp(m.heater-1, Heater) }
	case len(b) == 4 && b[0] == cmdDrumSet:
		kind = MockDrumSet
		level := int(b[2])
		apply = func() { m.drum = clamp(level, Drum) }
	}

	m.counts[kind]++
	if apply == nil || m.cfg.Frozen {
		return
	}
	if m.cfg.Lag <= 0 {
		apply()
		return
	}
	m.pending = append(m.pending, mockEffect{due: m.cfg.Lag, apply: apply})
}

// press cycles the mode the way the roaster's front button does.
func (m *Mock) press() {
	i := slices.Index(frame.Modes, m.mode)
	if i < 0 {
		m.mode = frame.ModeOff
		return
	}
	m.mode = frame.Modes[(i+1)%len(frame.Modes)]
}

func (m *Mock) respond() []byte {
	reply := m.reply
	m.reply = ""

	switch reply {
	case MockRequestStats:
		return m.statsFrame()
	case MockRequestStatus:
		return frame.EncodeStatus(frame.Status{
			Energy:             m.energy,
			PreheatTemperature: mockPreheat,
			Mode:               m.mode,
		})
	default:
		return make([]byte, frame.Size)
	}
}

func (m *Mock) statsFrame() []byte {
	m.settle()

	if m.cfg.BurstLength > 0 && m.burst >= m.cfg.BurstLength {
		m.burst = 0
		return frame.EncodeStats(frame.Stats{Index: m.index})
	}
	m.burst++
	m.index++
	m.simulate()

	m.served = frame.Stats{
		BeanTemperature:  m.bean,
		RateOfRise:       m.ror,
		DrumTemperature:  m.drumTemp,
		FanSpeedLevel:    uint8(m.fan),
		HeaterPowerLevel: uint8(m.heater),
		DrumSpeedLevel:   uint8(m.drum),
		Index:            m.index,
		Canary:           frame.Canary,
	}
	return frame.EncodeStats(m.served)
}

// settle applies the lagging effects that are due on this stats read.
func (m *Mock) settle() {
	remaining := m.pending[:0]
	for _, e := range m.pending {
		e.due--
		if e.due <= 0 {
			e.apply()
			continue
		}
		remaining = append(remaining, e)
	}
	m.pending = remaining
}

// simulate moves the temperatures one step towards the heater and fan balance.
func (m *Mock) simulate() {
	target := float32(mockAmbient)
	switch m.mode {
	case frame.ModePreheating:
		target = mockPreheat
	case frame.ModeLoadBeans:
		target = mockPreheat
	case frame.ModeRoasting:
		target = mockAmbient + mockPreheat*0.5 + float32(m.heater)*mockHeaterGain*10 - float32(m.fan)*mockFanLoss
	}
	target = math32.Max(target, mockAmbient)

	alpha := 1 - math32.Exp(-1.0/mockTimeConst)
	prev := m.bean
	m.drumTemp += alpha * (target - m.drumTemp)
	m.bean += alpha * (m.drumTemp - m.bean)
	m.ror = (m.bean - prev) * 60

	if m.mode == frame.ModeRoasting || m.mode == frame.ModePreheating {
		m.energy += float32(m.heater) * 0.01
	}
}

func clamp(level int, a Actuator) int {
	return min(max(level, a.Min), a.Max)
}

// String describes the simulated state.
func (m *Mock) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("mock roaster mode=%s fan=%d heater=%d drum=%d bean=%.1f", m.mode, m.fan, m.heater, m.drum, m.bean)
}
