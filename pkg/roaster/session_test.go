package roaster

import (
	"context"
	"errors"
	"testing"

	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMockConfig returns a simulated roaster that never runs out of stats.
func testMockConfig() config.MockConfig {
	mc := config.Default().Mock
	mc.BurstLength = 0
	return mc
}

// newTestSession wires a session to a simulated roaster without any pacing
// delays.
func newTestSession(t *testing.T, mc config.MockConfig) (*Session, *Mock) {
	t.Helper()

	cfg := config.Default()
	cfg.Control.SettleDelay = 0
	cfg.Control.NotReadyDelay = 0
	cfg.Mock = mc

	m := NewMock(&cfg.Mock)
	s := New(m, cfg, nil, nil)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, m
}

func TestSession_UnknownBeforeFirstSample(t *testing.T) {
	s, m := newTestSession(t, testMockConfig())

	snap := s.Latest()
	assert.False(t, snap.StatsKnown)
	assert.False(t, snap.StatusKnown)
	assert.Equal(t, frame.ModeUnknown, s.Mode())
	assert.Equal(t, float32(-1), s.BeanTemperature())
	assert.Equal(t, float32(-1), s.DrumTemperature())
	assert.Equal(t, 0, m.Count(MockRequestStats))
}

func TestSession_SampleOverwritesCache(t *testing.T) {
	mc := testMockConfig()
	mc.StartMode = int(frame.ModeRoasting)
	mc.HeaterLevel = 4
	mc.FanLevel = 6
	s, m := newTestSession(t, mc)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Sample(ctx))

		snap := s.Latest()
		assert.True(t, snap.StatsKnown)
		assert.True(t, snap.StatusKnown)
		assert.Equal(t, m.LastStats(), snap.Stats)
		assert.Equal(t, uint16(i), snap.Stats.Index)
		assert.Equal(t, frame.ModeRoasting, snap.Status.Mode)
		assert.Equal(t, uint8(200), snap.Status.PreheatTemperature)
	}

	assert.Equal(t, 6, s.FanSpeedLevel())
	assert.Equal(t, 4, s.HeaterPowerLevel())
	assert.Equal(t, 1, s.DrumSpeedLevel())
	assert.Equal(t, 3, m.Count(MockRequestStats))
	assert.Equal(t, 3, m.Count(MockRequestStatus))
}

func TestSession_NotReadyLeavesCacheUntouched(t *testing.T) {
	mc := testMockConfig()
	mc.BurstLength = 1
	s, m := newTestSession(t, mc)
	ctx := context.Background()

	require.NoError(t, s.Sample(ctx))
	before := s.Latest()

	require.NoError(t, s.Sample(ctx))
	after := s.Latest()

	assert.Equal(t, before.Stats, after.Stats)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, 2, m.Count(MockRequestStats))
	assert.Equal(t, 1, m.Count(MockRequestStatus), "status round trip must not follow a not-ready frame")

	require.NoError(t, s.Sample(ctx))
	assert.Equal(t, uint16(2), s.Latest().Stats.Index)
}

func TestSession_OnUpdate(t *testing.T) {
	s, _ := newTestSession(t, testMockConfig())

	var updates []Snapshot
	s.OnUpdate(func(snap Snapshot) {
		updates = append(updates, snap)
	})
	s.OnUpdate(nil)

	require.NoError(t, s.Sample(context.Background()))

	require.Len(t, updates, 2)
	assert.True(t, updates[0].StatsKnown)
	assert.False(t, updates[0].StatusKnown)
	assert.True(t, updates[1].StatusKnown)
}

func TestSession_TransferFailure(t *testing.T) {
	tests := []struct {
		label  string
		status transfer.Status
	}{
		{"requestStats", transfer.StatusTimedOut},
		{"statsRead", transfer.StatusStalled},
		{"requestStatus", transfer.StatusNoDevice},
		{"statusRead", transfer.StatusOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			s, m := newTestSession(t, testMockConfig())
			m.InjectStatus(tt.label, tt.status)

			err := s.Sample(context.Background())
			require.Error(t, err)

			var terr *transfer.TransferError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.label, terr.Label)
			assert.Equal(t, tt.status, terr.Status)

			// The chain is reusable after a failure.
			require.NoError(t, s.Sample(context.Background()))
			assert.True(t, s.Latest().StatusKnown)
		})
	}
}

func TestSession_Stream(t *testing.T) {
	mc := testMockConfig()
	mc.BurstLength = 3
	s, m := newTestSession(t, mc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.OnUpdate(func(snap Snapshot) {
		if snap.Stats.Index >= 10 {
			cancel()
		}
	})

	require.NoError(t, s.Stream(ctx))

	assert.GreaterOrEqual(t, s.Latest().Stats.Index, uint16(10))
	assert.Greater(t, m.Count(MockRequestStats), m.Count(MockRequestStatus), "not-ready frames restart the chain")
	assert.Equal(t, m.Count(MockRequestStatus), int(s.Latest().Stats.Index), "every valid stats frame gets its status")

	// The chain is idle again.
	require.NoError(t, s.Sample(context.Background()))
}

func TestSession_StreamCancelledBeforeStart(t *testing.T) {
	s, m := newTestSession(t, testMockConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.Stream(ctx))
	assert.Equal(t, 1, m.Count(MockRequestStats))
	assert.Equal(t, 1, m.Count(MockRequestStatus))
}

func TestSession_Close(t *testing.T) {
	s, m := newTestSession(t, testMockConfig())
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())

	assert.ErrorIs(t, s.Sample(ctx), ErrClosed)
	assert.ErrorIs(t, s.Stream(ctx), ErrClosed)
	assert.ErrorIs(t, s.Press(ctx), ErrClosed)
	assert.ErrorIs(t, s.SetFanLevel(ctx, 3), ErrClosed)
	assert.Equal(t, 1, m.Count(MockRequestStats))

	// The cache stays readable.
	assert.True(t, s.Latest().StatsKnown)
}

func TestSession_SessionID(t *testing.T) {
	s1, _ := newTestSession(t, testMockConfig())
	s2, _ := newTestSession(t, testMockConfig())

	assert.NotEmpty(t, s1.SessionID())
	assert.NotEqual(t, s1.SessionID(), s2.SessionID())
}
