package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/roaster"
	"github.com/itohio/gobullet/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockSession(t *testing.T, cfg *config.Config) *roaster.Session {
	t.Helper()

	cfg.Control.SettleDelay = 0
	cfg.Control.NotReadyDelay = 0
	transport, err := openTransport(cfg, slog.Default(), true)
	require.NoError(t, err)

	tracer, closeTrace, err := openTracer(cfg, slog.Default(), false)
	require.NoError(t, err)
	t.Cleanup(closeTrace)

	s := roaster.New(transport, cfg, nil, tracer)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTraceThenDump(t *testing.T) {
	cfg := config.Default()
	cfg.Trace.File = filepath.Join(t.TempDir(), "session.rtrace")
	s := mockSession(t, cfg)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Close())

	var all bytes.Buffer
	require.NoError(t, dumpTrace(&all, cfg.Trace.File, ""))
	lines := strings.Split(strings.TrimSpace(all.String()), "\n")
	// Four transfers, each submitted and completed.
	assert.Len(t, lines, 8)
	assert.Contains(t, all.String(), "requestStats")
	assert.Contains(t, all.String(), "statusRead")
	assert.Contains(t, all.String(), "ff ff ff aa")

	var reads bytes.Buffer
	require.NoError(t, dumpTrace(&reads, cfg.Trace.File, "statsRead"))
	lines = strings.Split(strings.TrimSpace(reads.String()), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "statsRead")
	}
}

func TestDumpTrace_MissingFile(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, dumpTrace(&out, filepath.Join(t.TempDir(), "missing"), ""))
}

func TestWatch(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.StartMode = int(frame.ModeRoasting)
	cfg.Mock.BurstLength = 2
	s := mockSession(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.OnUpdate(func(snap roaster.Snapshot) {
		if snap.Stats.Index >= 5 {
			cancel()
		}
	})

	var out bytes.Buffer
	require.NoError(t, watch(ctx, s, sample.Fahrenheit, &out, slog.Default()))

	text := out.String()
	assert.Contains(t, text, "roasting")
	assert.Contains(t, text, "°F")
	assert.Contains(t, text, "#1 ")
	assert.LessOrEqual(t, strings.Count(text, "\n"), 5, "one line per stats frame")
}
