package trace

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(label string) Event {
	return Event{
		Timestamp:  time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC),
		SessionID:  "session-1",
		Kind:       KindComplete,
		Direction:  DirectionIn,
		Endpoint:   1,
		TransferID: 42,
		Label:      label,
		Length:     64,
		Data:       []byte{0x30, 0x01},
		Status:     "completed",
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	event := testEvent("statsRead")

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
	got.Timestamp = event.Timestamp
	assert.Equal(t, event, got)
}

func TestFileLogger_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.rtrace")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	logger.Log(testEvent("requestStats"))
	logger.Log(testEvent("statsRead"))
	logger.Log(testEvent("requestStats"))
	require.NoError(t, logger.Close())

	// Logging after close is ignored
	logger.Log(testEvent("late"))
	require.NoError(t, logger.Close())

	r, err := NewReader(path, "")
	require.NoError(t, err)
	defer r.Close()

	var labels []string
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		labels = append(labels, ev.Label)
	}
	assert.Equal(t, []string{"requestStats", "statsRead", "requestStats"}, labels)
}

func TestReader_LabelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.rtrace")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	logger.Log(testEvent("prs"))
	logger.Log(testEvent("statsRead"))
	logger.Log(testEvent("prs"))
	require.NoError(t, logger.Close())

	r, err := NewReader(path, "prs")
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestFileLogger_AppendsToExistingTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.rtrace")

	for _, label := range []string{"requestStats", "prs"} {
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Log(testEvent(label))
		assert.Equal(t, 1, logger.Events())
		require.NoError(t, logger.Close())
	}

	r, err := NewReader(path, "")
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	second, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "requestStats", first.Label)
	assert.Equal(t, "prs", second.Label)
}

func TestNewReader_RejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(text, []byte("device:\n  vendor_id: 1155\n"), 0644))
	_, err := NewReader(text, "")
	assert.ErrorIs(t, err, ErrNotTrace)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = NewReader(empty, "")
	assert.ErrorIs(t, err, ErrNotTrace)

	bare := filepath.Join(dir, "bare")
	record, err := EncodeEvent(testEvent("prs"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(bare, record, 0644))
	_, err = NewReader(bare, "")
	assert.ErrorIs(t, err, ErrNotTrace)
}

func TestNewReader_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing"), "")
	assert.True(t, os.IsNotExist(err))
}

type recorder struct {
	events []Event
}

func (r *recorder) Log(event Event) { r.events = append(r.events, event) }

func TestMultiLogger(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMultiLogger(a, nil, b)

	m.Log(testEvent("prs"))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(logger).Log(testEvent("statsRead"))

	out := buf.String()
	assert.True(t, strings.Contains(out, "label=statsRead"), out)
	assert.True(t, strings.Contains(out, "data=3001"), out)
	assert.True(t, strings.Contains(out, "status=completed"), out)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestKindAndDirectionStrings(t *testing.T) {
	assert.Equal(t, "SUBMIT", KindSubmit.String())
	assert.Equal(t, "COMPLETE", KindComplete.String())
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(7).String())
}
