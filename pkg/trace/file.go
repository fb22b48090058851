package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// fileMagic opens every trace file, followed by fileVersion.
const (
	fileMagic   = "bullet-trace"
	fileVersion = 1
)

// ErrNotTrace is returned when a file does not start with a trace header.
var ErrNotTrace = errors.New("not a transfer trace")

type fileHeader struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
}

// Events use core deterministic encoding so identical traffic yields identical
// bytes. Timestamps keep nanoseconds.
var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: encoder options: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: decoder options: %v", err))
	}
	return dm
}

// EncodeEvent returns the CBOR record for event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent parses a single CBOR record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// FileLogger appends events to a trace file, one CBOR record per Write so a
// crash leaves every earlier record intact. It is safe for concurrent use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	events int
	err    error
}

// NewFileLogger opens path for appending. A new or empty file gets the trace
// header first.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		header, _ := encMode.Marshal(fileHeader{Magic: fileMagic, Version: fileVersion})
		if _, err := f.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write trace header: %w", err)
		}
	}
	return &FileLogger{file: f}, nil
}

// Log appends event. Only the first failure is kept and reported by Close, so a
// broken trace never interrupts the transfer it records.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.err != nil {
		return
	}
	record, err := EncodeEvent(event)
	if err == nil {
		_, err = l.file.Write(record)
	}
	if err != nil {
		l.err = fmt.Errorf("trace event %d (%s): %w", l.events, event.Label, err)
		return
	}
	l.events++
}

// Events returns how many events have been written.
func (l *FileLogger) Events() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// Close closes the file and returns the first write failure, if any. Later Log
// calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := errors.Join(l.err, l.file.Close())
	l.file = nil
	return err
}

var _ Logger = (*FileLogger)(nil)

// Reader streams events back out of a trace file.
type Reader struct {
	file  *os.File
	dec   *cbor.Decoder
	label string
}

// NewReader opens a trace file and checks its header. If label is not empty
// only events with that label are returned.
func NewReader(path, label string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := decMode.NewDecoder(f)
	var header fileHeader
	if err := dec.Decode(&header); err != nil || header.Magic != fileMagic {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotTrace, path)
	}
	if header.Version != fileVersion {
		f.Close()
		return nil, fmt.Errorf("%w: %s has version %d", ErrNotTrace, path, header.Version)
	}

	return &Reader{file: f, dec: dec, label: label}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.label == "" || event.Label == r.label {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
