package roaster

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLevel is returned for actuator levels outside their legal range.
	ErrInvalidLevel = errors.New("invalid level")
	// ErrInvalidMode is returned for mode targets that are not operating modes.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrChangeTimeout is matched by every ChangeTimeoutError.
	ErrChangeTimeout = errors.New("change timeout")
	// ErrModeUnreachable is returned when pressing cycles through the modes
	// without reaching the requested one.
	ErrModeUnreachable = errors.New("mode unreachable")
	// ErrChainBusy is returned when a poll is started while another is running.
	ErrChainBusy = errors.New("poll already in progress")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// ChangeTimeoutError reports a bounded wait that saw no change.
type ChangeTimeoutError struct {
	Name    string // What was being waited for
	Samples int    // Samples taken without the condition holding
}

func (e *ChangeTimeoutError) Error() string {
	return fmt.Sprintf("waiting until %s, but had %d stats with no change after change request", e.Name, e.Samples)
}

// Is makes errors.Is(err, ErrChangeTimeout) hold.
func (e *ChangeTimeoutError) Is(target error) bool {
	return target == ErrChangeTimeout
}
