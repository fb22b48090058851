package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/itohio/gobullet/pkg/trace"
)

// Engine owns the outstanding transfer set of one device session.
//
// Engine is not safe for concurrent use. Submissions, pumping and completion
// handlers all run on the goroutine driving the session; handlers may submit new
// transfers, which join the set the running pump is waiting on.
type Engine struct {
	transport   Transport
	outstanding map[uint64]*Transfer
	nextID      uint64
	sessionID   string

	log    *slog.Logger
	tracer trace.Logger
}

// NewEngine creates an engine on top of a transport. A nil logger uses
// slog.Default and a nil tracer discards events.
func NewEngine(transport Transport, log *slog.Logger, tracer trace.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if tracer == nil {
		tracer = trace.NoopLogger{}
	}
	return &Engine{
		transport:   transport,
		outstanding: make(map[uint64]*Transfer),
		sessionID:   trace.NewSessionID(),
		log:         log,
		tracer:      tracer,
	}
}

// SessionID identifies this engine's events in a trace.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Outstanding returns the number of submitted transfers that have not completed.
func (e *Engine) Outstanding() int {
	return len(e.outstanding)
}

// SubmitWrite queues payload for the OUT endpoint. onComplete may be nil.
func (e *Engine) SubmitWrite(endpoint uint8, payload []byte, label string, onComplete Handler) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return e.submit(&Transfer{
		Direction:  Out,
		Endpoint:   endpoint,
		Label:      label,
		Buffer:     buf,
		onComplete: onComplete,
	})
}

// SubmitRead queues a read of length bytes from the IN endpoint.
func (e *Engine) SubmitRead(endpoint uint8, length int, label string, onComplete Handler) error {
	return e.submit(&Transfer{
		Direction:  In,
		Endpoint:   endpoint,
		Label:      label,
		Buffer:     make([]byte, length),
		onComplete: onComplete,
	})
}

func (e *Engine) submit(t *Transfer) error {
	e.nextID++
	t.ID = e.nextID
	e.outstanding[t.ID] = t

	e.log.Debug("submit transfer", "id", t.ID, "label", t.Label, "direction", t.Direction, "endpoint", t.Endpoint, "length", len(t.Buffer))
	ev := e.event(t, trace.KindSubmit)
	if t.Direction == Out {
		ev.Data = t.Buffer
	}
	e.tracer.Log(ev)

	if err := e.transport.Submit(t); err != nil {
		delete(e.outstanding, t.ID)
		return fmt.Errorf("failed to submit %s: %w", t.Label, err)
	}
	return nil
}

// PumpUntilIdle blocks until the outstanding set is empty, running the
// completion handler of each successful transfer in the order the transport
// reports them. The first failed transfer, handler error or context error
// aborts the pump; transfers still in flight stay outstanding.
func (e *Engine) PumpUntilIdle(ctx context.Context) error {
	for len(e.outstanding) > 0 {
		t, err := e.next(ctx)
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}

		if t.Status != StatusCompleted {
			return &TransferError{Label: t.Label, Status: t.Status}
		}
		if t.onComplete != nil {
			if err := t.onComplete(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drain waits for every outstanding transfer to complete without running
// completion handlers. It is used when closing a session.
func (e *Engine) Drain(ctx context.Context) error {
	for len(e.outstanding) > 0 {
		t, err := e.next(ctx)
		if err != nil {
			return err
		}
		if t != nil && t.Status != StatusCompleted {
			e.log.Debug("drained failed transfer", "label", t.Label, "status", t.Status)
		}
	}
	return nil
}

// next waits for a completion and removes it from the outstanding set. Transfers
// the engine does not own are logged and skipped (nil, nil).
func (e *Engine) next(ctx context.Context) (*Transfer, error) {
	t, err := e.transport.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := e.outstanding[t.ID]; !ok {
		e.log.Warn("completion for unknown transfer", "id", t.ID, "label", t.Label)
		return nil, nil
	}
	delete(e.outstanding, t.ID)

	e.log.Debug("transfer completed", "id", t.ID, "label", t.Label, "status", t.Status, "actual", t.Actual)
	ev := e.event(t, trace.KindComplete)
	ev.Status = t.Status.String()
	if t.Direction == In {
		ev.Data = t.Data()
	}
	e.tracer.Log(ev)

	return t, nil
}

func (e *Engine) event(t *Transfer, kind trace.Kind) trace.Event {
	return trace.Event{
		Timestamp:  time.Now(),
		SessionID:  e.sessionID,
		Kind:       kind,
		Direction:  t.Direction.trace(),
		Endpoint:   t.Endpoint,
		TransferID: t.ID,
		Label:      t.Label,
		Length:     len(t.Buffer),
	}
}
