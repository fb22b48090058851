package trace

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("kind", event.Kind.String()),
		slog.String("direction", event.Direction.String()),
		slog.Int("endpoint", int(event.Endpoint)),
		slog.Uint64("transfer", event.TransferID),
		slog.String("label", event.Label),
		slog.Int("length", event.Length),
	}
	if len(event.Data) > 0 {
		attrs = append(attrs, slog.String("data", hex.EncodeToString(event.Data)))
	}
	if event.Status != "" {
		attrs = append(attrs, slog.String("status", event.Status))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "transfer", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
