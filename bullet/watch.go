package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/itohio/gobullet/pkg/roaster"
	"github.com/itohio/gobullet/pkg/sample"
)

// watch streams telemetry and prints one line per new stats frame until ctx is
// cancelled.
func watch(ctx context.Context, s *roaster.Session, unit sample.Unit, w io.Writer, log *slog.Logger) error {
	snapshots := make(chan roaster.Snapshot, 16)
	stopped := false
	s.OnUpdate(func(snap roaster.Snapshot) {
		if stopped || !snap.StatusKnown {
			return
		}
		select {
		case snapshots <- snap:
		default:
			log.Debug("watch output behind, skipping snapshot")
		}
	})

	readings := sample.NewConverter(unit, 16, log)(snapshots)
	done := make(chan struct{})
	go func() {
		defer close(done)

		var last uint16
		printed := false
		for r := range readings {
			if printed && r.Index == last {
				continue
			}
			fmt.Fprintln(w, r)
			last, printed = r.Index, true
		}
	}()

	err := s.Stream(ctx)

	stopped = true
	close(snapshots)
	<-done
	return err
}
