// Package trace captures USB transfer traffic between the host and the roaster.
//
// Every submitted transfer and every completion is recorded as an Event. Events
// are separate from operational logging (slog): a trace is a machine-readable
// record of what went over the wire, useful when the roaster misbehaves.
//
//	// Development: print transfers through slog at debug level
//	tracer := trace.NewSlogAdapter(slog.Default())
//
//	// Capture to a file, read back later with `bullet -dump`
//	tracer, _ := trace.NewFileLogger("session.rtrace")
//
// A trace file is a CBOR header record followed by one CBOR record per event.
package trace
