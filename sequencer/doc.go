// Package sequencer runs the end-of-line force test matrix.
//
// A run sweeps every temperature of a Matrix (outer loop), every stroke
// position (inner loop) and every repeat (innermost loop). Each temperature
// is settled through a ThermalController and confirmed by the device before
// the robot moves and the load cell is sampled. Every sample becomes a Point
// evaluated against the pass criteria.
//
// Failures never trigger retries. With StopOnFailure the run ends at the
// first failing point; otherwise the whole matrix is executed and the
// Result carries a complete pass/fail map.
package sequencer
