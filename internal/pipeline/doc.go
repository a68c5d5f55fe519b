// Package pipeline drives a scan: it walks the target's ports, runs the
// per-port steps (state probe, then service detection for open ports) and
// streams each result to the caller.
//
// A port is processed by a Pipeline of Steps operating on a PortJob. The
// Orchestrator decides the order and pacing of ports and runs them either
// one at a time or through a BatchProcessor, a bounded worker pool built on
// errgroup.
//
// Design decision: We keep the step pipeline even though a port has only
// two steps because:
//  1. The state probe and detection stay independently testable
//  2. Cancellation is checked between steps in one place
//  3. Sequential and pooled runs execute exactly the same code per port
package pipeline
