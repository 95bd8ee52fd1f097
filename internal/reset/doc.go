// Package reset holds the reset scheduling core: next-occurrence math for
// daily and weekly events, half-open reminder windows, and the in-memory
// dedup state machine that lets each occurrence fire exactly once while the
// scheduler polls on a short interval.
//
// Everything here is pure or single-owner. The scheduler package owns the
// DedupState and drives it once per tick; persistence and delivery live
// elsewhere.
package reset
