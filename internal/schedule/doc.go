// Package schedule owns the weekly session schedule: parsing user
// day/time tokens into slots, the per-guild schedule store with its
// durable JSON file, the fired-slot set that guarantees at most one
// session per guild per minute, and the poller that compares wall clock
// against the store on a fixed tick.
//
// A slot is recurring: firing never consumes it, it fires again on the
// next week's occurrence.
package schedule
