// Package logx wraps zerolog behind a small Logger value that stays "live"
// across runtime config changes.
//
// The Service owns the sink fanout (console, file, Discord log channel) and
// swaps the root logger atomically when Apply() is called, so every Logger
// handed out earlier picks up the new level and sinks without re-plumbing.
package logx
