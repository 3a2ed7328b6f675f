// Package device runs one vehicle's messaging runtime.
//
// Ownership boundary:
// - the dispatch goroutine, which alone owns the peer registry and every exchange
// - the serial link lifecycle (open, register, read loop, close)
// - capture, transcription and speech workers, which report back over a channel
//
// Callers interact through Service methods; each one is executed on the dispatch
// goroutine so no exchange state is shared across goroutines.
package device
