// Package exchange holds the per-message state machines.
//
// Ownership boundary:
// - Outgoing: peer selection -> capture -> transcription -> send -> ack
// - Incoming: announcement -> accept/reject -> speech
//
// Machines here are plain values with checked transitions. They do no I/O; the
// device service drives them from its dispatch goroutine and runs capture, STT and
// TTS in worker tasks.
package exchange
