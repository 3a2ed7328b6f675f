// Package link owns the serial connection to the radio bridge.
//
// Ownership boundary:
// - opening and releasing the port (exactly once)
// - the blocking read loop that frames bytes into lines and lines into frames
// - the single serialized write path shared by every sender
//
// Malformed lines never leave this package; they are logged at debug level and
// counted. Stopping is driven only by the context passed to Run.
package link
