// Package protocol owns the serial wire contract shared with the radio bridge.
//
// Ownership boundary:
// - frame kinds and their line encoding (protocol/frame)
//
// The wire is one frame per line, UTF-8, terminated by '\n'. The first byte
// selects the frame kind and the remainder is the payload:
//
//	0<peer>                 register the local vehicle id
//	2<peer>,<text>          voice message to/from a peer
//	3<peer>,<peer>,...      reachable peer listing (possibly empty)
//	4<peer>,<status>        delivery acknowledgement, status '1' = success
package protocol
