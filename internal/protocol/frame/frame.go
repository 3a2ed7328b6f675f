package frame

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the one-byte selector at the start of every line.
type Kind byte

const (
	KindRegister    Kind = '0'
	KindMessage     Kind = '2'
	KindPeerListing Kind = '3'
	KindAck         Kind = '4'
)

const (
	separator     = ","
	terminator    = '\n'
	ackSuccess    = "1"
	ackFailure    = "0"
	replacementCh = "\uFFFD"
)

var (
	ErrDecode           = errors.New("frame: decode failed")
	ErrEmptyLine        = fmt.Errorf("%w: empty line", ErrDecode)
	ErrUnknownKind      = fmt.Errorf("%w: unknown kind", ErrDecode)
	ErrMissingSeparator = fmt.Errorf("%w: missing separator", ErrDecode)

	ErrEncode      = errors.New("frame: encode failed")
	ErrInvalidPeer = fmt.Errorf("%w: invalid peer id", ErrEncode)
	ErrInvalidText = fmt.Errorf("%w: invalid text", ErrEncode)
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindMessage:
		return "message"
	case KindPeerListing:
		return "peer_listing"
	case KindAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the four kinds this codec handles.
func (k Kind) Valid() bool {
	switch k {
	case KindRegister, KindMessage, KindPeerListing, KindAck:
		return true
	}
	return false
}

// Frame is one decoded protocol unit. Which fields carry meaning depends on Kind:
// Register uses Peer, Message uses Peer and Text, PeerListing uses Peers, Ack uses
// Peer and Success.
type Frame struct {
	Kind    Kind
	Peer    string
	Text    string
	Peers   []string
	Success bool
}

func Register(peer string) Frame {
	return Frame{Kind: KindRegister, Peer: peer}
}

func Message(peer, text string) Frame {
	return Frame{Kind: KindMessage, Peer: peer, Text: text}
}

func PeerListing(peers []string) Frame {
	out := make([]string, len(peers))
	copy(out, peers)
	return Frame{Kind: KindPeerListing, Peers: out}
}

func Ack(peer string, success bool) Frame {
	return Frame{Kind: KindAck, Peer: peer, Success: success}
}

// Encode renders f as a single line including the trailing '\n'.
func Encode(f Frame) ([]byte, error) {
	var b strings.Builder
	b.WriteByte(byte(f.Kind))
	switch f.Kind {
	case KindRegister:
		if err := validatePeer(f.Peer); err != nil {
			return nil, err
		}
		b.WriteString(f.Peer)
	case KindMessage:
		if err := validatePeer(f.Peer); err != nil {
			return nil, err
		}
		if strings.ContainsAny(f.Text, "\r\n") {
			return nil, fmt.Errorf("%w: line terminator in text", ErrInvalidText)
		}
		b.WriteString(f.Peer)
		b.WriteString(separator)
		b.WriteString(f.Text)
	case KindPeerListing:
		for i, p := range f.Peers {
			if err := validatePeer(p); err != nil {
				return nil, fmt.Errorf("peers[%d]: %w", i, err)
			}
		}
		b.WriteString(strings.Join(f.Peers, separator))
	case KindAck:
		if err := validatePeer(f.Peer); err != nil {
			return nil, err
		}
		b.WriteString(f.Peer)
		b.WriteString(separator)
		if f.Success {
			b.WriteString(ackSuccess)
		} else {
			b.WriteString(ackFailure)
		}
	default:
		return nil, fmt.Errorf("%w: kind=%q", ErrEncode, byte(f.Kind))
	}
	b.WriteByte(terminator)
	return []byte(b.String()), nil
}

// Decode parses one line. A single trailing "\n" and "\r" are ignored and invalid
// UTF-8 is replaced rather than rejected. Every failure wraps ErrDecode.
func Decode(line []byte) (Frame, error) {
	s := strings.ToValidUTF8(string(line), replacementCh)
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	if s == "" {
		return Frame{}, ErrEmptyLine
	}

	kind, payload := Kind(s[0]), s[1:]
	switch kind {
	case KindRegister:
		return Register(payload), nil
	case KindMessage:
		peer, text, ok := strings.Cut(payload, separator)
		if !ok {
			return Frame{}, ErrMissingSeparator
		}
		return Message(peer, text), nil
	case KindPeerListing:
		if payload == "" {
			return Frame{Kind: KindPeerListing, Peers: []string{}}, nil
		}
		return Frame{Kind: KindPeerListing, Peers: strings.Split(payload, separator)}, nil
	case KindAck:
		peer, status, ok := strings.Cut(payload, separator)
		if !ok {
			return Frame{}, ErrMissingSeparator
		}
		return Ack(peer, status == ackSuccess), nil
	default:
		return Frame{}, fmt.Errorf("%w: selector=%q", ErrUnknownKind, s[0])
	}
}

func validatePeer(peer string) error {
	if peer == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPeer)
	}
	if strings.ContainsAny(peer, ",\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidPeer, peer)
	}
	return nil
}
