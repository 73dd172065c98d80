// Copyright 2021 Edgecast Inc

package icmpping

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/net/ipv4"
	"inet.af/netaddr"
)

var (
	ErrMessageTooShort = errors.New("message too short")

	errNotIPv4          = errors.New("not an IPv4 header")
	errBadIPv4HeaderLen = errors.New("invalid IPv4 header length")
)

// Verdict is the outcome of matching a received datagram against the
// outstanding echo request
type Verdict int

const (
	VerdictMatch Verdict = iota
	VerdictTooShort
	VerdictMalformed
	VerdictBadChecksum
	VerdictNotEchoReply
	VerdictIDMismatch
	VerdictSeqMismatch
)

func (v Verdict) String() string {
	switch v {
	case VerdictMatch:
		return "match"
	case VerdictTooShort:
		return "too_short"
	case VerdictMalformed:
		return "malformed"
	case VerdictBadChecksum:
		return "bad_checksum"
	case VerdictNotEchoReply:
		return "not_echo_reply"
	case VerdictIDMismatch:
		return "id_mismatch"
	case VerdictSeqMismatch:
		return "seq_mismatch"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ICMPEchoReply is the parsed view of a received datagram.
// It is copied out of the receive buffer, but Payload still points into it.
type ICMPEchoReply struct {
	Type       uint8
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Seq        Sequence
	Source     netaddr.IP
	TTL        int // -1 when the IPv4 header was stripped by the kernel
	Len        int // ICMP message length, header included
	Payload    []byte
}

// Expectation describes the echo request a reply must answer
type Expectation struct {
	ID       uint16
	Seq      Sequence
	CheckID  bool
	CheckSeq bool
}

// IPv4HeaderLen reads the header length from the IHL field of the IPv4 header
// at the start of b. IPv4 headers carry options, so this is never assumed to be 20.
func IPv4HeaderLen(b []byte) (int, error) {
	if len(b) < ipv4.HeaderLen {
		return 0, ErrMessageTooShort
	}
	if b[0]>>4 != ipv4.Version {
		return 0, errNotIPv4
	}
	hl := int(b[0]&0x0f) << 2
	if hl < ipv4.HeaderLen {
		return 0, errBadIPv4HeaderLen
	}
	if len(b) < hl {
		return 0, ErrMessageTooShort
	}
	return hl, nil
}

func readUint8(b []byte, off int) (uint8, error) {
	if off < 0 || off >= len(b) {
		return 0, ErrMessageTooShort
	}
	return b[off], nil
}

func readUint16(b []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, ErrMessageTooShort
	}
	return binary.BigEndian.Uint16(b[off : off+2]), nil
}

// ParseICMPEchoReply extracts the ICMP echo fields from b.
// headerIncluded says whether b starts with the IPv4 header (raw sockets) or
// directly with the ICMP message (unprivileged datagram sockets).
//
// b must hold at least the network header plus an 8 byte ICMP header.
func ParseICMPEchoReply(b []byte, headerIncluded bool) (*ICMPEchoReply, error) {

	er := &ICMPEchoReply{TTL: -1}

	var off int
	if headerIncluded {
		hl, err := IPv4HeaderLen(b)
		if err != nil {
			return nil, err
		}
		ttl, err := readUint8(b, 8)
		if err != nil {
			return nil, err
		}
		er.TTL = int(ttl)
		off = hl
	}

	if len(b) < off+ICMPHeaderLen {
		return nil, ErrMessageTooShort
	}

	var err error
	if er.Type, err = readUint8(b, off); err != nil {
		return nil, err
	}
	if er.Code, err = readUint8(b, off+1); err != nil {
		return nil, err
	}
	if er.Checksum, err = readUint16(b, off+2); err != nil {
		return nil, err
	}
	if er.Identifier, err = readUint16(b, off+4); err != nil {
		return nil, err
	}
	seq, err := readUint16(b, off+6)
	if err != nil {
		return nil, err
	}
	er.Seq = Sequence(seq)
	er.Len = len(b) - off
	er.Payload = b[off+ICMPHeaderLen:]

	return er, nil
}

// MatchICMPEchoReply parses b and compares it with want.
// The reply is returned whenever parsing succeeded, so callers can report
// what was received even on a mismatch.
func MatchICMPEchoReply(b []byte, src netaddr.IP, headerIncluded bool, want Expectation) (*ICMPEchoReply, Verdict) {

	er, err := ParseICMPEchoReply(b, headerIncluded)
	if err != nil {
		if errors.Is(err, ErrMessageTooShort) {
			return nil, VerdictTooShort
		}
		return nil, VerdictMalformed
	}
	er.Source = src

	icmpStart := len(b) - er.Len
	if Checksum(b[icmpStart:]) != 0 {
		return er, VerdictBadChecksum
	}

	if er.Type != ICMPTypeEchoReply {
		return er, VerdictNotEchoReply
	}

	if want.CheckID && er.Identifier != want.ID {
		return er, VerdictIDMismatch
	}

	if want.CheckSeq && er.Seq != want.Seq {
		return er, VerdictSeqMismatch
	}

	return er, VerdictMatch
}
