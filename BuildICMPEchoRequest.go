// Copyright 2021 Edgecast Inc

package icmpping

import (
	"encoding/binary"

	"golang.org/x/net/ipv4"
)

const (
	ICMPHeaderLen      = 8
	DefaultPayloadSize = 56

	ICMPTypeEchoRequest = uint8(ipv4.ICMPTypeEcho)
	ICMPTypeEchoReply   = uint8(ipv4.ICMPTypeEchoReply)
)

// BuildICMPEchoRequest returns an echo request with a zero-filled payload of
// payloadSize bytes, ready to be written to the socket
func BuildICMPEchoRequest(id uint16, seq Sequence, payloadSize int) []byte {
	if payloadSize < 0 {
		payloadSize = 0
	}
	return MarshalICMPEcho(ICMPTypeEchoRequest, id, seq, make([]byte, payloadSize))
}

// MarshalICMPEcho lays out an echo header (request or reply) in front of
// payload and fills in the checksum.
// The checksum covers header and payload, and is computed with the field zeroed.
func MarshalICMPEcho(typ uint8, id uint16, seq Sequence, payload []byte) []byte {
	b := make([]byte, ICMPHeaderLen+len(payload))
	b[0] = typ
	b[1] = 0
	binary.BigEndian.PutUint16(b[2:4], 0)
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], uint16(seq))
	copy(b[ICMPHeaderLen:], payload)

	binary.BigEndian.PutUint16(b[2:4], Checksum(b))
	return b
}

// IPv4
// https://tools.ietf.org/html/rfc792#page-14

// Echo or Echo Reply Message

//    0                   1                   2                   3
//    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//    +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//    |     Type      |     Code      |          Checksum             |
//    +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//    |           Identifier          |        Sequence Number        |
//    +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//    |     Data ...
//    +-+-+-+-+-
