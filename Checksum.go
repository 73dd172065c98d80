// Copyright 2021 Edgecast Inc

package icmpping

// Checksum returns the RFC 1071 Internet checksum of b
// https://tools.ietf.org/html/rfc1071
//
// Words are summed in network byte order. An odd trailing byte is treated
// as the high byte of a word padded with zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n&1 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum>>16 + sum&0xffff
	}
	return ^uint16(sum)
}
