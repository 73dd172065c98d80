// Copyright 2021 Edgecast Inc

package icmpping

import (
	"fmt"
	"io"
)

// Reporter writes the console lines of a session
type Reporter struct {
	W io.Writer
}

// Start writes the startup line
func (r *Reporter) Start(host string, target string, payloadSize int) {
	if r == nil || r.W == nil {
		return
	}
	fmt.Fprintf(r.W, "PING %s (%s): %d data bytes\n", host, target, payloadSize)
}

// Reply writes one line per matched echo reply
func (r *Reporter) Reply(er *ICMPEchoReply, rttMillis float64) {
	if r == nil || r.W == nil {
		return
	}
	if er.TTL >= 0 {
		fmt.Fprintf(r.W, "%d bytes from %s: icmp_seq=%d ttl=%d time=%.3f ms\n", er.Len, er.Source.String(), er.Seq, er.TTL, rttMillis)
		return
	}
	fmt.Fprintf(r.W, "%d bytes from %s: icmp_seq=%d time=%.3f ms\n", er.Len, er.Source.String(), er.Seq, rttMillis)
}

// Summary writes the closing statistics block.
// The round-trip line is left out when nothing was received.
func (r *Reporter) Summary(host string, sum Summary) {
	if r == nil || r.W == nil {
		return
	}
	fmt.Fprintf(r.W, "\n--- %s ping statistics ---\n", host)
	fmt.Fprintf(r.W, "%d packets transmitted, %d packets received, %.1f%% packet loss\n",
		sum.Transmitted, sum.Received, sum.LossPercent)
	if sum.HasRTT {
		fmt.Fprintf(r.W, "round-trip min/avg/max/stddev = %.3f/%.3f/%.3f/%.3f ms\n",
			sum.Min, sum.Avg, sum.Max, sum.StdDev)
	}
}
