// Copyright 2021 Edgecast Inc

package icmpping

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPort     = 7
	DefaultInterval = time.Second
	DefaultTimeout  = time.Second
	DefaultTTL      = 64

	// CountUnbounded keeps the session running until it is cancelled
	CountUnbounded = -1

	MaxPayloadSize = 65507 - ICMPHeaderLen
)

var ErrInvalidConfig = errors.New("invalid config")

// Strictness decides which rejected replies end the session.
//
//	verdict          relaxed      default        strict
//	too short        drop         fatal          fatal
//	malformed        drop         fatal          fatal
//	bad checksum     drop         drop           drop
//	not echo reply   drop         drop           drop
//	id mismatch      drop         drop           fatal
//	seq mismatch     unchecked    drop and log   fatal
type Strictness int

const (
	StrictnessRelaxed Strictness = iota
	StrictnessDefault
	StrictnessStrict
)

func (s Strictness) String() string {
	switch s {
	case StrictnessRelaxed:
		return "relaxed"
	case StrictnessDefault:
		return "default"
	case StrictnessStrict:
		return "strict"
	default:
		return fmt.Sprintf("strictness(%d)", int(s))
	}
}

// ParseStrictness is the inverse of Strictness.String
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relaxed":
		return StrictnessRelaxed, nil
	case "", "default":
		return StrictnessDefault, nil
	case "strict":
		return StrictnessStrict, nil
	}
	return StrictnessDefault, fmt.Errorf("%w: unknown strictness %q", ErrInvalidConfig, s)
}

// CheckSeq reports whether sequence numbers are compared at all
func (s Strictness) CheckSeq() bool {
	return s != StrictnessRelaxed
}

// IsFatal reports whether a datagram with verdict v should end the session
func (s Strictness) IsFatal(v Verdict) bool {
	switch v {
	case VerdictTooShort, VerdictMalformed:
		return s != StrictnessRelaxed
	case VerdictIDMismatch, VerdictSeqMismatch:
		return s == StrictnessStrict
	default:
		return false
	}
}

// Config holds the session settings
type Config struct {
	// Port is carried for command line compatibility. ICMP has no ports.
	Port          int
	Interval      time.Duration
	Count         int
	Timeout       time.Duration
	PayloadSize   int
	TTL           int
	SequenceStart Sequence
	Strictness    Strictness
	// Privileged selects raw "ip4:icmp" sockets, otherwise "udp4" datagram ICMP sockets
	Privileged bool
}

// DefaultConfig returns the classic ping defaults
func DefaultConfig() Config {
	return Config{
		Port:        DefaultPort,
		Interval:    DefaultInterval,
		Count:       CountUnbounded,
		Timeout:     DefaultTimeout,
		PayloadSize: DefaultPayloadSize,
		TTL:         DefaultTTL,
		Strictness:  StrictnessDefault,
		Privileged:  true,
	}
}

// Validate checks the ranges of the config fields
func (c Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval %s < 0", ErrInvalidConfig, c.Interval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout %s <= 0", ErrInvalidConfig, c.Timeout)
	}
	if c.Count < CountUnbounded {
		return fmt.Errorf("%w: invalid count of packets to transmit: %d", ErrInvalidConfig, c.Count)
	}
	if c.PayloadSize < 0 || c.PayloadSize > MaxPayloadSize {
		return fmt.Errorf("%w: payload size %d not in [0,%d]", ErrInvalidConfig, c.PayloadSize, MaxPayloadSize)
	}
	if c.TTL < 1 || c.TTL > 255 {
		return fmt.Errorf("%w: ttl %d not in [1,255]", ErrInvalidConfig, c.TTL)
	}
	if c.Strictness < StrictnessRelaxed || c.Strictness > StrictnessStrict {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Strictness)
	}
	return nil
}
