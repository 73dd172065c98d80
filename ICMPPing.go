// Copyright 2021 Edgecast Inc

package icmpping

// This file contains the main Session data structure
// and New()

// A Session pings one IPv4 target from a single goroutine:
// build -> send -> wait for reply -> match -> record -> sleep
// The Session owns the Transport's socket and closes it when Run returns,
// whichever way Run returns.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	PdebugLevel = 11
)

var (
	ErrReplyRejected = errors.New("reply rejected")
	ErrForcedExit    = errors.New("forced exit")
)

// Sequence is the ICMP sequence number, which is only 16 bits on the wire
type Sequence uint16

// State is the SessionLoop state
type State int

const (
	StateRunning State = iota
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session holds the state of one ping run
type Session struct {
	Log        hclog.Logger
	Config     Config
	Host       string
	ID         uint16
	Transport  *Transport
	Canceler   *Canceler
	Reporter   *Reporter
	Metrics    *Metrics
	DebugLevel int

	stats   Statistics
	nextSeq Sequence
	state   State
	now     func() time.Time
}

// SessionID is the identifier written into every echo request
func SessionID() uint16 {
	return uint16(os.Getpid() & 0xffff)
}

// New creates a Session printing to stdout, without metrics
func New(logger hclog.Logger, config Config, host string, transport *Transport, canceler *Canceler) *Session {
	return NewFullConfig(logger, config, host, SessionID(), transport, canceler, &Reporter{W: os.Stdout}, nil, PdebugLevel)
}

// NewFullConfig creates a Session with the full set of configuration options
// A nil canceler gets a fresh one, so the session can still be cancelled through s.Canceler
func NewFullConfig(logger hclog.Logger, config Config, host string, id uint16, transport *Transport, canceler *Canceler, reporter *Reporter, metrics *Metrics, debugLevel int) *Session {

	if canceler == nil {
		canceler = NewCanceler()
	}

	return &Session{
		Log:        logger,
		Config:     config,
		Host:       host,
		ID:         id,
		Transport:  transport,
		Canceler:   canceler,
		Reporter:   reporter,
		Metrics:    metrics,
		DebugLevel: debugLevel,
		stats:      NewStatistics(),
		nextSeq:    config.SequenceStart,
		state:      StateRunning,
		now:        time.Now,
	}
}

// Open resolves host, opens the socket and returns a Session ready to Run
func Open(logger hclog.Logger, config Config, host string, resolver Resolver, canceler *Canceler, out io.Writer, metrics *Metrics) (*Session, error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = DefaultResolver
	}

	target, err := resolver.Resolve(host)
	if err != nil {
		return nil, err
	}

	transport, err := OpenTransport(logger, target, config)
	if err != nil {
		return nil, err
	}

	logger.Debug("Open session", "host", host, "target", target.String(), "port", config.Port, "privileged", config.Privileged)

	return NewFullConfig(logger, config, host, SessionID(), transport, canceler, &Reporter{W: out}, metrics, PdebugLevel), nil
}

// Target is the resolved address being pinged
func (s *Session) Target() string {
	return s.Transport.Target.String()
}

// Statistics returns a copy of the accumulated statistics
func (s *Session) Statistics() Statistics {
	return s.stats
}

// State returns the loop state. Only meaningful from the Run goroutine or after Run returned.
func (s *Session) State() State {
	return s.state
}
