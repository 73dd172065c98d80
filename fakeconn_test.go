// Copyright 2021 Edgecast Inc

package icmpping

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"golang.org/x/net/ipv4"
	"inet.af/netaddr"
)

const (
	testDebugLevel int    = 11
	testID         uint16 = 0x1234
	testHost              = "localhost"
)

var testTarget = netaddr.MustParseIP("127.0.0.1")

// responder decides what the fakeConn sends back for each echo request
type responder int

const (
	respondEcho responder = iota
	respondNever
	respondWrongID
	respondWrongSeq
	respondShort
	respondRequestThenEcho // what a raw socket sees on loopback
	respondWithIPOptions
)

// fakeConn is a PacketConn with a simulated responder behind it.
// Reads on an empty queue time out at once, or wait for the read deadline
// when blockReads is set.
type fakeConn struct {
	mu             sync.Mutex
	responder      responder
	headerIncluded bool
	queue          [][]byte
	seqs           []Sequence
	closed         bool
	closes         int
	deadline       time.Time
	writeErr       error
	readErr        error
	shortWrite     bool
	blockReads     bool

	onWrite    func(seq Sequence)
	onRead     func()
	onDeadline func()
}

func newFakeConn(r responder) *fakeConn {
	return &fakeConn{responder: r, headerIncluded: true}
}

func (f *fakeConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, net.ErrClosed
	}
	if f.writeErr != nil {
		f.mu.Unlock()
		return 0, f.writeErr
	}

	id := binary.BigEndian.Uint16(b[4:6])
	seq := Sequence(binary.BigEndian.Uint16(b[6:8]))
	payload := append([]byte(nil), b[ICMPHeaderLen:]...)
	f.seqs = append(f.seqs, seq)

	switch f.responder {
	case respondEcho:
		f.queue = append(f.queue, f.wrap(MarshalICMPEcho(ICMPTypeEchoReply, id, seq, payload), 0))
	case respondWrongID:
		f.queue = append(f.queue, f.wrap(MarshalICMPEcho(ICMPTypeEchoReply, id+1, seq, payload), 0))
	case respondWrongSeq:
		f.queue = append(f.queue, f.wrap(MarshalICMPEcho(ICMPTypeEchoReply, id, seq+100, payload), 0))
	case respondShort:
		f.queue = append(f.queue, f.wrap(MarshalICMPEcho(ICMPTypeEchoReply, id, seq, payload), 0)[:ipv4.HeaderLen+4])
	case respondRequestThenEcho:
		f.queue = append(f.queue, f.wrap(append([]byte(nil), b...), 0))
		f.queue = append(f.queue, f.wrap(MarshalICMPEcho(ICMPTypeEchoReply, id, seq, payload), 0))
	case respondWithIPOptions:
		f.queue = append(f.queue, f.wrap(MarshalICMPEcho(ICMPTypeEchoReply, id, seq, payload), 2))
	}

	n := len(b)
	if f.shortWrite {
		n--
	}
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		hook(seq)
	}
	return n, nil
}

func (f *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	f.mu.Lock()
	hook := f.onRead
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return 0, nil, net.ErrClosed
		}
		if f.readErr != nil {
			f.mu.Unlock()
			return 0, nil, f.readErr
		}
		if len(f.queue) > 0 {
			d := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()
			n := copy(b, d)
			return n, testTarget.IPAddr(), nil
		}
		if !f.blockReads || !time.Now().Before(f.deadline) {
			f.mu.Unlock()
			return 0, nil, os.ErrDeadlineExceeded
		}
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeConn) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	hook := f.onDeadline
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.closed {
		return net.ErrClosed
	}
	f.closed = true
	return nil
}

func (f *fakeConn) sentSeqs() []Sequence {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sequence(nil), f.seqs...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// wrap prepends an IPv4 header with optionWords 32 bit words of options,
// unless the conn models a datagram socket that strips it
func (f *fakeConn) wrap(msg []byte, optionWords int) []byte {
	if !f.headerIncluded {
		return msg
	}
	return ipv4Datagram(msg, testTarget, optionWords, 64)
}

// ipv4Datagram builds IPv4 header + msg the way a raw socket delivers it
func ipv4Datagram(msg []byte, src netaddr.IP, optionWords int, ttl int) []byte {
	hl := ipv4.HeaderLen + optionWords*4
	b := make([]byte, hl+len(msg))
	b[0] = byte(ipv4.Version<<4 | hl>>2)
	binary.BigEndian.PutUint16(b[2:4], uint16(len(b)))
	b[8] = byte(ttl)
	b[9] = ProtocolICMP
	src4 := src.As4()
	copy(b[12:16], src4[:])
	copy(b[16:20], []byte{127, 0, 0, 1})
	for i := ipv4.HeaderLen; i < hl; i++ {
		b[i] = 1 // NOP option
	}
	copy(b[hl:], msg)
	return b
}

// newTestSession builds a Session on top of conn
func newTestSession(t *testing.T, conn *fakeConn, config Config, out io.Writer, canceler *Canceler, metrics *Metrics) *Session {
	t.Helper()

	logger := hclog.Default()

	var dst net.Addr = testTarget.IPAddr()
	if !conn.headerIncluded {
		dst = &net.UDPAddr{IP: testTarget.IPAddr().IP}
	}
	if out == nil {
		out = &bytes.Buffer{}
	}
	transport := NewTransport(logger, conn, dst, testTarget, conn.headerIncluded, config.PayloadSize)
	return NewFullConfig(logger, config, testHost, testID, transport, canceler, &Reporter{W: out}, metrics, testDebugLevel)
}

// testConfig is DefaultConfig without the waiting
func testConfig(count int) Config {
	config := DefaultConfig()
	config.Count = count
	config.Interval = 0
	config.Timeout = 50 * time.Millisecond
	return config
}

var errTestWrite = errors.New("sendto: network is unreachable")
