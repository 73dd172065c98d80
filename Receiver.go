// Copyright 2021 Edgio Inc

package icmpping

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"inet.af/netaddr"
)

// Datagram is one received packet. Bytes points into the Transport's
// receive buffer and is only valid until the next ReceiveWithin.
type Datagram struct {
	Bytes    []byte
	Source   netaddr.IP
	Received time.Time
}

// ReceiveWithin blocks until a datagram arrives or timeout elapses.
// A timeout returns a nil Datagram and a nil error, and so does any call
// after Interrupt.
func (t *Transport) ReceiveWithin(timeout time.Duration) (*Datagram, error) {

	if err := t.Conn.SetReadDeadline(t.now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: SetReadDeadline %v", ErrReceive, err)
	}
	// checked after our deadline is set, an Interrupt racing with it either
	// shows here or sets its past deadline after ours
	if atomic.LoadInt32(&t.interrupted) != 0 {
		return nil, nil
	}

	n, peer, err := t.Conn.ReadFrom(t.buf) // <------------------------- ReadFrom (blocking until timeout)
	received := t.now()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if t.DebugLevel > 100 {
				t.Log.Info(fmt.Sprintf("Transport [%s] ReadFrom timeout:%s", t.Target.String(), timeout.String()))
			}
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrReceive, err)
	}

	src, _ := addrIP(peer)
	if t.DebugLevel > 1000 {
		t.Log.Info(fmt.Sprintf("Transport ReadFrom n:%d \t peer:%s", n, src.String()))
	}
	return &Datagram{Bytes: t.buf[:n], Source: src, Received: received}, nil
}

// Interrupt wakes up a blocked ReceiveWithin and makes later ones return at once
func (t *Transport) Interrupt() {
	atomic.StoreInt32(&t.interrupted, 1)
	if err := t.Conn.SetReadDeadline(time.Unix(1, 0)); err != nil {
		t.Log.Debug("Transport Interrupt SetReadDeadline", "error", err)
	}
}

// addrIP pulls the IP out of the address types the ICMP sockets return
func addrIP(addr net.Addr) (netaddr.IP, bool) {
	switch a := addr.(type) {
	case *net.IPAddr:
		return netaddr.FromStdIP(a.IP)
	case *net.UDPAddr:
		return netaddr.FromStdIP(a.IP)
	}
	return netaddr.IP{}, false
}
