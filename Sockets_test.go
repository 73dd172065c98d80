// Copyright 2021 Edgecast Inc

package icmpping

import (
	"errors"
	"net"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"inet.af/netaddr"
)

func newTestTransport(conn *fakeConn) *Transport {
	return NewTransport(hclog.Default(), conn, testTarget.IPAddr(), testTarget, conn.headerIncluded, DefaultPayloadSize)
}

// TestTransportSend checks write errors are returned and short writes are not
func TestTransportSend(t *testing.T) {
	conn := newFakeConn(respondNever)
	tr := newTestTransport(conn)

	if err := tr.Send(BuildICMPEchoRequest(testID, 0, DefaultPayloadSize)); err != nil {
		t.Fatalf("Send:%v", err)
	}

	conn.shortWrite = true
	if err := tr.Send(BuildICMPEchoRequest(testID, 1, DefaultPayloadSize)); err != nil {
		t.Errorf("short write returned err:%v", err)
	}

	conn.writeErr = errTestWrite
	err := tr.Send(BuildICMPEchoRequest(testID, 2, DefaultPayloadSize))
	if !errors.Is(err, ErrSend) {
		t.Errorf("write error err:%v, expected ErrSend", err)
	}

	if got := conn.sentSeqs(); len(got) != 2 {
		t.Errorf("sent:%v, expected 2 requests", got)
	}
}

// TestTransportReceiveWithin checks timeout, data and error paths
func TestTransportReceiveWithin(t *testing.T) {
	conn := newFakeConn(respondEcho)
	tr := newTestTransport(conn)

	dg, err := tr.ReceiveWithin(10 * time.Millisecond)
	if err != nil || dg != nil {
		t.Fatalf("empty socket dg:%v err:%v, expected timeout", dg, err)
	}

	before := time.Now()
	if err := tr.Send(BuildICMPEchoRequest(testID, 9, DefaultPayloadSize)); err != nil {
		t.Fatalf("Send:%v", err)
	}
	dg, err = tr.ReceiveWithin(time.Second)
	if err != nil || dg == nil {
		t.Fatalf("ReceiveWithin dg:%v err:%v", dg, err)
	}
	if len(dg.Bytes) != 20+64 {
		t.Errorf("datagram len:%d != 84", len(dg.Bytes))
	}
	if dg.Source != testTarget {
		t.Errorf("source:%s != %s", dg.Source, testTarget)
	}
	if dg.Received.Before(before) {
		t.Errorf("received:%s before send:%s", dg.Received, before)
	}
	if !conn.deadline.After(before) {
		t.Errorf("read deadline:%s not set", conn.deadline)
	}

	conn.readErr = errors.New("recvfrom: bad file descriptor")
	if _, err := tr.ReceiveWithin(time.Second); !errors.Is(err, ErrReceive) {
		t.Errorf("read error err:%v, expected ErrReceive", err)
	}
}

// TestTransportInterrupt checks the deadline is moved into the past
func TestTransportInterrupt(t *testing.T) {
	conn := newFakeConn(respondNever)
	tr := newTestTransport(conn)

	tr.Interrupt()
	if !conn.deadline.Before(time.Now()) {
		t.Errorf("Interrupt deadline:%s is not in the past", conn.deadline)
	}
}

// TestTransportReceiveAfterInterrupt checks a receive started after Interrupt
// does not wait, even though it sets its own deadline
func TestTransportReceiveAfterInterrupt(t *testing.T) {
	conn := newFakeConn(respondEcho)
	tr := newTestTransport(conn)

	if err := tr.Send(BuildICMPEchoRequest(testID, 0, DefaultPayloadSize)); err != nil {
		t.Fatalf("Send:%v", err)
	}
	tr.Interrupt()

	dg, err := tr.ReceiveWithin(time.Hour)
	if err != nil || dg != nil {
		t.Errorf("ReceiveWithin after Interrupt dg:%v err:%v, expected an immediate nil", dg, err)
	}
	if !conn.deadline.After(time.Now()) {
		t.Errorf("deadline:%s, expected ReceiveWithin to set its own", conn.deadline)
	}
}

// TestTransportClose checks Close can be called more than once
func TestTransportClose(t *testing.T) {
	conn := newFakeConn(respondNever)
	tr := newTestTransport(conn)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close:%v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close:%v", err)
	}
	if conn.closes != 1 {
		t.Errorf("conn closed %d times", conn.closes)
	}
}

// TestTransportBuffer checks large payloads fit the receive buffer
func TestTransportBuffer(t *testing.T) {
	tr := NewTransport(hclog.Default(), newFakeConn(respondNever), testTarget.IPAddr(), testTarget, true, 4000)
	if len(tr.buf) < 60+ICMPHeaderLen+4000 {
		t.Errorf("buffer:%d too small for 4000 byte payload", len(tr.buf))
	}
	tr = newTestTransport(newFakeConn(respondNever))
	if len(tr.buf) != ReceiveBufferMin {
		t.Errorf("buffer:%d != %d", len(tr.buf), ReceiveBufferMin)
	}
}

// TestOpenTransportRejectsNonIPv4 fails before any socket is opened
func TestOpenTransportRejectsNonIPv4(t *testing.T) {
	for _, ip := range []netaddr.IP{{}, netaddr.MustParseIP("::1")} {
		if _, err := OpenTransport(hclog.Default(), ip, DefaultConfig()); !errors.Is(err, ErrResolve) {
			t.Errorf("OpenTransport(%q) err:%v, expected ErrResolve", ip.String(), err)
		}
	}
}

// TestAddrIP checks both socket address types
func TestAddrIP(t *testing.T) {
	for _, addr := range []net.Addr{
		&net.IPAddr{IP: net.IPv4(10, 1, 2, 3)},
		&net.UDPAddr{IP: net.IPv4(10, 1, 2, 3)},
	} {
		ip, ok := addrIP(addr)
		if !ok || ip != netaddr.IPv4(10, 1, 2, 3) {
			t.Errorf("addrIP(%T):%s ok:%t", addr, ip, ok)
		}
	}
	if _, ok := addrIP(&net.TCPAddr{}); ok {
		t.Errorf("addrIP accepted a TCP address")
	}
}

// TestHackSysctlNotRoot must not run sysctl for other users
func TestHackSysctlNotRoot(t *testing.T) {
	if HackSysctl(hclog.Default(), 1000) {
		t.Errorf("HackSysctl succeeded for a non root user")
	}
}
