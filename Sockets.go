// Copyright 2021 Edgecast Inc

package icmpping

// Sockets holds the Transport and its OpenTransport/Close/Send functions
// The receive side is in Receiver.go

// Raw "ip4:icmp" sockets need root or CAP_NET_RAW.
// The unprivileged alternative is IPPROTO_ICMP datagram sockets
// https://lwn.net/Articles/422330/
//
// sudo sysctl -w net.ipv4.ping_group_range="0 2147483647"

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/go-cmd/cmd"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"inet.af/netaddr"
)

const (
	ProtocolICMP = 1 // Internet Control Message

	OpenSocketsRetriesCst = 2

	// grown when 60 (max IPv4 header) + ICMP header + payload does not fit
	ReceiveBufferMin = 1500

	SdebugLevel = 11
)

var (
	ErrSocketCreate = errors.New("socket create failed")
	ErrSend         = errors.New("send failed")
	ErrReceive      = errors.New("receive failed")
)

// PacketConn is the part of the socket the Transport needs.
// *icmp.PacketConn satisfies it directly; raw sockets go through rawConn.
type PacketConn interface {
	WriteTo(b []byte, dst net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Transport owns the socket of a session
type Transport struct {
	Log            hclog.Logger
	Conn           PacketConn
	Dst            net.Addr
	Target         netaddr.IP
	HeaderIncluded bool
	DebugLevel     int

	buf         []byte
	now         func() time.Time
	interrupted int32 // atomic, set by Interrupt
	closeOnce   sync.Once
	closeErr    error
}

// rawConn adapts ipv4.RawConn to PacketConn.
// Reads return the whole datagram, IPv4 header first.
type rawConn struct {
	rc  *ipv4.RawConn
	ttl int
}

func (r *rawConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	ipAddr, ok := dst.(*net.IPAddr)
	if !ok {
		return 0, fmt.Errorf("rawConn WriteTo unsupported address type %T", dst)
	}
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(b),
		TTL:      r.ttl,
		Protocol: ProtocolICMP,
		Dst:      ipAddr.IP,
	}
	if err := r.rc.WriteTo(h, b, nil); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (r *rawConn) ReadFrom(b []byte) (int, net.Addr, error) {
	h, p, _, err := r.rc.ReadFrom(b)
	if err != nil {
		return 0, nil, err
	}
	// header and payload are consecutive slices of b
	return h.Len + len(p), &net.IPAddr{IP: h.Src}, nil
}

func (r *rawConn) SetReadDeadline(t time.Time) error {
	return r.rc.SetReadDeadline(t)
}

func (r *rawConn) Close() error {
	return r.rc.Close()
}

// NewTransport wraps an already open conn.
// headerIncluded must be true when conn delivers the IPv4 header with each datagram.
func NewTransport(logger hclog.Logger, conn PacketConn, dst net.Addr, target netaddr.IP, headerIncluded bool, payloadSize int) *Transport {
	bufLen := ReceiveBufferMin
	if need := 60 + ICMPHeaderLen + payloadSize; need > bufLen {
		bufLen = need
	}
	return &Transport{
		Log:            logger,
		Conn:           conn,
		Dst:            dst,
		Target:         target,
		HeaderIncluded: headerIncluded,
		DebugLevel:     SdebugLevel,
		buf:            make([]byte, bufLen),
		now:            time.Now,
	}
}

// OpenTransport opens the ICMP socket for target
// Privileged opens a raw socket, otherwise a "udp4" ICMP datagram socket,
// retrying once after HackSysctl when running as root.
func OpenTransport(logger hclog.Logger, target netaddr.IP, config Config) (*Transport, error) {

	if target.IsZero() || !target.Is4() {
		return nil, fmt.Errorf("%w: %q is not a resolved IPv4 address", ErrResolve, target.String())
	}

	if config.Privileged {
		c, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				logger.Error("raw ICMP sockets need root or CAP_NET_RAW, or try --unprivileged")
			}
			return nil, fmt.Errorf("%w: %v", ErrSocketCreate, err)
		}
		rc, err := ipv4.NewRawConn(c)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: %v", ErrSocketCreate, err)
		}
		logger.Debug("OpenTransport raw socket open", "local", c.LocalAddr().String())
		conn := &rawConn{rc: rc, ttl: config.TTL}
		return NewTransport(logger, conn, target.IPAddr(), target, true, config.PayloadSize), nil
	}

	var sockErr error
	for retries := 0; retries < OpenSocketsRetriesCst; retries++ {
		var c *icmp.PacketConn
		c, sockErr = icmp.ListenPacket("udp4", "0.0.0.0")
		if sockErr != nil {
			if retries == 0 && HackSysctl(logger, os.Geteuid()) {
				continue
			}
			break
		}
		if err := c.IPv4PacketConn().SetTTL(config.TTL); err != nil {
			logger.Warn("OpenTransport SetTTL failed", "ttl", config.TTL, "error", err)
		}
		logger.Debug(fmt.Sprintf("OpenTransport udp4 socket open \t retries:%d", retries), "local", c.LocalAddr().String())
		dst := &net.UDPAddr{IP: target.IPAddr().IP}
		return NewTransport(logger, c, dst, target, false, config.PayloadSize), nil
	}

	logger.Error("Please run: sudo sysctl -w net.ipv4.ping_group_range=\"0 2147483647\"")
	return nil, fmt.Errorf("%w: %v", ErrSocketCreate, sockErr)
}

// Send writes one packet to the destination.
// A short write is only logged, any socket error is returned.
func (t *Transport) Send(wb []byte) error {

	bw, err := t.Conn.WriteTo(wb, t.Dst) // ----------------------------<< WriteTo ( Sends packet to the kernel )
	if err != nil {
		return fmt.Errorf("%w: [%s] %v", ErrSend, t.Target.String(), err)
	}
	if bw != len(wb) {
		t.Log.Warn("Transport WriteTo short write", "target", t.Target.String(), "written", bw, "len", len(wb))
	}
	if t.DebugLevel > 100 {
		t.Log.Info(fmt.Sprintf("Transport [%s] WriteTo bytes written:%d \t len(wb):%d", t.Target.String(), bw, len(wb)))
	}
	return nil
}

// Close releases the socket. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.Conn.Close()
		if t.DebugLevel > 10 {
			t.Log.Debug("Transport socket closed", "target", t.Target.String(), "error", t.closeErr)
		}
	})
	return t.closeErr
}

// HackSysctl does sysctl -w net.ipv4.ping_group_range=0 2147483647
// so udp4 ICMP sockets can be opened. This requires root.
func HackSysctl(logger hclog.Logger, eid int) (success bool) {
	if eid != 0 {
		return success
	}
	// No need quote the same way as you do from bash
	sysctlCmd := cmd.NewCmd(`sysctl`, `-w`, `net.ipv4.ping_group_range=0 2147483647`)
	status := <-sysctlCmd.Start()
	for _, line := range status.Stdout {
		logger.Debug(fmt.Sprintf("HackSysctl line:%s", line))
	}
	if status.Error != nil || status.Exit != 0 {
		logger.Warn("HackSysctl failed", "exit", status.Exit, "error", status.Error)
		return success
	}
	success = true
	return success
}
