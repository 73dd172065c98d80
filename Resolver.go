// Copyright 2021 Edgecast Inc

package icmpping

import (
	"errors"
	"fmt"
	"net"

	"inet.af/netaddr"
)

var ErrResolve = errors.New("resolve failed")

// Resolver turns a hostname into an IPv4 address
type Resolver interface {
	Resolve(host string) (netaddr.IP, error)
}

// ResolverFunc adapts a net.ResolveIPAddr style function to Resolver
type ResolverFunc func(network, address string) (*net.IPAddr, error)

// DefaultResolver uses the system resolver
var DefaultResolver Resolver = ResolverFunc(net.ResolveIPAddr)

func (f ResolverFunc) Resolve(host string) (netaddr.IP, error) {
	ipAddr, err := f("ip4", host)
	if err != nil {
		return netaddr.IP{}, fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}
	ip, ok := netaddr.FromStdIP(ipAddr.IP)
	if !ok || !ip.Is4() {
		return netaddr.IP{}, fmt.Errorf("%w: %s: no IPv4 address", ErrResolve, host)
	}
	return ip, nil
}
