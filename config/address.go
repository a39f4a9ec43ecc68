package config

import (
	"fmt"
	"net"
	"strings"
)

var loopBackAddrs = []string{"localhost", "127.0.0.1", "[::1]"}

type tcpResolver = func(network, addr string) (*net.TCPAddr, error)

// IsLoopback returns true if an address describes a loopback interface.
func IsLoopback(addr string) bool {
	for _, loopback := range loopBackAddrs {
		if strings.Contains(addr, loopback) {
			return true
		}
	}
	return false
}

// ParseAddressString converts an address in string format to a net.Addr.
// Onion and lightning-peer address forms are intentionally unsupported: a
// Bitcoin node's JSON-RPC endpoint is always a plain TCP (or unix socket)
// address.
func ParseAddressString(strAddress string, defaultPort string, tcpResolver tcpResolver) (net.Addr, error) {
	var parsedNetwork, parsedAddr string

	if strings.Contains(strAddress, "://") {
		parts := strings.SplitN(strAddress, "://", 2)
		parsedNetwork, parsedAddr = parts[0], parts[1]
	} else if strings.Contains(strAddress, ":") {
		parts := strings.Split(strAddress, ":")
		parsedNetwork = parts[0]
		parsedAddr = strings.Join(parts[1:], ":")
	}

	switch parsedNetwork {
	case "unix", "unixpacket":
		return net.ResolveUnixAddr(parsedNetwork, parsedAddr)

	case "tcp", "tcp4", "tcp6":
		return tcpResolver(parsedNetwork, verifyPort(parsedAddr, defaultPort))

	case "ip", "ip4", "ip6", "udp", "udp4", "udp6", "unixgram":
		return nil, fmt.Errorf("only TCP or unix socket addresses are supported: %s", parsedAddr)

	default:
		addrWithPort := verifyPort(strAddress, defaultPort)
		rawHost, _, _ := net.SplitHostPort(addrWithPort)

		if rawHost == "" || IsLoopback(rawHost) {
			return net.ResolveTCPAddr("tcp", addrWithPort)
		}
		return tcpResolver("tcp", addrWithPort)
	}
}

// verifyPort makes sure that an address string has both a host and a
// port. If the address is missing a port, the default port is used.
func verifyPort(address string, defaultPort string) string {
	_, _, err := net.SplitHostPort(address)
	if err == nil {
		return address
	}

	host := address
	if strings.HasSuffix(address, ":") {
		host = address[:len(address)-1]
	}
	return net.JoinHostPort(host, defaultPort)
}
