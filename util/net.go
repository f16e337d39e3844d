package util

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func IsIPv4(ipAddr string) bool {
	ip := net.ParseIP(ipAddr)
	return ip != nil && strings.Contains(ipAddr, ".")
}

// ParseIPPort splits "ip:port" (or "[ip6]:port") into its parts.
// Host names are rejected, the address must come from a connected socket.
func ParseIPPort(addr string) (net.IP, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "split %v", addr)
	}
	if i := strings.IndexByte(host, '%'); i >= 0 {
		// drop IPv6 zone
		host = host[:i]
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, errors.Errorf("%v is not an IP address", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "port of %v", addr)
	}
	if IsIPv4(host) {
		ip = ip.To4()
	}
	return ip, uint16(port), nil
}
