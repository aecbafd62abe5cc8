package tcc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is an immutable host and port identifying one ring member.
// Two endpoints are equal when their host:port strings are equal; the resolved IP is carried
// along only so failover can match ring entries reported by address.
type Endpoint struct {
	host string
	port int
	ip   string
}

// NewEndpoint creates an Endpoint. When host is an IP literal it doubles as the resolved IP.
func NewEndpoint(host string, port int) (Endpoint, error) {
	if err := validateEndpoint(host, port); err != nil {
		return Endpoint{}, err
	}

	endpoint := Endpoint{host: host, port: port}
	if parsed := net.ParseIP(host); parsed != nil {
		endpoint.ip = parsed.String()
	}

	return endpoint, nil
}

// NewEndpointWithIP creates an Endpoint with an already resolved IP.
func NewEndpointWithIP(host string, port int, ip string) (Endpoint, error) {
	if err := validateEndpoint(host, port); err != nil {
		return Endpoint{}, err
	}

	return Endpoint{host: host, port: port, ip: ip}, nil
}

// ResolveEndpoint creates an Endpoint and looks up the host's first IP address.
func ResolveEndpoint(ctx context.Context, host string, port int) (Endpoint, error) {
	if err := validateEndpoint(host, port); err != nil {
		return Endpoint{}, err
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolving %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return Endpoint{}, fmt.Errorf("resolving %s: no addresses", host)
	}

	return Endpoint{host: host, port: port, ip: addrs[0].IP.String()}, nil
}

// ParseEndpoint parses "host:port".
func ParseEndpoint(address string) (Endpoint, error) {
	host, portValue, err := net.SplitHostPort(strings.TrimSpace(address))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrInvalidEndpoint, err)
	}

	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: port %q", ErrInvalidEndpoint, portValue)
	}

	return NewEndpoint(host, port)
}

func validateEndpoint(host string, port int) error {
	if host == "" || port < 1 || port > 65535 {
		return fmt.Errorf("%w: %q:%d", ErrInvalidEndpoint, host, port)
	}
	return nil
}

func (e Endpoint) Host() string { return e.host }
func (e Endpoint) Port() int    { return e.port }
func (e Endpoint) IP() string   { return e.ip }

// String is the identity key, host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

// Address is the dial address, preferring the resolved IP.
func (e Endpoint) Address() string {
	if e.ip != "" {
		return net.JoinHostPort(e.ip, strconv.Itoa(e.port))
	}
	return e.String()
}

// Compare orders endpoints by their identity key.
func (e Endpoint) Compare(other Endpoint) int {
	return strings.Compare(e.String(), other.String())
}

func (e Endpoint) Equal(other Endpoint) bool {
	return e.String() == other.String()
}

// matchesHost reports whether a ring entry names this endpoint by host or by IP.
func (e Endpoint) matchesHost(ringHost string) bool {
	return ringHost == e.host || (e.ip != "" && ringHost == e.ip)
}
