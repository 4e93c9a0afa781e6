package source

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind is a transport type.
type Kind string

const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
	KindTelnet Kind = "telnet"
	KindFile   Kind = "file"
	KindStdin  Kind = "stdin"
)

const defaultTelnetPort = "23"

// Endpoint is a parsed identity.
type Endpoint struct {
	Kind    Kind
	Address string
	// Baud is set for serial endpoints that name one.
	Baud int
}

// String renders the canonical identity.
func (e Endpoint) String() string {
	switch e.Kind {
	case KindSerial:
		if e.Baud > 0 {
			return e.Address + "@" + strconv.Itoa(e.Baud)
		}
		return e.Address
	case KindTCP:
		return "tcp://" + e.Address
	case KindTelnet:
		return "telnet://" + e.Address
	case KindFile:
		return "file:" + e.Address
	case KindStdin:
		return "stdin"
	default:
		return e.Address
	}
}

// Parse resolves an identity string.
func Parse(identity string) (Endpoint, error) {
	id := strings.TrimSpace(identity)
	switch {
	case id == "":
		return Endpoint{}, fmt.Errorf("empty connection identity")
	case id == "-":
		return Endpoint{Kind: KindStdin}, nil
	case strings.HasPrefix(id, "tcp://"):
		addr := strings.TrimPrefix(id, "tcp://")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return Endpoint{}, fmt.Errorf("tcp identity %q: %w", identity, err)
		}
		return Endpoint{Kind: KindTCP, Address: addr}, nil
	case strings.HasPrefix(id, "telnet://"):
		addr := strings.TrimPrefix(id, "telnet://")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, defaultTelnetPort)
		}
		return Endpoint{Kind: KindTelnet, Address: addr}, nil
	case strings.HasPrefix(id, "file:"):
		path := strings.TrimPrefix(strings.TrimPrefix(id, "file:"), "//")
		if path == "" {
			return Endpoint{}, fmt.Errorf("file identity %q: empty path", identity)
		}
		return Endpoint{Kind: KindFile, Address: path}, nil
	default:
		return parseSerial(strings.TrimPrefix(id, "serial:"), identity)
	}
}

func parseSerial(addr, identity string) (Endpoint, error) {
	port, baud, found := strings.Cut(addr, "@")
	if port == "" {
		return Endpoint{}, fmt.Errorf("serial identity %q: empty port", identity)
	}
	ep := Endpoint{Kind: KindSerial, Address: port}
	if found {
		n, err := strconv.Atoi(baud)
		if err != nil || n <= 0 {
			return Endpoint{}, fmt.Errorf("serial identity %q: bad baud rate %q", identity, baud)
		}
		ep.Baud = n
	}
	return ep, nil
}
