package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"time"

	"github.com/ziutek/telnet"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/five82/tether/internal/pipeline"
)

const (
	defaultDialTimeout = 5 * time.Second
	serialReadTimeout  = 200 * time.Millisecond
)

// Dialer opens transports by identity. It implements pipeline.Source.
type Dialer struct {
	// BaudRate applies to serial identities that do not name one.
	BaudRate    int
	DialTimeout time.Duration
	MaxLine     int
	// Stdin backs the "-" identity; nil uses os.Stdin.
	Stdin  io.Reader
	Logger *zap.SugaredLogger
}

// Open connects to identity.
func (d *Dialer) Open(ctx context.Context, identity string) (pipeline.Conn, error) {
	ep, err := Parse(identity)
	if err != nil {
		return nil, err
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Debugw("opening transport", "kind", ep.Kind, "address", ep.Address)

	switch ep.Kind {
	case KindSerial:
		return d.openSerial(ep)
	case KindTCP:
		conn, err := d.dial(ctx, ep.Address)
		if err != nil {
			return nil, err
		}
		return newLineConn(ep.String(), conn, conn, d.MaxLine), nil
	case KindTelnet:
		conn, err := d.dial(ctx, ep.Address)
		if err != nil {
			return nil, err
		}
		tc, err := telnet.NewConn(conn)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("telnet %s: %w", ep.Address, err)
		}
		return newLineConn(ep.String(), tc, tc, d.MaxLine), nil
	case KindFile:
		f, err := openFollow(ep.Address)
		if err != nil {
			return nil, err
		}
		return newLineConn(ep.String(), f, f, d.MaxLine), nil
	case KindStdin:
		in := d.Stdin
		if in == nil {
			in = os.Stdin
		}
		return newLineConn(ep.String(), in, nil, d.MaxLine), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", ep.Kind)
	}
}

func (d *Dialer) dial(ctx context.Context, addr string) (net.Conn, error) {
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

func (d *Dialer) openSerial(ep Endpoint) (pipeline.Conn, error) {
	baud := ep.Baud
	if baud <= 0 {
		baud = d.BaudRate
	}
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(ep.Address, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", ep.Address, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("configure serial %s: %w", ep.Address, err)
	}
	ep.Baud = baud
	return newLineConn(ep.String(), port, port, d.MaxLine), nil
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
