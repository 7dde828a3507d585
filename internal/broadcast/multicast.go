package broadcast

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

type MulticastOptions struct {
	TTL       int
	Loopback  bool
	Interface string
}

// Multicast sends each announcement as one UDP datagram to a group address.
type Multicast struct {
	addr *net.UDPAddr
	conn *net.UDPConn
}

// DialMulticast opens a UDP socket towards group:port. Multicast socket
// options only apply when group is a multicast address, so a unicast target
// works too.
func DialMulticast(group string, port int, opts MulticastOptions) (*Multicast, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil {
		return nil, errors.Errorf("invalid IPv4 broadcast group %q", group)
	}
	addr := &net.UDPAddr{IP: ip, Port: port}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s failed", addr)
	}

	if ip.IsMulticast() {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastTTL(opts.TTL); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "set multicast ttl failed")
		}
		if err := pc.SetMulticastLoopback(opts.Loopback); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "set multicast loopback failed")
		}
		if opts.Interface != "" {
			ifi, err := net.InterfaceByName(opts.Interface)
			if err != nil {
				conn.Close()
				return nil, errors.Wrapf(err, "lookup interface %s failed", opts.Interface)
			}
			if err := pc.SetMulticastInterface(ifi); err != nil {
				conn.Close()
				return nil, errors.Wrap(err, "set multicast interface failed")
			}
		}
	}

	return &Multicast{addr: addr, conn: conn}, nil
}

func (m *Multicast) Name() string {
	return fmt.Sprintf("udp://%s", m.addr)
}

func (m *Multicast) Publish(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := m.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set write deadline failed")
	}
	if _, err := m.conn.Write([]byte(text)); err != nil {
		return errors.Wrapf(err, "send to %s failed", m.addr)
	}
	return nil
}

func (m *Multicast) Close() error {
	return m.conn.Close()
}
