package device

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

const defaultSocketPort = "9100"

// socketScheme implements "socket://host[:port][/?options]" raw TCP, per
// spec.md §6. host may be resolved via DNS-SD if it looks like a
// "._pdl-datastream._tcp." service instance name.
func socketScheme() *Scheme {
	return &Scheme{
		Name: "socket",
		Type: TypeNetwork,
		Open: socketOpen,
		Close: func(c *Connection) error {
			conn, _ := c.FD().(net.Conn)
			if conn == nil {
				return nil
			}
			return conn.Close()
		},
		Read: func(c *Connection, buf []byte) (int, error) {
			return c.FD().(net.Conn).Read(buf)
		},
		Write: func(c *Connection, buf []byte) (int, error) {
			return c.FD().(net.Conn).Write(buf)
		},
		Status: func(c *Connection) (Status, error) {
			return Status{}, nil
		},
	}
}

func socketOpen(uri string, errCB ErrCallback) (*Connection, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("device/socket: invalid URI: %w", err)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = defaultSocketPort
	}

	if strings.Contains(host, "._pdl-datastream._tcp") {
		resolved, rport, err := resolveDNSSDHost(host)
		if err != nil {
			return nil, fmt.Errorf("device/socket: resolve %s: %w", host, err)
		}
		host = resolved
		if u.Port() == "" && rport != 0 {
			port = fmt.Sprintf("%d", rport)
		}
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("device/socket: dial %s:%s: %w", host, port, err)
	}

	c := &Connection{}
	c.SetFD(conn)
	return c, nil
}
