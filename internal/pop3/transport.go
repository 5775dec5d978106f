package pop3

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// Default server ports for plaintext and TLS sessions.
const (
	DefaultPort    = 110
	DefaultPortTLS = 995
)

// Transport is the line-oriented connection the client speaks through.
//
// ReadLine returns exactly one protocol line including its trailing CRLF.
// WriteLine sends one line, adding the CRLF terminator. Neither retries:
// transport failures surface to the caller unmodified.
type Transport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
}

// DialFunc opens a Transport to the given server. Timeouts and deadlines are
// the dialer's responsibility; the client imposes none of its own.
type DialFunc func(ctx context.Context, host string, port int, useTLS bool) (Transport, error)

// Dial is the default DialFunc, connecting over TCP or TLS.
func Dial(ctx context.Context, host string, port int, useTLS bool) (Transport, error) {
	if port == 0 {
		if useTLS {
			port = DefaultPortTLS
		} else {
			port = DefaultPort
		}
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	var conn net.Conn
	var err error
	if useTLS {
		dialer := tls.Dialer{Config: &tls.Config{ServerName: host}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("pop3 dial %s: %w", addr, err)
	}
	return &netTransport{conn: conn, r: bufio.NewReader(conn)}, nil
}

type netTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

func (t *netTransport) ReadLine() (string, error) {
	return t.r.ReadString('\n')
}

func (t *netTransport) WriteLine(line string) error {
	_, err := t.conn.Write([]byte(line + "\r\n"))
	return err
}

func (t *netTransport) Close() error {
	return t.conn.Close()
}
