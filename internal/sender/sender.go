// Package sender submits raw messages to an SMTP smarthost for forwarding.
package sender

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
)

// Sender forwards raw email messages over SMTP.
type Sender struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger
}

// New creates an SMTP sender. With useTLS the connection is implicit TLS;
// otherwise STARTTLS is attempted opportunistically.
func New(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *Sender {
	return &Sender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

// Forward submits rawEmail to the given recipient. The envelope sender is
// taken from the message's From header when parsable, falling back to the
// configured username. Trace headers identifying the forwarder and the
// original message are prepended.
func (s *Sender) Forward(rawEmail []byte, to string, originalID string) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if s.username != "" && s.password != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.envelopeFrom(rawEmail)); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(traceHeaders(originalID)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if _, err := w.Write(rawEmail); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

// connect dials the smarthost and negotiates TLS according to configuration.
func (s *Sender) connect() (*smtp.Client, error) {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	if s.useTLS {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.host})
		if err != nil {
			return nil, fmt.Errorf("smtp tls dial %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, s.host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp new client: %w", err)
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			s.logger.Warn("STARTTLS failed, continuing without TLS", "error", err)
		}
	}
	return client, nil
}

// envelopeFrom recovers the original sender address for MAIL FROM.
func (s *Sender) envelopeFrom(rawEmail []byte) string {
	reader, err := mail.CreateReader(bytes.NewReader(rawEmail))
	if err != nil {
		return s.username
	}
	defer reader.Close()
	if addrs, err := reader.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		return addrs[0].Address
	}
	return s.username
}

func traceHeaders(originalID string) []byte {
	return []byte(fmt.Sprintf(
		"X-Forwarded-By: popfetch\r\nX-Original-Message-ID: %s\r\nX-Forwarded-Time: %s\r\n",
		originalID,
		time.Now().UTC().Format(time.RFC3339),
	))
}
