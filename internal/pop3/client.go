// Package pop3 implements a POP3 client: a single stateful session over a
// line-oriented transport, issuing one command at a time and collecting
// single-line or dot-terminated multiline replies.
//
// The protocol is strictly synchronous. A Client serializes everything
// through one transport and must not be shared between goroutines without
// external coordination. Cancellation and timeouts belong to the transport:
// Connect takes a context for dialing, and a caller wanting per-command
// deadlines supplies a DialFunc whose Transport enforces them.
package pop3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

const (
	crlf     = "\r\n"
	okMarker = "+OK"
	sentinel = "." + crlf
)

// Opt holds the connection parameters for a Client.
type Opt struct {
	Host       string
	Port       int // 0 selects the protocol default (110, or 995 with TLS)
	TLSEnabled bool

	// DialFunc overrides the default TCP/TLS dialer. Tests and callers with
	// special transport needs (proxies, deadlines) plug in here.
	DialFunc DialFunc

	// Logger for session-level events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is one POP3 session. It starts disconnected; Connect authenticates
// it, Disconnect releases it. A Client may be reconnected after Disconnect.
type Client struct {
	opt    Opt
	dial   DialFunc
	logger *slog.Logger

	transport     Transport
	authenticated bool
}

// New creates a disconnected Client for the given server.
func New(opt Opt) *Client {
	dial := opt.DialFunc
	if dial == nil {
		dial = Dial
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opt: opt, dial: dial, logger: logger}
}

// Connect dials the server, checks the greeting, and authenticates with USER
// and PASS. On success the session is authenticated and ready for mailbox
// operations.
//
// A greeting or USER/PASS rejection returns *ProtocolError and leaves the
// transport open without authenticating the session; Disconnect releases it.
// Connecting while a transport is already held fails with *StateError.
func (c *Client) Connect(ctx context.Context, username, password string) error {
	if c.transport != nil {
		return errAlreadyConnected("connect")
	}

	t, err := c.dial(ctx, c.opt.Host, c.opt.Port, c.opt.TLSEnabled)
	if err != nil {
		return err
	}
	c.transport = t

	greeting, err := c.readStatusLine()
	if err != nil {
		return err
	}
	c.logger.Debug("pop3 greeting", "host", c.opt.Host, "greeting", greeting)

	if _, err := c.cmd("USER", username); err != nil {
		return fmt.Errorf("pop3 USER: %w", err)
	}
	if _, err := c.cmd("PASS", password); err != nil {
		return fmt.Errorf("pop3 PASS: %w", err)
	}

	c.authenticated = true
	c.logger.Debug("pop3 authenticated", "host", c.opt.Host, "user", username)
	return nil
}

// Disconnect ends the session. On an authenticated session it issues QUIT
// first; a failing QUIT is logged and otherwise ignored. The transport is
// closed and the session reset regardless, so a session left half-open by a
// failed authentication is released too. Without a transport it is a no-op.
func (c *Client) Disconnect() error {
	if c.transport == nil {
		return nil
	}
	if c.authenticated {
		if _, err := c.cmd("QUIT"); err != nil {
			c.logger.Warn("pop3 QUIT failed", "host", c.opt.Host, "error", err)
		}
	}
	err := c.transport.Close()
	c.transport = nil
	c.authenticated = false
	return err
}

// Stat reports the number of messages in the maildrop and their total size
// in bytes.
func (c *Client) Stat() (count, size int, err error) {
	if !c.authenticated {
		return 0, 0, errNotConnected("stat")
	}
	status, err := c.cmd("STAT")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(status)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("pop3 STAT: malformed reply %q", status)
	}
	if count, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, fmt.Errorf("pop3 STAT: malformed count in %q: %w", status, err)
	}
	if size, err = strconv.Atoi(fields[2]); err != nil {
		return 0, 0, fmt.Errorf("pop3 STAT: malformed size in %q: %w", status, err)
	}
	return count, size, nil
}

// List enumerates the maildrop. Each returned Message carries the server's
// sequence number and size, in server order; retrieval state starts empty.
func (c *Client) List() ([]*Message, error) {
	if !c.authenticated {
		return nil, errNotConnected("list")
	}
	if _, err := c.cmd("LIST"); err != nil {
		return nil, err
	}
	lines, err := c.collect()
	if err != nil {
		return nil, err
	}

	msgs := make([]*Message, 0, len(lines))
	for _, line := range lines {
		entry := strings.TrimRight(line, crlf)
		seqText, sizeText, ok := strings.Cut(entry, " ")
		if !ok {
			return nil, fmt.Errorf("pop3 LIST: malformed entry %q", entry)
		}
		seq, err := strconv.Atoi(seqText)
		if err != nil {
			return nil, fmt.Errorf("pop3 LIST: malformed sequence number in %q: %w", entry, err)
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeText))
		if err != nil {
			return nil, fmt.Errorf("pop3 LIST: malformed size in %q: %w", entry, err)
		}
		msgs = append(msgs, &Message{Seq: seq, Size: size})
	}
	return msgs, nil
}

// Uidl returns the server's unique-ID listing as a map from sequence number
// to UID. UIDs are stable across sessions, unlike sequence numbers.
func (c *Client) Uidl() (map[int]string, error) {
	if !c.authenticated {
		return nil, errNotConnected("uidl")
	}
	if _, err := c.cmd("UIDL"); err != nil {
		return nil, err
	}
	lines, err := c.collect()
	if err != nil {
		return nil, err
	}

	uids := make(map[int]string, len(lines))
	for _, line := range lines {
		entry := strings.TrimRight(line, crlf)
		seqText, uid, ok := strings.Cut(entry, " ")
		if !ok {
			return nil, fmt.Errorf("pop3 UIDL: malformed entry %q", entry)
		}
		seq, err := strconv.Atoi(seqText)
		if err != nil {
			return nil, fmt.Errorf("pop3 UIDL: malformed sequence number in %q: %w", entry, err)
		}
		uids[seq] = strings.TrimSpace(uid)
	}
	return uids, nil
}

// UidlOne fetches the unique ID of a single message and records it on the
// record.
func (c *Client) UidlOne(msg *Message) error {
	if msg == nil {
		return &ArgumentError{Arg: "message"}
	}
	if !c.authenticated {
		return errNotConnected("uidl")
	}
	status, err := c.cmd("UIDL", strconv.Itoa(msg.Seq))
	if err != nil {
		return err
	}
	fields := strings.Fields(status)
	if len(fields) < 3 {
		return fmt.Errorf("pop3 UIDL: malformed reply %q", status)
	}
	msg.UID = fields[2]
	return nil
}

// Top fetches the header block and the first n body lines of a message,
// appending the received text to the record's RawHeader.
func (c *Client) Top(msg *Message, n int) error {
	if msg == nil {
		return &ArgumentError{Arg: "message"}
	}
	if !c.authenticated {
		return errNotConnected("top")
	}
	if _, err := c.cmd("TOP", strconv.Itoa(msg.Seq), strconv.Itoa(n)); err != nil {
		return err
	}
	lines, err := c.collect()
	for _, line := range lines {
		msg.RawHeader = append(msg.RawHeader, line...)
	}
	return err
}

// RetrieveHeader fetches the header block of a message. Repeated calls
// append to RawHeader.
func (c *Client) RetrieveHeader(msg *Message) error {
	return c.Top(msg, 0)
}

// RetrieveHeaderAll fetches headers for each message in order, stopping at
// the first failure. Messages before the failing one keep their fetched
// headers.
func (c *Client) RetrieveHeaderAll(msgs []*Message) error {
	for _, msg := range msgs {
		if err := c.RetrieveHeader(msg); err != nil {
			return fmt.Errorf("retrieve header of message %d: %w", msg.Seq, err)
		}
	}
	return nil
}

// Retrieve fetches the full message text, appending it to RawBody. Retrieved
// is set only after the whole reply arrived; a transport failure mid-reply
// leaves Retrieved false with the lines received so far appended.
func (c *Client) Retrieve(msg *Message) error {
	if msg == nil {
		return &ArgumentError{Arg: "message"}
	}
	if !c.authenticated {
		return errNotConnected("retr")
	}
	if _, err := c.cmd("RETR", strconv.Itoa(msg.Seq)); err != nil {
		return err
	}
	lines, err := c.collect()
	for _, line := range lines {
		msg.RawBody = append(msg.RawBody, line...)
	}
	if err != nil {
		return err
	}
	msg.Retrieved = true
	return nil
}

// RetrieveAll fetches each message in order, stopping at the first failure.
func (c *Client) RetrieveAll(msgs []*Message) error {
	for _, msg := range msgs {
		if err := c.Retrieve(msg); err != nil {
			return fmt.Errorf("retrieve message %d: %w", msg.Seq, err)
		}
	}
	return nil
}

// Delete marks a message for deletion. The server drops marked messages when
// the session ends with QUIT; Reset unmarks them before that.
func (c *Client) Delete(msg *Message) error {
	if msg == nil {
		return &ArgumentError{Arg: "message"}
	}
	if !c.authenticated {
		return errNotConnected("dele")
	}
	_, err := c.cmd("DELE", strconv.Itoa(msg.Seq))
	return err
}

// Reset unmarks all messages marked for deletion in this session.
func (c *Client) Reset() error {
	if !c.authenticated {
		return errNotConnected("rset")
	}
	_, err := c.cmd("RSET")
	return err
}

// Noop issues a NOOP, useful as a keepalive.
func (c *Client) Noop() error {
	if !c.authenticated {
		return errNotConnected("noop")
	}
	_, err := c.cmd("NOOP")
	return err
}

// ListAndRetrieve lists the maildrop and fetches every message, returning
// the fully populated records.
func (c *Client) ListAndRetrieve() ([]*Message, error) {
	msgs, err := c.List()
	if err != nil {
		return nil, err
	}
	if err := c.RetrieveAll(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListAndRetrieveHeader lists the maildrop and fetches every header block.
func (c *Client) ListAndRetrieveHeader() ([]*Message, error) {
	msgs, err := c.List()
	if err != nil {
		return nil, err
	}
	if err := c.RetrieveHeaderAll(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// cmd runs one transaction: it writes the command line and reads exactly one
// status line, which must start with the +OK marker. Every command reaches
// the wire through here.
func (c *Client) cmd(verb string, args ...string) (string, error) {
	line := verb
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	if err := c.transport.WriteLine(line); err != nil {
		return "", err
	}
	return c.readStatusLine()
}

// readStatusLine reads one reply line and classifies it. A missing or
// non-+OK reply is a *ProtocolError carrying the server's text; transport
// failures other than a clean EOF pass through untouched.
func (c *Client) readStatusLine() (string, error) {
	line, err := c.transport.ReadLine()
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	status := strings.TrimRight(line, crlf)
	if len(status) < 3 || status[:3] != okMarker {
		return "", &ProtocolError{Raw: status}
	}
	return status, nil
}

// collect reads reply lines until the lone-dot terminator, returning them in
// order without the terminator. No unescaping of leading-dot lines is done;
// the text is handed over exactly as it came off the wire. On a transport
// failure the lines received so far are returned alongside the error.
func (c *Client) collect() ([]string, error) {
	var lines []string
	for {
		line, err := c.transport.ReadLine()
		if err != nil {
			return lines, err
		}
		if line == sentinel {
			return lines, nil
		}
		lines = append(lines, line)
	}
}
