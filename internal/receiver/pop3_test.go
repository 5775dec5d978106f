package receiver

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/popfetch/internal/pop3"
)

// scriptTransport plays back a canned server conversation.
type scriptTransport struct {
	replies []string
	written []string
	closed  int
}

func (s *scriptTransport) ReadLine() (string, error) {
	if len(s.replies) == 0 {
		return "", io.EOF
	}
	line := s.replies[0]
	s.replies = s.replies[1:]
	return line, nil
}

func (s *scriptTransport) WriteLine(line string) error {
	s.written = append(s.written, line)
	return nil
}

func (s *scriptTransport) Close() error {
	s.closed++
	return nil
}

func TestPOP3Fetch(t *testing.T) {
	transport := &scriptTransport{replies: []string{
		"+OK ready\r\n",
		"+OK\r\n", // USER
		"+OK\r\n", // PASS
		// LIST: three messages.
		"+OK\r\n", "1 120\r\n", "2 150\r\n", "3 90\r\n", ".\r\n",
		// UIDL
		"+OK\r\n", "1 uid-one\r\n", "2 uid-two\r\n", "3 uid-three\r\n", ".\r\n",
		// TOP 1 0: already forwarded in an earlier cycle.
		"+OK\r\n",
		"Message-ID: <seen@example.com>\r\n",
		"Date: Thu, 01 Jan 2026 09:00:00 +0000\r\n",
		"\r\n",
		".\r\n",
		// DELE 1
		"+OK\r\n",
		// TOP 2 0: new message inside the window.
		"+OK\r\n",
		"Message-ID: <new@example.com>\r\n",
		"Date: Fri, 02 Jan 2026 10:00:00 +0000\r\n",
		"\r\n",
		".\r\n",
		// RETR 2
		"+OK\r\n",
		"Message-ID: <new@example.com>\r\n",
		"Subject: hello\r\n",
		"\r\n",
		"body\r\n",
		".\r\n",
		// TOP 3 0: new but older than the window.
		"+OK\r\n",
		"Message-ID: <old@example.com>\r\n",
		"Date: Mon, 01 Dec 2025 08:00:00 +0000\r\n",
		"\r\n",
		".\r\n",
		// QUIT
		"+OK bye\r\n",
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recv := NewPOP3("mail.example.com", 0, "alice", "secret", false, true, logger)
	recv.opt.DialFunc = func(ctx context.Context, host string, port int, useTLS bool) (pop3.Transport, error) {
		return transport, nil
	}

	seen := map[string]struct{}{"<seen@example.com>": {}}
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	emails, err := recv.Fetch(context.Background(), seen, since)
	require.NoError(t, err)
	require.Len(t, emails, 1)

	assert.Equal(t, "<new@example.com>", emails[0].ID)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), emails[0].Date.UTC())
	assert.Contains(t, string(emails[0].Content), "Subject: hello\r\n")
	assert.Contains(t, string(emails[0].Content), "body\r\n")

	// The seen message was marked for deletion, the old one was only peeked.
	assert.Contains(t, transport.written, "DELE 1")
	assert.NotContains(t, transport.written, "RETR 1")
	assert.NotContains(t, transport.written, "RETR 3")
	assert.Equal(t, "QUIT", transport.written[len(transport.written)-1])
	assert.Equal(t, 1, transport.closed)
}

func TestPOP3FetchAuthFailureReleasesTransport(t *testing.T) {
	transport := &scriptTransport{replies: []string{
		"+OK ready\r\n",
		"+OK\r\n", // USER
		"-ERR invalid password\r\n",
	}}

	recv := NewPOP3("mail.example.com", 0, "alice", "wrong", false, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	recv.opt.DialFunc = func(ctx context.Context, host string, port int, useTLS bool) (pop3.Transport, error) {
		return transport, nil
	}

	_, err := recv.Fetch(context.Background(), nil, time.Time{})
	require.Error(t, err)
	var protoErr *pop3.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "-ERR invalid password", protoErr.Raw)
	assert.Equal(t, 1, transport.closed)
}
