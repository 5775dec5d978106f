package receiver

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/tracyhatemice/popfetch/internal/pop3"
)

// POP3 fetches mail over POP3/POP3S using a fresh session per Fetch, the
// usual discipline for POP3 servers that lock the maildrop per connection.
type POP3 struct {
	opt             pop3.Opt
	username        string
	password        string
	deleteForwarded bool
	logger          *slog.Logger
}

// NewPOP3 creates a POP3 receiver. When deleteForwarded is set, messages
// already recorded as seen are marked for deletion on the server, so the
// maildrop does not grow without bound once mail has been forwarded.
func NewPOP3(host string, port int, username, password string, useTLS, deleteForwarded bool, logger *slog.Logger) *POP3 {
	return &POP3{
		opt: pop3.Opt{
			Host:       host,
			Port:       port,
			TLSEnabled: useTLS,
			Logger:     logger,
		},
		username:        username,
		password:        password,
		deleteForwarded: deleteForwarded,
		logger:          logger,
	}
}

func (r *POP3) Fetch(ctx context.Context, seen map[string]struct{}, since time.Time) ([]Email, error) {
	client := pop3.New(r.opt)
	if err := client.Connect(ctx, r.username, r.password); err != nil {
		if derr := client.Disconnect(); derr != nil {
			r.logger.Warn("pop3 teardown after failed connect", "error", derr)
		}
		return nil, fmt.Errorf("pop3 connect %s: %w", r.opt.Host, err)
	}
	defer client.Disconnect()

	msgs, err := client.List()
	if err != nil {
		return nil, fmt.Errorf("pop3 list: %w", err)
	}
	r.logger.Debug("pop3 maildrop listed", "count", len(msgs))

	// UIDL is an extension; without it ID fallbacks use sequence numbers.
	uids, err := client.Uidl()
	if err != nil {
		r.logger.Debug("pop3 UIDL unavailable", "error", err)
		uids = nil
	}

	var emails []Email
	for _, msg := range msgs {
		msg.UID = uids[msg.Seq]

		// Headers first: enough to identify and date the message without
		// pulling the full body of mail we will skip anyway.
		if err := client.RetrieveHeader(msg); err != nil {
			return emails, fmt.Errorf("pop3 top %d: %w", msg.Seq, err)
		}

		id := r.messageID(msg)
		if _, ok := seen[id]; ok {
			if r.deleteForwarded {
				if err := client.Delete(msg); err != nil {
					r.logger.Warn("pop3 delete failed", "seq", msg.Seq, "error", err)
				}
			}
			continue
		}

		date := headerDate(msg.RawHeader)
		if !date.IsZero() && date.Before(since) {
			continue
		}

		if err := client.Retrieve(msg); err != nil {
			return emails, fmt.Errorf("pop3 retr %d: %w", msg.Seq, err)
		}

		emails = append(emails, Email{
			ID:      id,
			Date:    date,
			Content: msg.RawBody,
		})
	}

	r.logger.Debug("pop3 fetch done", "listed", len(msgs), "new", len(emails))
	return emails, nil
}

func (r *POP3) Close() error {
	return nil
}

// messageID picks a stable identifier: the Message-ID header, then the UIDL
// UID, then the sequence number scoped by account.
func (r *POP3) messageID(msg *pop3.Message) string {
	if id := headerMessageID(msg.RawHeader); id != "" {
		return id
	}
	if msg.UID != "" {
		return fmt.Sprintf("pop3-uid-%s-%s", msg.UID, r.username)
	}
	return fmt.Sprintf("pop3-%d-%s", msg.Seq, r.username)
}

// headerMessageID parses Message-ID out of a raw header block.
func headerMessageID(raw []byte) string {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	defer reader.Close()
	return reader.Header.Get("Message-ID")
}

// headerDate parses the Date header out of a raw header block.
func headerDate(raw []byte) time.Time {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return time.Time{}
	}
	defer reader.Close()
	date, err := reader.Header.Date()
	if err != nil {
		return time.Time{}
	}
	return date
}
