package receiver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAP fetches mail over IMAP/IMAPS, one connection per Fetch.
type IMAP struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	folder   string
	logger   *slog.Logger
}

// NewIMAP creates an IMAP receiver for the given folder (INBOX by default).
func NewIMAP(host string, port int, username, password string, useTLS bool, folder string, logger *slog.Logger) *IMAP {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAP{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		folder:   folder,
		logger:   logger,
	}
}

func (r *IMAP) Fetch(ctx context.Context, seen map[string]struct{}, since time.Time) ([]Email, error) {
	client, err := r.dial()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.Login(r.username, r.password).Wait(); err != nil {
		return nil, fmt.Errorf("imap login %s: %w", r.username, err)
	}
	defer client.Logout()

	if _, err := client.Select(r.folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", r.folder, err)
	}

	searchData, err := client.Search(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	seqNums := searchData.AllSeqNums()
	if len(seqNums) == 0 {
		r.logger.Debug("imap: no messages in range", "folder", r.folder)
		return nil, nil
	}
	r.logger.Debug("imap: messages in range", "folder", r.folder, "count", len(seqNums))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	buffers, err := client.Fetch(imap.SeqSetNum(seqNums...), &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	var emails []Email
	for _, buf := range buffers {
		var id string
		var date time.Time
		if buf.Envelope != nil {
			id = buf.Envelope.MessageID
			date = buf.Envelope.Date
		}
		if id == "" {
			id = fmt.Sprintf("imap-%d-%s", buf.SeqNum, r.username)
		}
		if _, ok := seen[id]; ok {
			continue
		}

		content := buf.FindBodySection(bodySection)
		if len(content) == 0 {
			r.logger.Warn("imap: empty body, skipping", "msg_id", id)
			continue
		}

		emails = append(emails, Email{ID: id, Date: date, Content: content})
	}

	r.logger.Debug("imap fetch done", "listed", len(buffers), "new", len(emails))
	return emails, nil
}

func (r *IMAP) Close() error {
	return nil
}

func (r *IMAP) dial() (*imapclient.Client, error) {
	addr := net.JoinHostPort(r.host, fmt.Sprintf("%d", r.port))

	var client *imapclient.Client
	var err error
	if r.useTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: r.host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}
	return client, nil
}
