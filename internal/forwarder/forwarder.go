// Package forwarder runs the per-account poll loop: fetch new mail, forward
// it, record it as seen.
package forwarder

import (
	"context"
	"log/slog"
	"time"

	"github.com/tracyhatemice/popfetch/internal/config"
	"github.com/tracyhatemice/popfetch/internal/metrics"
	"github.com/tracyhatemice/popfetch/internal/receiver"
)

// Sender delivers one raw message to a recipient.
type Sender interface {
	Forward(rawEmail []byte, to string, originalID string) error
}

// Tracker records which message IDs were already forwarded.
type Tracker interface {
	SeenIDs() map[string]struct{}
	MarkSeen(id string) error
}

// Forwarder monitors one account and forwards its new messages.
type Forwarder struct {
	account  config.Account
	receiver receiver.Receiver
	sender   Sender
	tracker  Tracker
	logger   *slog.Logger

	now func() time.Time // stubbed in tests
}

// New creates a Forwarder for the given account.
func New(acct config.Account, recv receiver.Receiver, snd Sender, tracker Tracker, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		account:  acct,
		receiver: recv,
		sender:   snd,
		tracker:  tracker,
		logger:   logger.With("account", acct.Name),
		now:      time.Now,
	}
}

// Run polls the account on its configured interval until ctx is cancelled.
// The first poll happens immediately.
func (f *Forwarder) Run(ctx context.Context) {
	f.logger.Info("starting forwarder",
		"protocol", f.account.Protocol,
		"host", f.account.Host,
		"interval", f.account.PollInterval(),
	)

	f.Poll(ctx)

	ticker := time.NewTicker(f.account.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forwarder stopped")
			return
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll runs one fetch-and-forward cycle.
func (f *Forwarder) Poll(ctx context.Context) {
	start := f.now()
	since := start.Add(-f.account.Lookback())
	f.logger.Debug("polling", "since", since)

	emails, err := f.receiver.Fetch(ctx, f.tracker.SeenIDs(), since)
	if err != nil {
		f.logger.Error("fetch failed", "error", err)
		metrics.PollsTotal.WithLabelValues(f.account.Name, "error").Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues(f.account.Name, "ok").Inc()
	metrics.PollDuration.WithLabelValues(f.account.Name).Observe(f.now().Sub(start).Seconds())
	metrics.MessagesFetched.WithLabelValues(f.account.Name).Add(float64(len(emails)))

	if len(emails) == 0 {
		f.logger.Debug("no new messages")
		return
	}
	f.logger.Info("new messages", "count", len(emails))

	forwarded := 0
	for _, email := range emails {
		if err := f.sender.Forward(email.Content, f.account.ForwardTo, email.ID); err != nil {
			f.logger.Error("forward failed", "msg_id", email.ID, "error", err)
			metrics.MessagesForwarded.WithLabelValues(f.account.Name, "error").Inc()
			continue
		}
		metrics.MessagesForwarded.WithLabelValues(f.account.Name, "ok").Inc()

		// Mark only after a successful forward; an unmarked message is
		// retried on the next cycle.
		if err := f.tracker.MarkSeen(email.ID); err != nil {
			f.logger.Error("mark seen failed", "msg_id", email.ID, "error", err)
			continue
		}
		forwarded++
		f.logger.Info("forwarded", "msg_id", email.ID, "to", f.account.ForwardTo)
	}
	f.logger.Debug("poll done", "fetched", len(emails), "forwarded", forwarded)
}
