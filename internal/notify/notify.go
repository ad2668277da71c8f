// Package notify delivers account messages such as password reset links.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// Message is a single notification addressed to one account.
type Message struct {
	To    string
	Title string
	Body  string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of delivering them. It is
// used when no delivery URLs are configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification", "to", msg.To, "title", msg.Title, "body", msg.Body)
	return nil
}

// ShoutrrrNotifier delivers messages through shoutrrr service URLs
// (smtp://, discord://, ntfy://, ...).
type ShoutrrrNotifier struct {
	sender  *router.ServiceRouter
	hasSMTP bool
}

func NewShoutrrrNotifier(urls []string, timeout time.Duration) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one notification URL is required")
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// The URLs may carry credentials; do not echo them back.
		return nil, errors.New("failed to create notification sender: invalid notification URL")
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	n := &ShoutrrrNotifier{sender: sender}
	for _, raw := range urls {
		if u, err := url.Parse(raw); err == nil && strings.EqualFold(u.Scheme, "smtp") {
			n.hasSMTP = true
		}
	}
	return n, nil
}

func (n *ShoutrrrNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}
	// Only the mail service can be addressed per message.
	if n.hasSMTP && msg.To != "" {
		params["toaddresses"] = msg.To
	}

	for _, err := range n.sender.Send(msg.Body, &params) {
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
	}
	return nil
}
