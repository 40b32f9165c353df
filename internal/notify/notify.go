// Package notify delivers operator notifications (remediation alerts,
// deployment failures) to an external channel. Delivery failures are for the
// caller to log, never to act on: a notification must not change an
// investigation's or deployment's outcome.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier delivers one titled notice.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Noop discards all notifications. Used by tests and by deployments without
// a notification channel configured.
type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// Slack posts notices to a Slack channel.
type Slack struct {
	client  *slack.Client
	channel string
}

// NewSlack constructs a Slack notifier from a bot token and channel id.
func NewSlack(token, channel string) *Slack {
	return &Slack{client: slack.New(token), channel: channel}
}

// Notify implements Notifier.
func (n *Slack) Notify(ctx context.Context, title, body string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(fmt.Sprintf("*%s*\n%s", title, body), false),
	)
	return err
}
