package alerting

import (
	"context"

	"slacknotes/internal/slack"
)

// ClientSender adapts the bot's Web API client to the SlackSender
// interface.
type ClientSender struct {
	client *slack.Client
}

// NewClientSender wraps a Web API client for alert delivery.
func NewClientSender(client *slack.Client) *ClientSender {
	return &ClientSender{client: client}
}

// Send implements SlackSender.
func (s *ClientSender) Send(ctx context.Context, channelID, content string) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.client.PostMessage(ctx, channelID, content)
	return err
}

var _ SlackSender = (*ClientSender)(nil)
