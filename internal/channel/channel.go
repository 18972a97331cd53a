// Package channel holds the ChannelSender capability and one implementation
// per supported channel, selected by the conversation's channel metadata.
package channel

import "context"

// Sender delivers one message through a channel transport. On success the
// channel-native message id comes back; failures are *appErrors.TransportError
// so the worker can tell permanent codes from transient ones.
type Sender interface {
	Send(ctx context.Context, recipientRef, text string) (externalMessageID string, err error)
}
