// Package platform defines the outbound delivery contracts consumed by
// the scheduling engine. Implementations live in subpackages; the
// engine depends only on this interface and its sentinel errors.
package platform

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the destination (channel, user or message) no
	// longer exists. Terminal for delivery.
	ErrNotFound = errors.New("platform: destination not found")

	// ErrCannotMessageUser means the recipient does not accept direct
	// messages. Terminal for delivery.
	ErrCannotMessageUser = errors.New("platform: cannot send messages to this user")

	// ErrWebhookGone means the channel-bound credentialed endpoint has
	// been deleted. The stored credential should be cleared and the
	// send retried through the raw channel path.
	ErrWebhookGone = errors.New("platform: webhook gone")
)

// Message is the handle of a delivered message.
type Message struct {
	ID      string
	Channel uint64
}

// Embed is the rich-content part of a send.
type Embed struct {
	Title        string
	Description  string
	ImageURL     string
	ThumbnailURL string
	Footer       string
	FooterURL    string
	Author       string
	AuthorURL    string
	Color        uint32
	Fields       []EmbedField
}

type EmbedField struct {
	Title  string
	Value  string
	Inline bool
}

// SendRequest carries one rendered payload. Username and AvatarURL are
// honored only by the webhook path.
type SendRequest struct {
	Content        string
	TTS            bool
	Attachment     []byte
	AttachmentName string
	Embed          *Embed
	Username       string
	AvatarURL      string
}

// Client is the platform surface the engine needs. All calls are
// synchronous network operations and honor ctx.
type Client interface {
	// SendToChannel delivers to a guild or DM channel directly.
	SendToChannel(ctx context.Context, channel uint64, req SendRequest) (*Message, error)

	// ExecuteWebhook delivers through a channel-bound webhook. With
	// wait set, the returned message handle is populated.
	ExecuteWebhook(ctx context.Context, id uint64, token string, req SendRequest, wait bool) (*Message, error)

	// FetchWebhook verifies a stored webhook credential still exists.
	FetchWebhook(ctx context.Context, id uint64, token string) error

	// CreateWebhook provisions a webhook on a guild channel.
	CreateWebhook(ctx context.Context, channel uint64, name string) (id uint64, token string, err error)

	// PinMessage pins a delivered message in its channel.
	PinMessage(ctx context.Context, channel uint64, messageID string) error

	// DMChannel resolves a user's direct-message channel, creating it
	// if needed.
	DMChannel(ctx context.Context, user uint64) (uint64, error)

	// ChannelGuild reports which guild a channel belongs to; 0 means a
	// DM or group channel.
	ChannelGuild(ctx context.Context, channel uint64) (uint64, error)

	// IsMember reports whether the user belongs to the guild.
	IsMember(ctx context.Context, guild, user uint64) (bool, error)
}
