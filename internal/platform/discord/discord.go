// Package discord implements platform.Client over the Discord REST
// API. The engine only sends; no gateway connection is opened here.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"remindbot/internal/platform"
)

type Client struct {
	s *discordgo.Session
}

// New builds a REST-only client from a bot token.
func New(token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	return &Client{s: s}, nil
}

// NewWithSession wraps an existing session (shared with whatever else
// the process runs, e.g. a command front end).
func NewWithSession(s *discordgo.Session) *Client { return &Client{s: s} }

func (c *Client) SendToChannel(ctx context.Context, channel uint64, req platform.SendRequest) (*platform.Message, error) {
	data := &discordgo.MessageSend{
		Content: req.Content,
		TTS:     req.TTS,
	}
	if req.Attachment != nil && req.AttachmentName != "" {
		data.Files = []*discordgo.File{{
			Name:   req.AttachmentName,
			Reader: bytes.NewReader(req.Attachment),
		}}
	}
	if req.Embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{toMessageEmbed(req.Embed)}
	}

	m, err := c.s.ChannelMessageSendComplex(snowflake(channel), data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err, false)
	}
	return &platform.Message{ID: m.ID, Channel: channel}, nil
}

func (c *Client) ExecuteWebhook(ctx context.Context, id uint64, token string, req platform.SendRequest, wait bool) (*platform.Message, error) {
	params := &discordgo.WebhookParams{
		Content:   req.Content,
		TTS:       req.TTS,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	}
	if req.Attachment != nil && req.AttachmentName != "" {
		params.Files = []*discordgo.File{{
			Name:   req.AttachmentName,
			Reader: bytes.NewReader(req.Attachment),
		}}
	}
	if req.Embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{toMessageEmbed(req.Embed)}
	}

	m, err := c.s.WebhookExecute(snowflake(id), token, wait, params, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err, true)
	}
	if m == nil {
		return nil, nil
	}
	ch, _ := strconv.ParseUint(m.ChannelID, 10, 64)
	return &platform.Message{ID: m.ID, Channel: ch}, nil
}

func (c *Client) FetchWebhook(ctx context.Context, id uint64, token string) error {
	_, err := c.s.WebhookWithToken(snowflake(id), token, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err, true)
	}
	return nil
}

func (c *Client) CreateWebhook(ctx context.Context, channel uint64, name string) (uint64, string, error) {
	wh, err := c.s.WebhookCreate(snowflake(channel), name, "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, "", mapError(err, false)
	}
	id, err := strconv.ParseUint(wh.ID, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("discord: bad webhook id %q: %w", wh.ID, err)
	}
	return id, wh.Token, nil
}

func (c *Client) PinMessage(ctx context.Context, channel uint64, messageID string) error {
	err := c.s.ChannelMessagePin(snowflake(channel), messageID, discordgo.WithContext(ctx))
	return mapError(err, false)
}

func (c *Client) DMChannel(ctx context.Context, user uint64) (uint64, error) {
	ch, err := c.s.UserChannelCreate(snowflake(user), discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err, false)
	}
	id, err := strconv.ParseUint(ch.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("discord: bad channel id %q: %w", ch.ID, err)
	}
	return id, nil
}

func (c *Client) ChannelGuild(ctx context.Context, channel uint64) (uint64, error) {
	ch, err := c.s.Channel(snowflake(channel), discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err, false)
	}
	if ch.GuildID == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(ch.GuildID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("discord: bad guild id %q: %w", ch.GuildID, err)
	}
	return id, nil
}

func (c *Client) IsMember(ctx context.Context, guild, user uint64) (bool, error) {
	_, err := c.s.GuildMember(snowflake(guild), snowflake(user), discordgo.WithContext(ctx))
	if err != nil {
		err = mapError(err, false)
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func snowflake(id uint64) string { return strconv.FormatUint(id, 10) }

func toMessageEmbed(e *platform.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       int(e.Color),
	}
	if e.Author != "" || e.AuthorURL != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.Author, IconURL: e.AuthorURL}
	}
	if e.Footer != "" || e.FooterURL != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer, IconURL: e.FooterURL}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Title,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return out
}

// mapError folds Discord REST errors onto the platform sentinels. For
// webhook endpoints a plain 404 means the webhook itself is gone.
func mapError(err error, webhook bool) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) {
		return err
	}
	if rerr.Message != nil {
		switch rerr.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownMessage,
			discordgo.ErrCodeUnknownUser:
			return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
		case discordgo.ErrCodeUnknownWebhook:
			return fmt.Errorf("%w: %v", platform.ErrWebhookGone, err)
		case discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("%w: %v", platform.ErrCannotMessageUser, err)
		}
	}
	if rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		if webhook {
			return fmt.Errorf("%w: %v", platform.ErrWebhookGone, err)
		}
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	return err
}
