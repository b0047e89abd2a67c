// Package reminder holds the scheduling domain model: the reminder
// row joined with its channel delivery state, the embed payload, and
// the recurrence engine that advances due times.
package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Reminder is one scheduling unit, as fetched for delivery: the stored
// row joined with the delivery state of its destination channel.
//
// Optional columns use zero values as "unset": a zero WebhookID means
// no credential, a zero Expires means no cutoff, and zero interval
// fields mean one-shot. Valid intervals are never zero (the builder
// enforces a minimum), so no NULL flags are carried around.
type Reminder struct {
	ID  int64
	UID string

	ChannelID int64  // store row id of the channel
	Channel   uint64 // platform channel reference

	WebhookID    uint64
	WebhookToken string

	ChannelPaused      bool
	ChannelPausedUntil time.Time

	UTCTime         time.Time // next due instant, naive UTC in the store
	Timezone        string    // IANA zone interpreting the recurrence
	IntervalSeconds uint64
	IntervalMonths  uint64
	Enabled         bool
	Expires         time.Time

	Content        string
	TTS            bool
	Pin            bool
	Attachment     []byte
	AttachmentName string
	Username       string
	Avatar         string

	SetBy int64
	SetAt time.Time
}

// Recurring reports whether the reminder reschedules after delivery.
func (r *Reminder) Recurring() bool {
	return r.IntervalSeconds > 0 || r.IntervalMonths > 0
}

// Embed is the optional rich payload of a reminder.
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
	Title  string `json:"title"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// HasContent reports whether anything would actually render. Empty
// embeds are dropped rather than sent.
func (e *Embed) HasContent() bool {
	if e == nil {
		return false
	}
	return e.Title != "" || e.Description != "" || e.ImageURL != "" ||
		e.ThumbnailURL != "" || e.Footer != "" || e.FooterURL != "" ||
		e.Author != "" || e.AuthorURL != "" || len(e.Fields) > 0
}

// Content is the payload a caller hands to the builder.
type Content struct {
	Content        string
	TTS            bool
	Pin            bool
	Attachment     []byte
	AttachmentName string
	Embed          *Embed
	Username       string
	Avatar         string
}

// ScopeKind distinguishes reminder destinations.
type ScopeKind int

const (
	ScopeUser ScopeKind = iota
	ScopeChannel
)

// Scope is one requested destination: a user (delivered by DM) or a
// guild channel.
type Scope struct {
	Kind ScopeKind
	ID   uint64
}

func UserScope(id uint64) Scope    { return Scope{Kind: ScopeUser, ID: id} }
func ChannelScope(id uint64) Scope { return Scope{Kind: ScopeChannel, ID: id} }

// Mention renders the platform mention form of the destination.
func (s Scope) Mention() string {
	if s.Kind == ScopeUser {
		return fmt.Sprintf("<@%d>", s.ID)
	}
	return fmt.Sprintf("<#%d>", s.ID)
}

// LonghandDisplacement renders a second count as "1 days, 2 hours,
// 5 seconds", skipping zero units.
func LonghandDisplacement(seconds uint64) string {
	days := seconds / 86400
	seconds %= 86400
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	var sections []string
	for _, part := range []struct {
		n    uint64
		name string
	}{
		{days, "days"},
		{hours, "hours"},
		{minutes, "minutes"},
		{seconds, "seconds"},
	} {
		if part.n > 0 {
			sections = append(sections, fmt.Sprintf("%d %s", part.n, part.name))
		}
	}
	return strings.Join(sections, ", ")
}
