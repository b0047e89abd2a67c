// Package builder is the construction contract for reminders: it
// resolves destinations, validates schedule parameters, provisions
// webhook credentials, and persists the rows. It is the only way the
// surrounding application creates reminders.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"remindbot/internal/interval"
	"remindbot/internal/platform"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
)

// Limits bounds the schedule parameters accepted from users.
type Limits struct {
	MinInterval time.Duration // total interval length floor
	MaxDuration time.Duration // interval length ceiling
	WebhookName string        // display name for provisioned webhooks
}

const (
	DefaultMinInterval = 10 * time.Minute
	DefaultMaxDuration = 50 * 365 * 24 * time.Hour
	defaultWebhookName = "Reminder"
)

func (l Limits) withDefaults() Limits {
	if l.MinInterval <= 0 {
		l.MinInterval = DefaultMinInterval
	}
	if l.MaxDuration <= 0 {
		l.MaxDuration = DefaultMaxDuration
	}
	if l.WebhookName == "" {
		l.WebhookName = defaultWebhookName
	}
	return l
}

// Builder creates one reminder for one destination. It is the common
// case; MultiBuilder backs it.
type Builder struct {
	mb    *MultiBuilder
	scope reminder.Scope
}

// NewBuilder starts a single-destination builder.
func NewBuilder(store *storage.Store, client platform.Client, limits Limits, log zerolog.Logger, guild uint64, scope reminder.Scope) *Builder {
	return &Builder{mb: New(store, client, limits, log, guild), scope: scope}
}

func (b *Builder) Content(c reminder.Content) *Builder { b.mb.Content(c); return b }
func (b *Builder) Time(t time.Time) *Builder           { b.mb.Time(t); return b }
func (b *Builder) Timezone(tz string) *Builder         { b.mb.Timezone(tz); return b }
func (b *Builder) Interval(iv *interval.Interval) *Builder {
	b.mb.Interval(iv)
	return b
}
func (b *Builder) Expires(t time.Time) *Builder { b.mb.Expires(t); return b }
func (b *Builder) Author(ctx context.Context, user uint64) *Builder {
	b.mb.Author(ctx, user)
	return b
}

// Build validates and persists, returning the new reminder's uid.
func (b *Builder) Build(ctx context.Context) (string, error) {
	if err := b.mb.checkInterval(); err != nil {
		return "", err
	}
	return b.mb.buildOne(ctx, b.scope)
}

// MultiBuilder requests the same reminder for several destinations.
// Each destination is attempted independently: one failure never
// aborts the others.
type MultiBuilder struct {
	store  *storage.Store
	client platform.Client
	log    zerolog.Logger
	limits Limits

	guild    uint64 // owning guild; 0 for a DM context
	scopes   []reminder.Scope
	utcTime  time.Time
	timezone string
	interval *interval.Interval
	expires  time.Time
	content  reminder.Content
	setBy    int64

	now func() time.Time
}

// New starts a builder for the given owning guild (0 in DMs).
func New(store *storage.Store, client platform.Client, limits Limits, log zerolog.Logger, guild uint64) *MultiBuilder {
	return &MultiBuilder{
		store:    store,
		client:   client,
		log:      log,
		limits:   limits.withDefaults(),
		guild:    guild,
		timezone: "UTC",
		now:      time.Now,
	}
}

func (b *MultiBuilder) Content(c reminder.Content) *MultiBuilder {
	b.content = c
	return b
}

// Time sets the requested due instant (before the channel nudge).
func (b *MultiBuilder) Time(t time.Time) *MultiBuilder {
	b.utcTime = t
	return b
}

// Timezone sets the IANA zone recurrence is interpreted in.
func (b *MultiBuilder) Timezone(tz string) *MultiBuilder {
	b.timezone = tz
	return b
}

// Interval makes the reminder recurring. nil means one-shot.
func (b *MultiBuilder) Interval(iv *interval.Interval) *MultiBuilder {
	b.interval = iv
	return b
}

// Expires sets the absolute cutoff after which the reminder stops
// firing. Zero means no cutoff.
func (b *MultiBuilder) Expires(t time.Time) *MultiBuilder {
	b.expires = t
	return b
}

// Author records the creating user and adopts their stored timezone.
func (b *MultiBuilder) Author(ctx context.Context, user uint64) *MultiBuilder {
	u, err := b.store.EnsureUser(ctx, user)
	if err != nil {
		b.log.Warn().Uint64("user", user).Err(err).Msg("author lookup failed, keeping defaults")
		return b
	}
	b.setBy = u.ID
	if u.Timezone != "" {
		b.timezone = u.Timezone
	}
	return b
}

// Scopes sets the requested destinations.
func (b *MultiBuilder) Scopes(scopes ...reminder.Scope) *MultiBuilder {
	b.scopes = scopes
	return b
}

// Result is the per-destination outcome of a Build call.
type Result struct {
	OK     []Created
	Failed []ScopeError
}

// Created pairs a destination with the uid of the reminder persisted
// for it.
type Created struct {
	Scope reminder.Scope
	UID   string
}

type ScopeError struct {
	Scope reminder.Scope
	Err   error
}

// Build validates the schedule, then attempts each destination in
// turn, partitioning them into success and failure sets.
func (b *MultiBuilder) Build(ctx context.Context) Result {
	var res Result

	if err := b.checkInterval(); err != nil {
		for _, sc := range b.scopes {
			res.Failed = append(res.Failed, ScopeError{Scope: sc, Err: err})
		}
		return res
	}

	for _, sc := range b.scopes {
		uid, err := b.buildOne(ctx, sc)
		if err != nil {
			res.Failed = append(res.Failed, ScopeError{Scope: sc, Err: err})
			continue
		}
		res.OK = append(res.OK, Created{Scope: sc, UID: uid})
	}
	return res
}

func (b *MultiBuilder) checkInterval() error {
	if b.interval == nil {
		return nil
	}
	total := time.Duration(b.interval.TotalSeconds()) * time.Second
	if total < b.limits.MinInterval {
		return reminder.ErrShortInterval
	}
	if total > b.limits.MaxDuration {
		return reminder.ErrLongInterval
	}
	return nil
}

func (b *MultiBuilder) buildOne(ctx context.Context, sc reminder.Scope) (string, error) {
	ch, err := b.resolveScope(ctx, sc)
	if err != nil {
		return "", err
	}

	due := b.utcTime.Add(time.Duration(ch.Nudge) * time.Second)
	now := b.now()
	if due.Before(now.Add(-60 * time.Second)) {
		return "", reminder.ErrPastTime
	}
	if due.Year() > reminder.MaxYear || (!b.expires.IsZero() && b.expires.Year() > reminder.MaxYear) {
		return "", reminder.ErrLongTime
	}

	nr := storage.NewReminder{
		UID:       reminder.GenerateUID(),
		ChannelID: ch.ID,
		UTCTime:   due,
		Timezone:  b.timezone,
		Expires:   b.expires,
		Content:   b.content,
		SetBy:     b.setBy,
	}
	if b.interval != nil {
		nr.IntervalSeconds = b.interval.Sec
		nr.IntervalMonths = b.interval.Months
	}
	if _, err := b.store.CreateReminder(ctx, nr); err != nil {
		return "", fmt.Errorf("persist reminder: %w", err)
	}
	return nr.UID, nil
}

// resolveScope turns a destination into a channel row, provisioning a
// webhook for guild channels on first use.
func (b *MultiBuilder) resolveScope(ctx context.Context, sc reminder.Scope) (*storage.Channel, error) {
	switch sc.Kind {
	case reminder.ScopeUser:
		return b.resolveUser(ctx, sc.ID)
	case reminder.ScopeChannel:
		return b.resolveChannel(ctx, sc.ID)
	default:
		return nil, reminder.ErrInvalidTag
	}
}

func (b *MultiBuilder) resolveUser(ctx context.Context, user uint64) (*storage.Channel, error) {
	if b.guild != 0 {
		ok, err := b.client.IsMember(ctx, b.guild, user)
		if err != nil || !ok {
			return nil, reminder.ErrInvalidTag
		}
	}
	dm, err := b.client.DMChannel(ctx, user)
	if err != nil {
		return nil, reminder.ErrInvalidTag
	}
	if _, err := b.store.EnsureUser(ctx, user); err != nil {
		return nil, err
	}
	if err := b.store.SetDMChannel(ctx, user, dm); err != nil {
		return nil, err
	}
	// DM destinations get a bare channel row, no webhook
	return b.store.EnsureChannel(ctx, dm, 0)
}

func (b *MultiBuilder) resolveChannel(ctx context.Context, channel uint64) (*storage.Channel, error) {
	guild, err := b.client.ChannelGuild(ctx, channel)
	if err != nil {
		return nil, reminder.ErrInvalidTag
	}
	if guild == 0 || guild != b.guild {
		// channel reminders must target a guild channel in the owning scope
		return nil, reminder.ErrInvalidTag
	}

	ch, err := b.store.EnsureChannel(ctx, channel, guild)
	if err != nil {
		return nil, err
	}
	if ch.WebhookID != 0 && ch.WebhookToken != "" {
		return ch, nil
	}

	id, token, err := b.client.CreateWebhook(ctx, channel, b.limits.WebhookName)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, reminder.ErrInvalidTag
		}
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	// conditional write: a racing creator's credential wins and ours
	// is simply unused
	ch.WebhookID, ch.WebhookToken, err = b.store.SetWebhookIfAbsent(ctx, ch.ID, id, token)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
