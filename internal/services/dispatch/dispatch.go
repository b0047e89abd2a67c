// Package dispatch drives reminder delivery: a single polling loop
// that collects due reminders, renders their payloads, sends them
// webhook-first with a raw-channel fallback, and reschedules or
// retires each one afterwards.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"remindbot/internal/platform"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/template"
)

type Config struct {
	Period    time.Duration // poll period; 0 means 10s
	SendRate  float64       // outbound messages per second; 0 means 10
	SendBurst int           // limiter burst; 0 means 5
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = 10 * time.Second
	}
	if c.SendRate <= 0 {
		c.SendRate = 10
	}
	if c.SendBurst <= 0 {
		c.SendBurst = 5
	}
	return c
}

// Service is the delivery loop. Safe for concurrent Start/Stop/Apply.
type Service struct {
	mu sync.Mutex

	log     zerolog.Logger
	store   *storage.Store
	client  platform.Client
	cfg     Config
	limiter *rate.Limiter

	runCancel context.CancelFunc
	stopDone  chan struct{}

	now func() time.Time
}

func New(cfg Config, store *storage.Store, client platform.Client, log zerolog.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		store:   store,
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		now:     time.Now,
	}
}

func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.SendRate != s.cfg.SendRate || cfg.SendBurst != s.cfg.SendBurst {
		s.limiter.SetLimit(rate.Limit(cfg.SendRate))
		s.limiter.SetBurst(cfg.SendBurst)
	}
	s.cfg = cfg
}

func (s *Service) period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Period
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.stopDone = make(chan struct{})
	go s.run(runCtx, s.stopDone)
	s.log.Info().Dur("period", s.cfg.Period).Msg("dispatch started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.runCancel, s.stopDone
	s.runCancel, s.stopDone = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info().Msg("dispatch stopped")
}

// run wakes on an anchored schedule: each wake is the previous wake
// plus the period, so a slow cycle does not drift the next one later.
// Cancellation is only observed at the sleep point; an in-flight cycle
// always completes, so cycles run under a context detached from the
// stop signal.
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	cycleCtx := context.WithoutCancel(ctx)
	wake := s.now()
	for {
		s.Cycle(cycleCtx)

		wake = wake.Add(s.period())
		d := time.Until(wake)
		if d < 0 {
			// cycle overran the period, start the next one now
			wake = s.now()
			d = 0
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Cycle collects and delivers everything due right now. Exported so
// the caller can force an immediate sweep.
func (s *Service) Cycle(ctx context.Context) {
	now := s.now()
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("due query failed")
		return
	}
	for _, r := range due {
		s.deliver(ctx, r, now)
	}
}

func (s *Service) deliver(ctx context.Context, r *reminder.Reminder, now time.Time) {
	log := s.log.With().Str("uid", r.UID).Uint64("channel", r.Channel).Logger()

	sent, err := s.send(ctx, r, now, log)
	if sent || err != nil {
		s.logDelivery(ctx, r, err, now)
	}
	if err != nil && terminal(err) {
		log.Warn().Err(err).Msg("destination gone, retiring reminder")
		if derr := s.store.DeleteReminder(ctx, r.ID); derr != nil {
			log.Error().Err(derr).Msg("retire failed")
		}
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("delivery failed")
	}

	next, action := reminder.Advance(r, now, log)
	switch action {
	case reminder.ActionDelete:
		if derr := s.store.DeleteReminder(ctx, r.ID); derr != nil {
			log.Error().Err(derr).Msg("delete after delivery failed")
		}
	case reminder.ActionReschedule:
		if uerr := s.store.UpdateReminderTime(ctx, r.ID, next); uerr != nil {
			log.Error().Err(uerr).Msg("reschedule failed")
		}
	}
}

// send performs one delivery attempt. It reports whether a send was
// actually attempted: disabled and paused reminders advance without
// one.
func (s *Service) send(ctx context.Context, r *reminder.Reminder, now time.Time, log zerolog.Logger) (bool, error) {
	if !r.Enabled {
		return false, nil
	}
	if r.ChannelPaused {
		if r.ChannelPausedUntil.IsZero() || r.ChannelPausedUntil.After(now) {
			log.Debug().Msg("channel paused, skipping send")
			return false, nil
		}
		// pause window elapsed, clear it and deliver
		if err := s.store.ClearPause(ctx, r.Channel); err != nil {
			log.Error().Err(err).Msg("clearing stale pause failed")
		}
	}

	req, err := s.render(ctx, r, now)
	if err != nil {
		return false, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}

	if r.WebhookID != 0 && r.WebhookToken != "" {
		msg, err := s.sendWebhook(ctx, r, req)
		if err == nil {
			s.pin(ctx, r, msg, log)
			return true, nil
		}
		if !errors.Is(err, platform.ErrWebhookGone) {
			return true, err
		}
		// credential vanished between cycles or mid-send; drop it and
		// fall through to the raw channel path
		log.Info().Uint64("webhook", r.WebhookID).Msg("webhook gone, falling back to channel send")
		if cerr := s.store.ClearWebhook(ctx, r.Channel); cerr != nil {
			log.Error().Err(cerr).Msg("clearing webhook failed")
		}
	}

	// the raw path cannot impersonate, strip the overrides
	req.Username, req.AvatarURL = "", ""
	msg, err := s.client.SendToChannel(ctx, r.Channel, req)
	if err != nil {
		return true, err
	}
	s.pin(ctx, r, msg, log)
	return true, nil
}

func (s *Service) sendWebhook(ctx context.Context, r *reminder.Reminder, req platform.SendRequest) (*platform.Message, error) {
	if err := s.client.FetchWebhook(ctx, r.WebhookID, r.WebhookToken); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			err = platform.ErrWebhookGone
		}
		return nil, err
	}
	// only wait for the message handle when we need it afterwards
	return s.client.ExecuteWebhook(ctx, r.WebhookID, r.WebhookToken, req, r.Pin)
}

func (s *Service) pin(ctx context.Context, r *reminder.Reminder, msg *platform.Message, log zerolog.Logger) {
	if !r.Pin || msg == nil {
		return
	}
	if err := s.client.PinMessage(ctx, msg.Channel, msg.ID); err != nil {
		// pinning is best effort, the reminder itself was delivered
		log.Warn().Err(err).Msg("pin failed")
	}
}

// render builds the outbound payload, applying content substitution to
// the text and every embed text field.
func (s *Service) render(ctx context.Context, r *reminder.Reminder, now time.Time) (platform.SendRequest, error) {
	req := platform.SendRequest{
		Content:        template.SubstituteAt(r.Content, now),
		TTS:            r.TTS,
		Attachment:     r.Attachment,
		AttachmentName: r.AttachmentName,
		Username:       r.Username,
		AvatarURL:      r.Avatar,
	}
	e, err := s.store.EmbedByReminder(ctx, r.ID)
	if err != nil {
		return req, err
	}
	if e == nil {
		return req, nil
	}
	pe := &platform.Embed{
		Title:        template.SubstituteAt(e.Title, now),
		Description:  template.SubstituteAt(e.Description, now),
		ImageURL:     e.ImageURL,
		ThumbnailURL: e.ThumbnailURL,
		Footer:       template.SubstituteAt(e.Footer, now),
		FooterURL:    e.FooterURL,
		Author:       e.Author,
		AuthorURL:    e.AuthorURL,
		Color:        e.Color,
	}
	for _, f := range e.Fields {
		pe.Fields = append(pe.Fields, platform.EmbedField{
			Title:  template.SubstituteAt(f.Title, now),
			Value:  template.SubstituteAt(f.Value, now),
			Inline: f.Inline,
		})
	}
	req.Embed = pe
	return req, nil
}

func (s *Service) logDelivery(ctx context.Context, r *reminder.Reminder, sendErr error, start time.Time) {
	e := storage.DeliveryEntry{
		ReminderUID: r.UID,
		Channel:     r.Channel,
		OK:          sendErr == nil,
		TookMS:      s.now().Sub(start).Milliseconds(),
		At:          s.now(),
	}
	if sendErr != nil {
		e.Error = sendErr.Error()
	}
	if err := s.store.AppendDelivery(ctx, e); err != nil {
		s.log.Error().Err(err).Msg("delivery log append failed")
	}
}

// terminal reports whether the destination is permanently unreachable.
func terminal(err error) bool {
	return errors.Is(err, platform.ErrNotFound) ||
		errors.Is(err, platform.ErrCannotMessageUser)
}
