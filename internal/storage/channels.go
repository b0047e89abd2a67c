package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Channel is one delivery destination: a guild channel or a user's DM
// channel, with its webhook credential and pause state.
type Channel struct {
	ID           int64
	Channel      uint64
	Guild        uint64
	Nudge        int64 // seconds added to new reminders at creation
	WebhookID    uint64
	WebhookToken string
	Paused       bool
	PausedUntil  time.Time
}

// EnsureChannel returns the channel row for a platform channel
// reference, creating it on first use. Guild is only written on
// creation.
func (s *Store) EnsureChannel(ctx context.Context, channel, guild uint64) (*Channel, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels(channel, guild) VALUES(?, ?)
		 ON CONFLICT(channel) DO NOTHING`,
		int64(channel), nullU64(guild),
	)
	if err != nil {
		return nil, err
	}
	return s.ChannelByRef(ctx, channel)
}

// ChannelByRef fetches a channel row by its platform reference.
func (s *Store) ChannelByRef(ctx context.Context, channel uint64) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel, guild, nudge, webhook_id, webhook_token, paused, paused_until
		 FROM channels WHERE channel = ?`,
		int64(channel),
	)
	return scanChannel(row)
}

func scanChannel(row *sql.Row) (*Channel, error) {
	var (
		c           Channel
		chRef       int64
		guild       sql.NullInt64
		webhookID   sql.NullInt64
		webhookTok  sql.NullString
		pausedUntil sql.NullString
	)
	err := row.Scan(&c.ID, &chRef, &guild, &c.Nudge, &webhookID, &webhookTok, &c.Paused, &pausedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Channel = uint64(chRef)
	if guild.Valid {
		c.Guild = uint64(guild.Int64)
	}
	if webhookID.Valid {
		c.WebhookID = uint64(webhookID.Int64)
	}
	c.WebhookToken = webhookTok.String
	if c.PausedUntil, err = scanTime(pausedUntil); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetWebhookIfAbsent stores a webhook credential only when the channel
// has none, and returns whichever credential ends up on the row. Safe
// to race against concurrent provisioning: the first write wins and
// later callers reuse it.
func (s *Store) SetWebhookIfAbsent(ctx context.Context, channelID int64, id uint64, token string) (uint64, string, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET webhook_id = ?, webhook_token = ?
		 WHERE id = ? AND webhook_id IS NULL`,
		int64(id), token, channelID,
	)
	if err != nil {
		return 0, "", err
	}

	var (
		gotID  sql.NullInt64
		gotTok sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT webhook_id, webhook_token FROM channels WHERE id = ?`, channelID,
	).Scan(&gotID, &gotTok)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", err
	}
	return uint64(gotID.Int64), gotTok.String, nil
}

// ClearWebhook drops a stale webhook credential so the next delivery
// falls back to raw channel send.
func (s *Store) ClearWebhook(ctx context.Context, channel uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET webhook_id = NULL, webhook_token = NULL WHERE channel = ?`,
		int64(channel),
	)
	return err
}

// SetPause pauses or unpauses deliveries to a channel. A zero until
// with paused set means an indefinite pause.
func (s *Store) SetPause(ctx context.Context, channel uint64, paused bool, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET paused = ?, paused_until = ? WHERE channel = ?`,
		paused, nullTime(until), int64(channel),
	)
	return err
}

// ClearPause resets the pause state of a channel.
func (s *Store) ClearPause(ctx context.Context, channel uint64) error {
	return s.SetPause(ctx, channel, false, time.Time{})
}

// SetNudge sets the per-channel offset applied to new reminders'
// due times at creation.
func (s *Store) SetNudge(ctx context.Context, channel uint64, nudge int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET nudge = ? WHERE channel = ?`, nudge, int64(channel),
	)
	return err
}

// ClearExpiredPauses unpauses every channel whose pause window has
// elapsed. The dispatcher also clears them lazily per delivery; this
// keeps idle channels from accumulating stale state.
func (s *Store) ClearExpiredPauses(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET paused = 0, paused_until = NULL
		 WHERE paused = 1 AND paused_until IS NOT NULL AND paused_until < ?`,
		fmtTime(now),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// User is the owner-side record: DM channel and display timezone.
type User struct {
	ID        int64
	User      uint64
	DMChannel uint64
	Timezone  string
}

// EnsureUser returns the user row, creating it with defaults on first
// sight.
func (s *Store) EnsureUser(ctx context.Context, user uint64) (*User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user) VALUES(?) ON CONFLICT(user) DO NOTHING`,
		int64(user),
	)
	if err != nil {
		return nil, err
	}
	var u User
	var ref, dm int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user, dm_channel, timezone FROM users WHERE user = ?`, int64(user),
	).Scan(&u.ID, &ref, &dm, &u.Timezone)
	if err != nil {
		return nil, err
	}
	u.User = uint64(ref)
	u.DMChannel = uint64(dm)
	return &u, nil
}

// SetDMChannel records a user's resolved DM channel reference.
func (s *Store) SetDMChannel(ctx context.Context, user, dmChannel uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET dm_channel = ? WHERE user = ?`,
		int64(dmChannel), int64(user),
	)
	return err
}

// SetUserTimezone updates the zone used to interpret the user's new
// reminders.
func (s *Store) SetUserTimezone(ctx context.Context, user uint64, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET timezone = ? WHERE user = ?`, tz, int64(user),
	)
	return err
}
