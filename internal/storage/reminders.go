package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/reminder"
)

// NewReminder carries everything needed to persist a reminder row.
type NewReminder struct {
	UID             string
	ChannelID       int64
	UTCTime         time.Time
	Timezone        string
	IntervalSeconds uint64
	IntervalMonths  uint64
	Expires         time.Time
	Content         reminder.Content
	SetBy           int64
}

// CreateReminder inserts a reminder and returns its row id.
func (s *Store) CreateReminder(ctx context.Context, nr NewReminder) (int64, error) {
	var embed reminder.Embed
	if nr.Content.Embed != nil {
		embed = *nr.Content.Embed
	}
	var fieldsJSON any
	if len(embed.Fields) > 0 {
		b, err := json.Marshal(embed.Fields)
		if err != nil {
			return 0, fmt.Errorf("storage: marshal embed fields: %w", err)
		}
		fieldsJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(
			uid, channel_id, utc_time, timezone,
			interval_seconds, interval_months, expires,
			content, tts, pin, attachment, attachment_name,
			embed_title, embed_description, embed_image_url, embed_thumbnail_url,
			embed_footer, embed_footer_url, embed_author, embed_author_url,
			embed_color, embed_fields, username, avatar, set_by, set_at
		) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		nr.UID, nr.ChannelID, fmtTime(nr.UTCTime), nr.Timezone,
		nullU64(nr.IntervalSeconds), nullU64(nr.IntervalMonths), nullTime(nr.Expires),
		nr.Content.Content, nr.Content.TTS, nr.Content.Pin, nr.Content.Attachment, nullStr(nr.Content.AttachmentName),
		embed.Title, embed.Description, nullStr(embed.ImageURL), nullStr(embed.ThumbnailURL),
		embed.Footer, nullStr(embed.FooterURL), embed.Author, nullStr(embed.AuthorURL),
		int64(embed.Color), fieldsJSON, nullStr(nr.Content.Username), nullStr(nr.Content.Avatar),
		nullI64(nr.SetBy), fmtTime(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const reminderColumns = `
	r.id, r.uid, r.channel_id, c.channel,
	c.webhook_id, c.webhook_token, c.paused, c.paused_until,
	r.utc_time, r.timezone, r.interval_seconds, r.interval_months,
	r.enabled, r.expires,
	r.content, r.tts, r.pin, r.attachment, r.attachment_name,
	r.username, r.avatar, r.set_by, r.set_at`

// DueReminders selects, per destination channel, the single earliest
// overdue reminder. Disabled one-shot reminders are excluded; disabled
// recurring ones are still returned so they keep advancing instead of
// piling up. The per-channel cap bounds burst load when a channel has
// many overdue reminders.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]*reminder.Reminder, error) {
	const due = `r2.utc_time < ?
		AND (r2.enabled = 1 OR r2.interval_seconds IS NOT NULL OR r2.interval_months IS NOT NULL)`

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+`
		 FROM reminders r
		 JOIN channels c ON r.channel_id = c.id
		 WHERE r.id IN (
			SELECT (
				SELECT r2.id FROM reminders r2
				WHERE r2.channel_id = c2.id AND `+due+`
				ORDER BY r2.utc_time ASC, r2.id ASC
				LIMIT 1
			)
			FROM channels c2
		 )
		 ORDER BY r.utc_time ASC, r.id ASC`,
		fmtTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReminderByUID fetches a reminder through its external identifier.
func (s *Store) ReminderByUID(ctx context.Context, uid string) (*reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+`
		 FROM reminders r
		 JOIN channels c ON r.channel_id = c.id
		 WHERE r.uid = ?`,
		uid,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanReminder(rows)
}

func scanReminder(rows *sql.Rows) (*reminder.Reminder, error) {
	var (
		r           reminder.Reminder
		chRef       int64
		webhookID   sql.NullInt64
		webhookTok  sql.NullString
		pausedUntil sql.NullString
		utcTime     string
		intervalSec sql.NullInt64
		intervalMon sql.NullInt64
		expires     sql.NullString
		attachName  sql.NullString
		username    sql.NullString
		avatar      sql.NullString
		setBy       sql.NullInt64
		setAt       sql.NullString
	)
	err := rows.Scan(
		&r.ID, &r.UID, &r.ChannelID, &chRef,
		&webhookID, &webhookTok, &r.ChannelPaused, &pausedUntil,
		&utcTime, &r.Timezone, &intervalSec, &intervalMon,
		&r.Enabled, &expires,
		&r.Content, &r.TTS, &r.Pin, &r.Attachment, &attachName,
		&username, &avatar, &setBy, &setAt,
	)
	if err != nil {
		return nil, err
	}
	r.Channel = uint64(chRef)
	if webhookID.Valid {
		r.WebhookID = uint64(webhookID.Int64)
	}
	r.WebhookToken = webhookTok.String
	if r.ChannelPausedUntil, err = scanTime(pausedUntil); err != nil {
		return nil, err
	}
	if r.UTCTime, err = parseTime(utcTime); err != nil {
		return nil, err
	}
	if intervalSec.Valid {
		r.IntervalSeconds = uint64(intervalSec.Int64)
	}
	if intervalMon.Valid {
		r.IntervalMonths = uint64(intervalMon.Int64)
	}
	if r.Expires, err = scanTime(expires); err != nil {
		return nil, err
	}
	r.AttachmentName = attachName.String
	r.Username = username.String
	r.Avatar = avatar.String
	r.SetBy = setBy.Int64
	if r.SetAt, err = scanTime(setAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// EmbedByReminder loads the embed payload of a reminder, or nil when
// nothing would render.
func (s *Store) EmbedByReminder(ctx context.Context, id int64) (*reminder.Embed, error) {
	var (
		e         reminder.Embed
		imageURL  sql.NullString
		thumbURL  sql.NullString
		footerURL sql.NullString
		authorURL sql.NullString
		color     int64
		fields    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT embed_title, embed_description, embed_image_url, embed_thumbnail_url,
			embed_footer, embed_footer_url, embed_author, embed_author_url,
			embed_color, embed_fields
		 FROM reminders WHERE id = ?`,
		id,
	).Scan(&e.Title, &e.Description, &imageURL, &thumbURL,
		&e.Footer, &footerURL, &e.Author, &authorURL, &color, &fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.ImageURL = imageURL.String
	e.ThumbnailURL = thumbURL.String
	e.FooterURL = footerURL.String
	e.AuthorURL = authorURL.String
	e.Color = uint32(color)
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &e.Fields); err != nil {
			return nil, fmt.Errorf("storage: embed fields for reminder %d: %w", id, err)
		}
	}
	if !e.HasContent() {
		return nil, nil
	}
	return &e, nil
}

// UpdateReminderTime advances the stored due time.
func (s *Store) UpdateReminderTime(ctx context.Context, id int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET utc_time = ? WHERE id = ?`, fmtTime(t), id,
	)
	return err
}

// SetEnabled toggles delivery of a reminder without deleting it.
func (s *Store) SetEnabled(ctx context.Context, uid string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET enabled = ? WHERE uid = ?`, enabled, uid,
	)
	return err
}

// DeleteReminder removes a reminder row.
func (s *Store) DeleteReminder(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

// DeleteReminderByUID removes a reminder through its external
// identifier. Used by the CRUD surfaces, not the dispatcher.
func (s *Store) DeleteReminderByUID(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE uid = ?`, uid)
	return err
}
