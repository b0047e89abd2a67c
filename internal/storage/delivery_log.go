package storage

import (
	"context"
	"time"
)

// DeliveryEntry records one delivery attempt. Kept compact and
// schema-stable; the janitor prunes old rows.
type DeliveryEntry struct {
	ReminderUID string
	Channel     uint64
	OK          bool
	Error       string
	TookMS      int64
	At          time.Time
}

// AppendDelivery writes one attempt record. Best-effort from the
// dispatcher's point of view: a failed append never fails a delivery.
func (s *Store) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_log(reminder_uid, channel, ok, error, took_ms, at)
		 VALUES(?,?,?,?,?,?)`,
		e.ReminderUID, int64(e.Channel), e.OK, nullStr(e.Error), e.TookMS, fmtTime(e.At),
	)
	return err
}

// PruneDeliveryLog removes attempt records older than before.
func (s *Store) PruneDeliveryLog(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_log WHERE at < ?`, fmtTime(before),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
