package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"remindbot/internal/platform"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type sentCall struct {
	channel uint64
	webhook uint64
	req     platform.SendRequest
}

// fakeClient records outbound calls and fails on demand. The mutex
// matters only for the Start/Stop test, where the loop goroutine
// races the assertions.
type fakeClient struct {
	mu          sync.Mutex
	sends       []sentCall
	pins        []string
	sendErr     error
	webhookErr  error // returned by FetchWebhook
	executeErr  error
	pinErr      error
	nextMessage int
}

func (f *fakeClient) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeClient) SendToChannel(ctx context.Context, channel uint64, req platform.SendRequest) (*platform.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.mu.Lock()
	f.sends = append(f.sends, sentCall{channel: channel, req: req})
	f.nextMessage++
	n := f.nextMessage
	f.mu.Unlock()
	return &platform.Message{ID: msgID(n), Channel: channel}, nil
}

func (f *fakeClient) ExecuteWebhook(ctx context.Context, id uint64, token string, req platform.SendRequest, wait bool) (*platform.Message, error) {
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	f.mu.Lock()
	f.sends = append(f.sends, sentCall{webhook: id, req: req})
	f.mu.Unlock()
	if !wait {
		return nil, nil
	}
	f.mu.Lock()
	f.nextMessage++
	n := f.nextMessage
	f.mu.Unlock()
	return &platform.Message{ID: msgID(n), Channel: 100}, nil
}

func (f *fakeClient) FetchWebhook(ctx context.Context, id uint64, token string) error {
	return f.webhookErr
}

func (f *fakeClient) CreateWebhook(ctx context.Context, channel uint64, name string) (uint64, string, error) {
	return 0, "", errors.New("unexpected CreateWebhook")
}

func (f *fakeClient) PinMessage(ctx context.Context, channel uint64, messageID string) error {
	if f.pinErr != nil {
		return f.pinErr
	}
	f.mu.Lock()
	f.pins = append(f.pins, messageID)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) DMChannel(ctx context.Context, user uint64) (uint64, error) {
	return 0, errors.New("unexpected DMChannel")
}

func (f *fakeClient) ChannelGuild(ctx context.Context, channel uint64) (uint64, error) {
	return 0, errors.New("unexpected ChannelGuild")
}

func (f *fakeClient) IsMember(ctx context.Context, guild, user uint64) (bool, error) {
	return false, errors.New("unexpected IsMember")
}

func msgID(n int) string {
	return string(rune('a' + n - 1))
}

type fixture struct {
	store   *storage.Store
	client  *fakeClient
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := &fakeClient{}
	svc := New(Config{SendRate: 1000, SendBurst: 100}, s, c, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return &fixture{store: s, client: c, service: svc}
}

type seed struct {
	due      time.Time
	interval uint64 // seconds
	content  reminder.Content
	webhook  bool
	enabled  bool
}

func (fx *fixture) seedReminder(t *testing.T, sd seed) string {
	t.Helper()
	ctx := context.Background()
	ch, err := fx.store.EnsureChannel(ctx, 100, 1)
	if err != nil {
		t.Fatalf("EnsureChannel: %v", err)
	}
	if sd.webhook {
		if _, _, err := fx.store.SetWebhookIfAbsent(ctx, ch.ID, 9001, "tok"); err != nil {
			t.Fatalf("SetWebhookIfAbsent: %v", err)
		}
	}
	if sd.due.IsZero() {
		sd.due = testNow.Add(-time.Minute)
	}
	uid := reminder.GenerateUID()
	if _, err := fx.store.CreateReminder(ctx, storage.NewReminder{
		UID:             uid,
		ChannelID:       ch.ID,
		UTCTime:         sd.due,
		Timezone:        "UTC",
		IntervalSeconds: sd.interval,
		Content:         sd.content,
	}); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if !sd.enabled {
		if err := fx.store.SetEnabled(ctx, uid, false); err != nil {
			t.Fatalf("SetEnabled: %v", err)
		}
	}
	return uid
}

func TestCycleDeliversAndReschedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		interval: 600,
		content:  reminder.Content{Content: "stand up"},
		enabled:  true,
	})

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	if got := fx.client.sends[0].req.Content; got != "stand up" {
		t.Fatalf("content = %q", got)
	}

	r, err := fx.store.ReminderByUID(ctx, uid)
	if err != nil {
		t.Fatalf("ReminderByUID: %v", err)
	}
	if !r.UTCTime.After(testNow) {
		t.Fatalf("next due %v not after now", r.UTCTime)
	}

	// nothing due anymore; a second cycle must not resend
	fx.service.Cycle(ctx)
	if len(fx.client.sends) != 1 {
		t.Fatalf("second cycle resent: %d sends", len(fx.client.sends))
	}
}

func TestCycleDeletesOneShot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		content: reminder.Content{Content: "once"},
		enabled: true,
	})

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	if _, err := fx.store.ReminderByUID(ctx, uid); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("one-shot still present after delivery: %v", err)
	}
}

func TestCycleRetiresGoneDestination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		interval: 600,
		content:  reminder.Content{Content: "gone"},
		enabled:  true,
	})
	fx.client.sendErr = platform.ErrNotFound

	fx.service.Cycle(ctx)

	// terminal failure deletes even a recurring reminder
	if _, err := fx.store.ReminderByUID(ctx, uid); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("reminder survived a gone destination: %v", err)
	}
}

func TestCycleTransientFailureReschedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		interval: 600,
		content:  reminder.Content{Content: "flaky"},
		enabled:  true,
	})
	fx.client.sendErr = errors.New("rate limited upstream")

	fx.service.Cycle(ctx)

	r, err := fx.store.ReminderByUID(ctx, uid)
	if err != nil {
		t.Fatalf("recurring reminder deleted on transient failure: %v", err)
	}
	if !r.UTCTime.After(testNow) {
		t.Fatalf("not rescheduled: %v", r.UTCTime)
	}
}

func TestCycleWebhookFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedReminder(t, seed{
		content: reminder.Content{Content: "hi", Username: "Chef", Avatar: "http://a"},
		webhook: true,
		enabled: true,
	})

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	call := fx.client.sends[0]
	if call.webhook != 9001 {
		t.Fatalf("sent to channel %d instead of webhook", call.channel)
	}
	if call.req.Username != "Chef" || call.req.AvatarURL != "http://a" {
		t.Fatalf("webhook overrides dropped: %+v", call.req)
	}
}

func TestCycleWebhookGoneFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedReminder(t, seed{
		content: reminder.Content{Content: "hi", Username: "Chef"},
		webhook: true,
		enabled: true,
	})
	fx.client.webhookErr = platform.ErrWebhookGone

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	call := fx.client.sends[0]
	if call.channel != 100 {
		t.Fatalf("fallback did not use the raw channel path: %+v", call)
	}
	if call.req.Username != "" {
		t.Fatal("raw path must strip the username override")
	}

	// stale credential cleared so the next cycle goes raw immediately
	ch, err := fx.store.ChannelByRef(ctx, 100)
	if err != nil {
		t.Fatalf("ChannelByRef: %v", err)
	}
	if ch.WebhookID != 0 {
		t.Fatalf("webhook credential not cleared: %d", ch.WebhookID)
	}
}

func TestCyclePausedChannelSkipsSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		interval: 600,
		content:  reminder.Content{Content: "quiet"},
		enabled:  true,
	})
	if err := fx.store.SetPause(ctx, 100, true, testNow.Add(time.Hour)); err != nil {
		t.Fatalf("SetPause: %v", err)
	}

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 0 {
		t.Fatalf("sent through an active pause: %d sends", len(fx.client.sends))
	}
	// the schedule still moves so deliveries resume at the next slot
	r, err := fx.store.ReminderByUID(ctx, uid)
	if err != nil {
		t.Fatalf("ReminderByUID: %v", err)
	}
	if !r.UTCTime.After(testNow) {
		t.Fatalf("paused reminder not advanced: %v", r.UTCTime)
	}
}

func TestCycleExpiredPauseClearedAndDelivered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedReminder(t, seed{
		content: reminder.Content{Content: "resume"},
		enabled: true,
	})
	if err := fx.store.SetPause(ctx, 100, true, testNow.Add(-time.Minute)); err != nil {
		t.Fatalf("SetPause: %v", err)
	}

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	ch, err := fx.store.ChannelByRef(ctx, 100)
	if err != nil {
		t.Fatalf("ChannelByRef: %v", err)
	}
	if ch.Paused {
		t.Fatal("elapsed pause not cleared")
	}
}

func TestCycleDisabledRecurringAdvancesWithoutSending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		interval: 600,
		content:  reminder.Content{Content: "off"},
		enabled:  false,
	})

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 0 {
		t.Fatalf("disabled reminder sent: %d sends", len(fx.client.sends))
	}
	r, err := fx.store.ReminderByUID(ctx, uid)
	if err != nil {
		t.Fatalf("ReminderByUID: %v", err)
	}
	if !r.UTCTime.After(testNow) {
		t.Fatalf("disabled reminder not advanced: %v", r.UTCTime)
	}
}

func TestCyclePinFailureSwallowed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	uid := fx.seedReminder(t, seed{
		interval: 600,
		content:  reminder.Content{Content: "pin me", Pin: true},
		enabled:  true,
	})
	fx.client.pinErr = errors.New("missing permission")

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	r, err := fx.store.ReminderByUID(ctx, uid)
	if err != nil {
		t.Fatalf("pin failure retired the reminder: %v", err)
	}
	if !r.UTCTime.After(testNow) {
		t.Fatalf("not rescheduled after pin failure: %v", r.UTCTime)
	}
}

func TestCyclePinsWhenRequested(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedReminder(t, seed{
		content: reminder.Content{Content: "pin me", Pin: true},
		webhook: true,
		enabled: true,
	})

	fx.service.Cycle(ctx)

	if len(fx.client.pins) != 1 {
		t.Fatalf("got %d pins, want 1", len(fx.client.pins))
	}
}

func TestCycleRendersEmbedSubstitutions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedReminder(t, seed{
		content: reminder.Content{
			Content: "in <<timefrom:1750000000:%h h>>",
			Embed: &reminder.Embed{
				Title:       "UTC now <<timenow:UTC:%H>>",
				Description: "body",
			},
		},
		enabled: true,
	})

	fx.service.Cycle(ctx)

	if len(fx.client.sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(fx.client.sends))
	}
	req := fx.client.sends[0].req
	if req.Content == "" || req.Content[0:3] != "in " || req.Content == "in <<timefrom:1750000000:%h h>>" {
		t.Fatalf("timefrom tag not substituted: %q", req.Content)
	}
	if req.Embed == nil {
		t.Fatal("embed missing")
	}
	if req.Embed.Title != "UTC now 12" {
		t.Fatalf("embed title = %q", req.Embed.Title)
	}
}

// blockingClient holds a send open until released, recording whether
// cancellation cut it short.
type blockingClient struct {
	fakeClient
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
	ctxErr    error
}

func (b *blockingClient) SendToChannel(ctx context.Context, channel uint64, req platform.SendRequest) (*platform.Message, error) {
	b.enterOnce.Do(func() { close(b.entered) })
	select {
	case <-ctx.Done():
		b.mu.Lock()
		b.ctxErr = ctx.Err()
		b.mu.Unlock()
		return nil, ctx.Err()
	case <-b.release:
	}
	return b.fakeClient.SendToChannel(ctx, channel, req)
}

func (b *blockingClient) interrupted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctxErr
}

func TestStopWaitsForInFlightDelivery(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.seedReminder(t, seed{content: reminder.Content{Content: "slow"}, enabled: true})

	bc := &blockingClient{entered: make(chan struct{}), release: make(chan struct{})}
	fx.service.client = bc
	fx.service.now = time.Now

	fx.service.Apply(Config{Period: time.Hour, SendRate: 1000, SendBurst: 100})
	fx.service.Start(context.Background())

	select {
	case <-bc.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}

	stopped := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		fx.service.Stop(ctx)
		close(stopped)
	}()

	// the send in flight must keep running past the stop request
	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(bc.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the delivery finished")
	}

	if err := bc.interrupted(); err != nil {
		t.Fatalf("in-flight send was cancelled: %v", err)
	}
	if bc.sendCount() != 1 {
		t.Fatalf("got %d sends, want 1", bc.sendCount())
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	fx.seedReminder(t, seed{content: reminder.Content{Content: "loop"}, enabled: true})

	fx.service.Apply(Config{Period: 5 * time.Millisecond, SendRate: 1000, SendBurst: 100})
	fx.service.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for fx.client.sendCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("loop never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fx.service.Stop(ctx)
}
