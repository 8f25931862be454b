package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"funnel-bot/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Nudge{}))
	return db
}

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	stopped := !t.stopped
	t.stopped = true
	return stopped
}

// fakeClock drives timers manually via Advance; Sleep moves time forward
// without blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock and fires every due, unstopped timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.deadline.After(c.now) {
			due = append(due, timer)
		} else {
			rest = append(rest, timer)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
}

type sentMessage struct {
	chatID int64
	text   string
}

// fakeGateway records outbound sends; chat ids in failFor error on SendText.
type fakeGateway struct {
	mu       sync.Mutex
	texts    []sentMessage
	videos   []sentMessage
	opening  []sentMessage
	prompts  []sentMessage
	operator []string
	failFor  map[int64]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failFor: make(map[int64]bool)}
}

func (g *fakeGateway) SendText(chatID int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[chatID] {
		return errFakeSend
	}
	g.texts = append(g.texts, sentMessage{chatID, text})
	return nil
}

func (g *fakeGateway) SendVideo(chatID int64, fileID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.videos = append(g.videos, sentMessage{chatID, fileID})
	return nil
}

func (g *fakeGateway) SendOpeningVideo(chatID int64, fileID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opening = append(g.opening, sentMessage{chatID, fileID})
	return nil
}

func (g *fakeGateway) SendDecisionPrompt(chatID int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, sentMessage{chatID, text})
	return nil
}

func (g *fakeGateway) NotifyOperator(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operator = append(g.operator, text)
}

func (g *fakeGateway) sentTexts(chatID int64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, m := range g.texts {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

var errFakeSend = errSend{}

type errSend struct{}

func (errSend) Error() string { return "send refused" }
