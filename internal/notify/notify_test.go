package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"github.com/spindlehq/spindle/internal/actions"
	"github.com/spindlehq/spindle/internal/config"
	"github.com/spindlehq/spindle/internal/db"
	"github.com/spindlehq/spindle/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type mockSlack struct {
	mu       sync.Mutex
	channels []string
}

func (m *mockSlack) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channelID)
	return channelID, "ts", nil
}

type mockDiscord struct {
	mu    sync.Mutex
	calls int
}

func (m *mockDiscord) WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return &discordgo.Message{}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestDeliver_StoresNotificationRows(t *testing.T) {
	gdb := openTestDB(t)
	p, err := New(Opts{DB: gdb})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p.Deliver(context.Background(), []actions.Effect{
		{Notification: &models.Notification{Actor: "u-amy", Recipient: "u-ben", Content: "card done", EntityID: "card-a", EntityType: "card"}},
		{Notification: &models.Notification{Actor: "u-amy", Recipient: "u-cat", Content: "card done", EntityID: "card-a", EntityType: "card"}},
	})

	var rows []models.Notification
	if err := gdb.Order("recipient").Find(&rows).Error; err != nil {
		t.Fatalf("query notifications: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Recipient != "u-ben" || rows[1].Recipient != "u-cat" {
		t.Errorf("recipients = %q, %q", rows[0].Recipient, rows[1].Recipient)
	}
	if rows[0].Read {
		t.Error("new notification should be unread")
	}
}

func TestDeliver_MirrorsToSlackAndDiscord(t *testing.T) {
	gdb := openTestDB(t)
	slack := &mockSlack{}
	discord := &mockDiscord{}
	p, err := New(Opts{
		DB:      gdb,
		Config:  config.NotifyConfig{Slack: config.SlackConfig{Channel: "#spindle"}},
		Slack:   slack,
		Discord: discord,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p.Deliver(context.Background(), []actions.Effect{
		{Notification: &models.Notification{Recipient: "u-ben", Content: "ping"}},
	})

	if len(slack.channels) != 1 || slack.channels[0] != "#spindle" {
		t.Errorf("slack posts = %v", slack.channels)
	}
	if discord.calls != 1 {
		t.Errorf("discord calls = %d, want 1", discord.calls)
	}
}

func TestDeliver_Webhook(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(buf))
		ctype = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := New(Opts{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p.Deliver(context.Background(), []actions.Effect{
		{Webhook: &actions.WebhookCall{URL: srv.URL, Payload: map[string]any{"entityId": "card-a"}}},
	})

	if len(bodies) != 1 {
		t.Fatalf("webhook calls = %d, want 1", len(bodies))
	}
	if bodies[0] != `{"entityId":"card-a"}` {
		t.Errorf("body = %s", bodies[0])
	}
	if ctype != "application/json" {
		t.Errorf("content type = %q", ctype)
	}
}

func TestDeliver_WebhookFailureDoesNotPanic(t *testing.T) {
	p, err := New(Opts{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Unreachable URL; the failure is logged and swallowed.
	p.Deliver(context.Background(), []actions.Effect{
		{Webhook: &actions.WebhookCall{URL: "http://127.0.0.1:1/hook", Payload: map[string]any{}}},
	})
}
