// Package notify delivers post-commit side effects: in-app notification
// rows, optional Slack and Discord mirrors, and outbound webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"
	"github.com/spindlehq/spindle/internal/actions"
	"github.com/spindlehq/spindle/internal/config"
	"gorm.io/gorm"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Publisher fans effects out to every configured channel. Delivery is
// best effort: a channel failure is logged and never surfaces to the
// caller, since the entity writes have already committed.
type Publisher struct {
	db             *gorm.DB
	slack          slackClient
	slackChannel   string
	discord        discordSession
	discordID      string
	discordToken   string
	httpClient     *http.Client
	webhookTimeout time.Duration
}

// Opts holds parameters for creating a Publisher.
type Opts struct {
	DB     *gorm.DB
	Config config.NotifyConfig
	// For testing: inject mock clients instead of real APIs.
	Slack      slackClient
	Discord    discordSession
	HTTPClient *http.Client
}

// New creates a Publisher from configuration. Channels without
// credentials stay disabled; the in-app feed always works.
func New(opts Opts) (*Publisher, error) {
	p := &Publisher{
		db:             opts.DB,
		slackChannel:   opts.Config.Slack.Channel,
		discordID:      opts.Config.Discord.WebhookID,
		discordToken:   opts.Config.Discord.WebhookToken,
		httpClient:     opts.HTTPClient,
		webhookTimeout: time.Duration(opts.Config.WebhookTimeoutSeconds) * time.Second,
	}
	if p.webhookTimeout <= 0 {
		p.webhookTimeout = 5 * time.Second
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.webhookTimeout}
	}

	p.slack = opts.Slack
	if p.slack == nil && opts.Config.Slack.Token != "" {
		p.slack = slackapi.New(opts.Config.Slack.Token)
	}

	p.discord = opts.Discord
	if p.discord == nil && opts.Config.Discord.WebhookID != "" {
		sess, err := discordgo.New("Bot " + opts.Config.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		p.discord = sess
	}
	return p, nil
}

// Deliver sends every effect in order. Errors are logged per effect and
// never abort the batch.
func (p *Publisher) Deliver(ctx context.Context, effects []actions.Effect) {
	for _, e := range effects {
		switch {
		case e.Notification != nil:
			p.deliverNotification(ctx, e)
		case e.Webhook != nil:
			p.deliverWebhook(ctx, e.Webhook)
		}
	}
}

func (p *Publisher) deliverNotification(ctx context.Context, e actions.Effect) {
	n := *e.Notification
	if p.db != nil {
		if err := p.db.WithContext(ctx).Create(&n).Error; err != nil {
			log.Printf("notify: store notification for %s: %v", n.Recipient, err)
		}
	}

	text := fmt.Sprintf("%s: %s", n.Recipient, n.Content)
	if p.slack != nil {
		_, _, err := p.slack.PostMessage(p.slackChannel, slackapi.MsgOptionText(text, false))
		if err != nil {
			log.Printf("notify: slack post: %v", err)
		}
	}
	if p.discord != nil {
		_, err := p.discord.WebhookExecute(p.discordID, p.discordToken, false,
			&discordgo.WebhookParams{Content: text})
		if err != nil {
			log.Printf("notify: discord webhook: %v", err)
		}
	}
}

// deliverWebhook posts the payload as JSON. The response body is ignored;
// any non-2xx status is logged and dropped.
func (p *Publisher) deliverWebhook(ctx context.Context, w *actions.WebhookCall) {
	body, err := json.Marshal(w.Payload)
	if err != nil {
		log.Printf("notify: marshal webhook payload for %s: %v", w.URL, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: build webhook request for %s: %v", w.URL, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("notify: webhook %s: %v", w.URL, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("notify: webhook %s: status %d", w.URL, resp.StatusCode)
	}
}
