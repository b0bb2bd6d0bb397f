package chat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/mojtba-allam/my-insta-bot/auth"
	"github.com/mojtba-allam/my-insta-bot/config"
	"github.com/mojtba-allam/my-insta-bot/db"
	"github.com/mojtba-allam/my-insta-bot/pipeline"
)

// promptTimeout bounds how long a pipeline prompt waits for the user's reply.
const promptTimeout = 5 * time.Minute

// Bot runs the chat front end: one in-flight repost conversation per user.
type Bot struct {
	cfg  *config.Config
	db   *sql.DB
	svc  *pipeline.Service
	auth *auth.Manager

	client *twitch.Client

	mu     sync.Mutex
	convos map[string]*conversation
}

// conversation is the per-user state while a repost is in flight.
type conversation struct {
	input  chan string
	cancel context.CancelFunc
	// awaiting is set while a prompt is blocked on user input.
	awaiting bool
}

// NewBot wires the front end. Start must be called to connect.
func NewBot(cfg *config.Config, dbx *sql.DB, svc *pipeline.Service, am *auth.Manager) *Bot {
	return &Bot{cfg: cfg, db: dbx, svc: svc, auth: am, convos: map[string]*conversation{}}
}

// Start connects to Twitch IRC and blocks until ctx is canceled or the
// connection fails.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.cfg.ValidateChatReady(); err != nil {
		return err
	}
	b.client = twitch.NewClient(b.cfg.TwitchBotUsername, b.cfg.TwitchOAuthToken)
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		b.handle(ctx, msg.User.Name, strings.TrimSpace(msg.Message))
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		b.client.Disconnect()
		close(done)
	}()

	b.client.Join(b.cfg.TwitchChannel)
	slog.Info("chat bot connecting", slog.String("channel", b.cfg.TwitchChannel))
	if err := b.client.Connect(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	<-done
	return nil
}

func (b *Bot) say(format string, args ...any) {
	if b.client != nil {
		b.client.Say(b.cfg.TwitchChannel, fmt.Sprintf(format, args...))
	}
}

func (b *Bot) handle(ctx context.Context, user, text string) {
	switch {
	case strings.HasPrefix(text, "!repost"):
		b.startRepost(ctx, user, strings.TrimSpace(strings.TrimPrefix(text, "!repost")))
	case text == "!cancel":
		b.cancelConvo(user)
	case text == "!logout":
		b.logout(ctx, user)
	case text == "!history":
		b.history(ctx, user)
	case text == "!help":
		b.say("@%s commands: !repost <post url>, !cancel, !logout, !history", user)
	case strings.HasPrefix(text, "!"):
		// unknown command, ignore
	default:
		b.routeReply(user, text)
	}
}

// startRepost launches the pipeline for a user unless one is already running.
func (b *Bot) startRepost(ctx context.Context, user, url string) {
	if url == "" {
		b.say("@%s usage: !repost <post url>", user)
		return
	}
	b.mu.Lock()
	if _, busy := b.convos[user]; busy {
		b.mu.Unlock()
		b.say("@%s a repost is already in progress; !cancel it first", user)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	convo := &conversation{input: make(chan string, 1), cancel: cancel}
	b.convos[user] = convo
	b.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			b.mu.Lock()
			delete(b.convos, user)
			b.mu.Unlock()
		}()
		out := b.svc.Run(runCtx, pipeline.Request{AccountID: user, URL: url},
			&chatInteraction{bot: b, user: user, convo: convo})
		b.say("@%s %s", user, out.Message)
	}()
}

// routeReply forwards free-form text to the prompt waiting on it, if any.
func (b *Bot) routeReply(user, text string) {
	b.mu.Lock()
	convo, ok := b.convos[user]
	awaiting := ok && convo.awaiting
	b.mu.Unlock()
	if !awaiting {
		return
	}
	select {
	case convo.input <- text:
	default:
		// prompt already answered
	}
}

func (b *Bot) cancelConvo(user string) {
	b.mu.Lock()
	convo, ok := b.convos[user]
	b.mu.Unlock()
	if !ok {
		b.say("@%s nothing to cancel", user)
		return
	}
	convo.cancel()
	b.say("@%s canceled", user)
}

func (b *Bot) logout(ctx context.Context, user string) {
	if err := b.auth.Logout(ctx, user); err != nil {
		slog.Warn("logout cleanup failed", slog.String("user", user), slog.Any("err", err))
	}
	if err := db.DeleteCredential(ctx, b.db, user); err != nil {
		slog.Warn("credential delete failed", slog.String("user", user), slog.Any("err", err))
	}
	b.say("@%s logged out and forgot your credentials", user)
}

func (b *Bot) history(ctx context.Context, user string) {
	rows, err := db.RecentReposts(ctx, b.db, user, 5)
	if err != nil {
		slog.Warn("history read failed", slog.String("user", user), slog.Any("err", err))
		b.say("@%s couldn't read your history right now", user)
		return
	}
	if len(rows) == 0 {
		b.say("@%s no reposts yet", user)
		return
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, r.Shortcode+"="+r.Status)
	}
	b.say("@%s last reposts: %s", user, strings.Join(parts, ", "))
}

// chatInteraction adapts chat prompts to the pipeline's Interaction.
type chatInteraction struct {
	bot   *Bot
	user  string
	convo *conversation
}

func (c *chatInteraction) ask(ctx context.Context, prompt string) (string, error) {
	c.bot.say("@%s %s", c.user, prompt)
	c.bot.mu.Lock()
	c.convo.awaiting = true
	c.bot.mu.Unlock()
	defer func() {
		c.bot.mu.Lock()
		c.convo.awaiting = false
		c.bot.mu.Unlock()
	}()
	select {
	case reply := <-c.convo.input:
		return reply, nil
	case <-time.After(promptTimeout):
		return "", fmt.Errorf("timed out waiting for a reply")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *chatInteraction) Credentials(ctx context.Context) (string, string, error) {
	username, err := c.ask(ctx, "What's the account username?")
	if err != nil {
		return "", "", err
	}
	secret, err := c.ask(ctx, "And the password?")
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(username), secret, nil
}

func (c *chatInteraction) Caption(ctx context.Context, original string) (string, error) {
	prompt := "Send a caption, or reply 'original' to keep the source caption."
	if original == "" {
		prompt = "Send a caption (the source post has none)."
	}
	return c.ask(ctx, prompt)
}

func (c *chatInteraction) Notify(_ context.Context, message string) {
	c.bot.say("@%s %s", c.user, message)
}
