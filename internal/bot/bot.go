// Package bot is the chat-facing core: it routes incoming updates to
// the search pipeline, the verification gate, the indexing scanner and
// the broadcast engine, and renders every user-visible surface.
package bot

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"filmgate/internal/broadcast"
	"filmgate/internal/catalog"
	"filmgate/internal/search"
	"filmgate/internal/storage"
	"filmgate/internal/transport"
	"filmgate/internal/verify"
	"filmgate/pkg/logx"
)

const (
	// defaultStartThrottle absorbs /start double-taps.
	defaultStartThrottle = 2 * time.Second
	// replyTTL is how long transient replies (results, alerts, stats)
	// stay before cleanup.
	replyTTL = 5 * time.Minute
	// deliveredNoticeTTL is how long the post-delivery notice stays.
	deliveredNoticeTTL = time.Minute
	// notificationTTL is how long a new-upload broadcast stays.
	notificationTTL = 24 * time.Hour
	// gatewayStopGrace bounds how long shutdown waits on the poller.
	gatewayStopGrace = 5 * time.Second
)

type Config struct {
	AdminIDs         []int64
	PrimaryChannelID int64
	UpdateChannelURL string
	StartPic         string
	AutoMessageText     string
	AutoMessageInterval time.Duration // 0 means default 20m
	AutoMessageTTL      time.Duration
	StartThrottle       time.Duration // 0 means default, negative disables
}

type Bot struct {
	cfg      Config
	gw       transport.Gateway
	store    *storage.Store
	resolver *search.Resolver
	gate     *verify.Gate
	engine   *broadcast.Engine
	fetcher  transport.MessageFetcher // nil when history access is not configured
	timers   *TimerService
	throttle *Throttle
	log      logx.Logger

	// The auto-message knobs follow config hot reloads.
	autoMu   sync.RWMutex
	autoText string
	autoTTL  time.Duration
}

func New(
	cfg Config,
	gw transport.Gateway,
	store *storage.Store,
	resolver *search.Resolver,
	gate *verify.Gate,
	engine *broadcast.Engine,
	fetcher transport.MessageFetcher,
	log logx.Logger,
) *Bot {
	window := cfg.StartThrottle
	if window == 0 {
		window = defaultStartThrottle
	}
	if cfg.AutoMessageInterval <= 0 {
		cfg.AutoMessageInterval = 20 * time.Minute
	}
	if cfg.AutoMessageTTL <= 0 {
		cfg.AutoMessageTTL = replyTTL
	}
	return &Bot{
		cfg:      cfg,
		gw:       gw,
		store:    store,
		resolver: resolver,
		gate:     gate,
		engine:   engine,
		fetcher:  fetcher,
		timers:   NewTimerService(),
		throttle: NewThrottle(window),
		log:      log,
		autoText: cfg.AutoMessageText,
		autoTTL:  cfg.AutoMessageTTL,
	}
}

// SetAutoMessage swaps the group auto-message text and its cleanup TTL
// while the bot runs; the next cron tick picks them up. An empty text
// pauses the messenger.
func (b *Bot) SetAutoMessage(text string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = replyTTL
	}
	b.autoMu.Lock()
	b.autoText = text
	b.autoTTL = ttl
	b.autoMu.Unlock()
}

func (b *Bot) autoMessage() (string, time.Duration) {
	b.autoMu.RLock()
	defer b.autoMu.RUnlock()
	return b.autoText, b.autoTTL
}

// Timers exposes the delayed-job service so the process shutdown path
// can drain it.
func (b *Bot) Timers() *TimerService { return b.timers }

// HandleUpdate routes one update. It is safe to call concurrently.
func (b *Bot) HandleUpdate(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			b.onMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			b.onCallback(ctx, up.Callback)
		}
	case transport.UpdateChannelPost:
		if up.Message != nil {
			b.ingestChannelPost(ctx, up.Message)
		}
	}
}

func (b *Bot) onMessage(ctx context.Context, m *transport.Message) {
	if strings.HasPrefix(m.Text, "/") {
		b.onCommand(ctx, m)
		return
	}
	b.handleSearch(ctx, m)
}

func (b *Bot) onCommand(ctx context.Context, m *transport.Message) {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	// strip the @botname suffix used in groups
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := strings.TrimSpace(strings.TrimPrefix(m.Text, fields[0]))

	switch cmd {
	case "/start":
		b.handleStart(ctx, m, args)
	case "/request":
		b.handleRequest(ctx, m, args)
	case "/feedback":
		b.handleFeedback(ctx, m, args)
	case "/index":
		b.handleIndex(ctx, m, args)
	case "/broadcast":
		b.handleBroadcast(ctx, m)
	case "/stats":
		b.handleStats(ctx, m)
	case "/protect":
		b.handleToggle(ctx, m, storage.SettingProtectContent, args, "Content protection")
	case "/verify":
		b.handleToggle(ctx, m, storage.SettingVerificationMode, args, "Verification mode")
	case "/notify":
		b.handleNotify(ctx, m, args)
	case "/delete_movie":
		b.handleDeleteMovie(ctx, m, args)
	case "/delete_all_movies":
		b.handleDeleteAll(ctx, m)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return slices.Contains(b.cfg.AdminIDs, userID)
}

// setting reads a toggle, falling back to its default-on value when the
// store misbehaves. Toggles must never make a handler fail.
func (b *Bot) setting(ctx context.Context, key string) bool {
	v, err := b.store.Setting(ctx, key)
	if err != nil {
		b.log.Warn("setting lookup failed", logx.String("key", key), logx.Err(err))
		return true
	}
	return v
}

// reply sends text to chatID and, when ttl > 0, schedules its cleanup.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, kb transport.Keyboard, ttl time.Duration) (transport.MessageRef, error) {
	var opt *transport.SendOptions
	if kb != nil {
		opt = &transport.SendOptions{Keyboard: kb}
	}
	ref, err := b.gw.SendMessage(ctx, transport.ChatTarget{ChatID: chatID}, text, opt)
	if err != nil {
		b.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return ref, err
	}
	if ttl > 0 {
		b.scheduleDelete(ref, ttl)
	}
	return ref, nil
}

func (b *Bot) scheduleDelete(ref transport.MessageRef, ttl time.Duration) {
	b.timers.Schedule(ttl, func(ctx context.Context) {
		_ = b.gw.DeleteMessage(ctx, ref)
	})
}

// deliverEntry copies the gated post to userID, honoring the
// protect-content toggle, and counts the view.
func (b *Bot) deliverEntry(ctx context.Context, userID int64, key catalog.EntryKey) error {
	protect := b.setting(ctx, storage.SettingProtectContent)
	from := transport.MessageRef{ChatID: key.ChatID, MessageID: key.MessageID}
	if _, err := b.gw.CopyMessage(ctx, transport.ChatTarget{ChatID: userID}, from, protect); err != nil {
		return err
	}
	if err := b.store.IncrementViews(ctx, key); err != nil {
		b.log.Warn("view count not incremented",
			logx.Int64("chat_id", key.ChatID), logx.Int("message_id", key.MessageID), logx.Err(err))
	}
	return nil
}

func (b *Bot) notifyAdmins(ctx context.Context, text string, kb transport.Keyboard) {
	for _, adminID := range b.cfg.AdminIDs {
		if _, err := b.reply(ctx, adminID, text, kb, 0); err != nil {
			b.log.Debug("admin not notified", logx.Int64("admin_id", adminID), logx.Err(err))
		}
	}
}
