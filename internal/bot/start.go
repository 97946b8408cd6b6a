package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"filmgate/internal/catalog"
	"filmgate/internal/storage"
	"filmgate/internal/transport"
	"filmgate/internal/verify"
	"filmgate/pkg/logx"
)

func (b *Bot) handleStart(ctx context.Context, m *transport.Message, payload string) {
	if !b.throttle.Allow(m.FromID) {
		return
	}
	if err := b.store.UpsertSubscriber(ctx, m.FromID); err != nil {
		b.log.Warn("subscriber not recorded", logx.Int64("user_id", m.FromID), logx.Err(err))
	}

	switch {
	case strings.HasPrefix(payload, "verified_"):
		b.redeemToken(ctx, m, strings.TrimPrefix(payload, "verified_"))
	case strings.HasPrefix(payload, "watch_"):
		b.handleWatch(ctx, m, strings.TrimPrefix(payload, "watch_"))
	default:
		b.sendWelcome(ctx, m)
	}
}

func (b *Bot) sendWelcome(ctx context.Context, m *transport.Message) {
	text := b.welcomeText(m.FromUsername)
	kb := b.homeKeyboard()
	if b.cfg.StartPic != "" {
		opt := &transport.SendOptions{Keyboard: kb}
		if _, err := b.gw.SendPhoto(ctx, transport.ChatTarget{ChatID: m.ChatID}, b.cfg.StartPic, text, opt); err == nil {
			return
		} else {
			b.log.Warn("welcome photo failed, falling back to text", logx.Err(err))
		}
	}
	_, _ = b.reply(ctx, m.ChatID, text, kb, 0)
}

// redeemToken finishes the verification flow: each denial reason gets
// its own reply, and only a completed delivery consumes the token.
func (b *Bot) redeemToken(ctx context.Context, m *transport.Message, token string) {
	err := b.gate.Redeem(ctx, token, m.FromID, func(ctx context.Context, key catalog.EntryKey) error {
		return b.deliverEntry(ctx, m.FromID, key)
	})
	switch {
	case err == nil:
		b.sendDeliveredNotice(ctx, m.ChatID)
	case errors.Is(err, verify.ErrExpired):
		_, _ = b.reply(ctx, m.ChatID, "This verification link is unknown or has expired. Search again to get a fresh one.", nil, replyTTL)
	case errors.Is(err, verify.ErrWrongOwner):
		_, _ = b.reply(ctx, m.ChatID, "This verification link belongs to someone else. Search the title yourself to get your own.", nil, replyTTL)
	case errors.Is(err, verify.ErrNotAdvanced):
		_, _ = b.reply(ctx, m.ChatID, "Verification is not finished yet. Open the link and complete both steps first.", nil, replyTTL)
	default:
		b.log.Error("redemption delivery failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Sorry, the file could not be sent right now. Your link is still valid, try again in a moment.", nil, replyTTL)
	}
}

func (b *Bot) sendDeliveredNotice(ctx context.Context, chatID int64) {
	kb := transport.Keyboard{transport.Row(transport.Button{Text: "Report a problem", Data: "report"})}
	_, _ = b.reply(ctx, chatID, "File delivered. If something is wrong with it, report below.", kb, deliveredNoticeTTL)
}

// handleWatch resolves a watch_<chatID>_<msgID> deep link. The legacy
// single-number form predates multi-channel keys and resolves against
// the primary channel.
func (b *Bot) handleWatch(ctx context.Context, m *transport.Message, payload string) {
	key, ok := b.parseWatchKey(payload)
	if !ok {
		_, _ = b.reply(ctx, m.ChatID, "That link looks broken. Search the title again to get a fresh one.", nil, replyTTL)
		return
	}
	if _, err := b.store.FindEntry(ctx, key); err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			_, _ = b.reply(ctx, m.ChatID, "That file is no longer in the catalog.", nil, replyTTL)
			return
		}
		b.log.Error("entry lookup failed", logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Sorry, something went wrong. Try again in a moment.", nil, replyTTL)
		return
	}

	if b.setting(ctx, storage.SettingVerificationMode) {
		link, err := b.gate.Issue(ctx, m.FromID, key)
		if err != nil {
			b.log.Error("token not issued", logx.Int64("user_id", m.FromID), logx.Err(err))
			_, _ = b.reply(ctx, m.ChatID, "Sorry, something went wrong. Try again in a moment.", nil, replyTTL)
			return
		}
		kb := transport.Keyboard{transport.Row(transport.Button{Text: "Verify to download", URL: link})}
		_, _ = b.reply(ctx, m.ChatID, "Complete the quick verification below and the file will be sent to you.", kb, replyTTL)
		return
	}

	if err := b.deliverEntry(ctx, m.FromID, key); err != nil {
		b.log.Error("direct delivery failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Sorry, the file could not be sent right now. Try again in a moment.", nil, replyTTL)
		return
	}
	b.sendDeliveredNotice(ctx, m.ChatID)
}

func (b *Bot) parseWatchKey(payload string) (catalog.EntryKey, bool) {
	parts := strings.SplitN(payload, "_", 2)
	if len(parts) == 1 {
		msgID, err := strconv.Atoi(parts[0])
		if err != nil || msgID <= 0 || b.cfg.PrimaryChannelID == 0 {
			return catalog.EntryKey{}, false
		}
		return catalog.EntryKey{ChatID: b.cfg.PrimaryChannelID, MessageID: msgID}, true
	}
	chatID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return catalog.EntryKey{}, false
	}
	msgID, err := strconv.Atoi(parts[1])
	if err != nil || msgID <= 0 {
		return catalog.EntryKey{}, false
	}
	return catalog.EntryKey{ChatID: chatID, MessageID: msgID}, true
}
