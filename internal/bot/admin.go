package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"filmgate/internal/broadcast"
	"filmgate/internal/catalog"
	"filmgate/internal/indexer"
	"filmgate/internal/storage"
	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

// handleIndex backfills the catalog from a channel's history. The
// target is the numeric argument, the origin of a forwarded post, or
// the primary channel, in that order.
func (b *Bot) handleIndex(ctx context.Context, m *transport.Message, args string) {
	if !b.isAdmin(m.FromID) {
		return
	}
	if b.fetcher == nil {
		_, _ = b.reply(ctx, m.ChatID, "History access is not configured (api_id/api_hash missing).", nil, 0)
		return
	}

	target := b.cfg.PrimaryChannelID
	if args != "" {
		id, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			_, _ = b.reply(ctx, m.ChatID, "Usage: /index [channel id], or forward a post from the channel with /index as the caption.", nil, 0)
			return
		}
		target = id
	} else if m.ForwardFrom != 0 {
		target = m.ForwardFrom
	}
	if target == 0 {
		_, _ = b.reply(ctx, m.ChatID, "No channel to index: pass an id or configure a primary channel.", nil, 0)
		return
	}

	status, err := b.reply(ctx, m.ChatID, fmt.Sprintf("Indexing %d, probing the newest message...", target), nil, 0)
	if err != nil {
		return
	}

	scanner := indexer.NewScanner(b.fetcher, b.store, b.log)
	go func() {
		// The scan outlives the update that triggered it; only process
		// shutdown should cancel it.
		ctx := context.WithoutCancel(ctx)
		stats, err := scanner.Scan(ctx, target, func(p indexer.Progress) {
			text := fmt.Sprintf(
				"Indexing %d\n\nRange: %d → %d\nSaved: %d\nAlready indexed: %d\nSkipped: %d\nFailed batches: %d",
				target, p.FromID, p.ToID, p.Stats.Saved, p.Stats.AlreadyExists, p.Stats.Skipped, p.Stats.FailedBatches)
			if err := b.gw.EditText(ctx, status, text, nil); err != nil && !errors.Is(err, transport.ErrNotModified) {
				b.log.Debug("index progress not rendered", logx.Err(err))
			}
		})
		if err != nil {
			b.log.Error("index scan failed", logx.Int64("chat_id", target), logx.Err(err))
			_ = b.gw.EditText(ctx, status, fmt.Sprintf("Indexing %d failed: %v", target, err), nil)
			return
		}
		done := fmt.Sprintf(
			"Indexing %d finished.\n\nSaved: %d\nAlready indexed: %d\nSkipped: %d\nFailed batches: %d",
			target, stats.Saved, stats.AlreadyExists, stats.Skipped, stats.FailedBatches)
		if err := b.gw.EditText(ctx, status, done, nil); err != nil && !errors.Is(err, transport.ErrNotModified) {
			b.log.Debug("index summary not rendered", logx.Err(err))
		}
	}()
}

// handleBroadcast copies the replied-to message to every subscriber,
// with live progress edited into a status message.
func (b *Bot) handleBroadcast(ctx context.Context, m *transport.Message) {
	if !b.isAdmin(m.FromID) {
		return
	}
	if m.ReplyTo == nil {
		_, _ = b.reply(ctx, m.ChatID, "Reply to the message you want to broadcast with /broadcast.", nil, 0)
		return
	}
	source := *m.ReplyTo

	total, err := b.store.CountSubscribers(ctx, false)
	if err != nil {
		b.log.Error("subscriber count failed", logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Could not read the subscriber list.", nil, 0)
		return
	}
	status, err := b.reply(ctx, m.ChatID, fmt.Sprintf("Broadcast starting to %d subscribers...", total), nil, 0)
	if err != nil {
		return
	}

	go func() {
		ctx := context.WithoutCancel(ctx)
		cur, err := b.store.SubscriberIDs(ctx, false)
		if err != nil {
			b.log.Error("subscriber cursor failed", logx.Err(err))
			_ = b.gw.EditText(ctx, status, "Broadcast failed: could not read the subscriber list.", nil)
			return
		}
		defer cur.Close()

		send := func(ctx context.Context, userID int64) error {
			_, err := b.gw.CopyMessage(ctx, transport.ChatTarget{ChatID: userID}, source, false)
			return err
		}
		reporter := func(ctx context.Context, p broadcast.Progress, final bool) {
			text := renderBroadcastProgress(p, final)
			if err := b.gw.EditText(ctx, status, text, nil); err != nil && !errors.Is(err, transport.ErrNotModified) {
				b.log.Debug("broadcast progress not rendered", logx.Err(err))
			}
		}
		if _, err := b.engine.Run(ctx, cur, send, b.store.DeleteSubscriber, reporter); err != nil {
			b.log.Error("broadcast run failed", logx.Err(err))
		}
	}()
}

func renderBroadcastProgress(p broadcast.Progress, final bool) string {
	head := "Broadcast running..."
	if final {
		head = "Broadcast finished."
	}
	text := fmt.Sprintf(
		"%s\n\nDelivered: %d\nFailed: %d\nRemoved (unreachable): %d\nProcessed: %d/%d\nElapsed: %s",
		head, p.Success, p.Failed, p.Removed, p.Done, p.Total, p.Elapsed.Round(time.Second))
	if !final && p.Rate > 0 {
		text += fmt.Sprintf("\nRate: %.1f/s, ETA: %s", p.Rate, p.ETA.Round(time.Second))
	}
	return text
}

func (b *Bot) handleStats(ctx context.Context, m *transport.Message) {
	if !b.isAdmin(m.FromID) {
		return
	}
	users, err := b.store.CountSubscribers(ctx, false)
	if err != nil {
		b.log.Error("stats failed", logx.Err(err))
		return
	}
	groups, err := b.store.CountGroups(ctx)
	if err != nil {
		b.log.Error("stats failed", logx.Err(err))
		return
	}
	entries, err := b.store.CountAllEntries(ctx)
	if err != nil {
		b.log.Error("stats failed", logx.Err(err))
		return
	}
	text := fmt.Sprintf("Statistics\n\nUsers: %d\nGroups: %d\nCatalog entries: %d", users, groups, entries)
	_, _ = b.reply(ctx, m.ChatID, text, nil, replyTTL)
}

// handleNotify is two commands in one: operators flip the global
// new-upload broadcast, everyone else flips their own subscription.
func (b *Bot) handleNotify(ctx context.Context, m *transport.Message, args string) {
	if b.isAdmin(m.FromID) {
		b.handleToggle(ctx, m, storage.SettingGlobalNotify, args, "Global notifications")
		return
	}
	var value bool
	switch args {
	case "on":
		value = true
	case "off":
		value = false
	default:
		_, _ = b.reply(ctx, m.ChatID, "Usage: /notify on or /notify off.", nil, replyTTL)
		return
	}
	if err := b.store.UpsertSubscriber(ctx, m.FromID); err != nil {
		b.log.Warn("subscriber not recorded", logx.Int64("user_id", m.FromID), logx.Err(err))
	}
	if err := b.store.SetNotify(ctx, m.FromID, value); err != nil {
		b.log.Error("notify preference not saved", logx.Int64("user_id", m.FromID), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Could not save your preference. Try again in a moment.", nil, replyTTL)
		return
	}
	text := "You will no longer receive new-upload alerts."
	if value {
		text = "You will now receive new-upload alerts."
	}
	_, _ = b.reply(ctx, m.ChatID, text, nil, replyTTL)
}

func (b *Bot) handleToggle(ctx context.Context, m *transport.Message, key, args, label string) {
	if !b.isAdmin(m.FromID) {
		return
	}
	var value bool
	switch args {
	case "on":
		value = true
	case "off":
		value = false
	default:
		_, _ = b.reply(ctx, m.ChatID, "Usage: on or off.", nil, 0)
		return
	}
	if err := b.store.SetSetting(ctx, key, value); err != nil {
		b.log.Error("setting not saved", logx.String("key", key), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Could not save the setting.", nil, 0)
		return
	}
	state := "disabled"
	if value {
		state = "enabled"
	}
	_, _ = b.reply(ctx, m.ChatID, fmt.Sprintf("%s %s.", label, state), nil, 0)
}

const deletePreviewLimit = 15

// handleDeleteMovie previews what a title match would remove and asks
// for confirmation; nothing is deleted here.
func (b *Bot) handleDeleteMovie(ctx context.Context, m *transport.Message, title string) {
	if !b.isAdmin(m.FromID) {
		return
	}
	if title == "" {
		_, _ = b.reply(ctx, m.ChatID, "Usage: /delete_movie <title>", nil, 0)
		return
	}

	match := catalog.Match{Pattern: title}
	total, err := b.store.CountEntries(ctx, match)
	if err != nil {
		b.log.Error("deletion preview failed", logx.Err(err))
		return
	}
	if total == 0 {
		_, _ = b.reply(ctx, m.ChatID, fmt.Sprintf("No files match %q.", title), nil, 0)
		return
	}
	preview, err := b.store.SearchEntries(ctx, match, 0, deletePreviewLimit)
	if err != nil {
		b.log.Error("deletion preview failed", logx.Err(err))
		return
	}

	text := "Warning! You are about to delete:\n\n"
	for i, e := range preview {
		text += fmt.Sprintf("%d. %s\n", i+1, e.Title)
	}
	if total > len(preview) {
		text += fmt.Sprintf("\n... and %d more.\n", total-len(preview))
	}
	text += fmt.Sprintf("\nTotal: %d file(s). Are you sure?", total)

	kb := transport.Keyboard{
		transport.Row(transport.Button{Text: "Yes, delete them all", Data: encodeDeleteConfirm(title)}),
		transport.Row(transport.Button{Text: "No, cancel", Data: "del:cancel"}),
	}
	_, _ = b.reply(ctx, m.ChatID, text, kb, 0)
}

func (b *Bot) handleDeleteAll(ctx context.Context, m *transport.Message) {
	if !b.isAdmin(m.FromID) {
		return
	}
	kb := transport.Keyboard{
		transport.Row(transport.Button{Text: "Yes, wipe the catalog", Data: "delall:confirm"}),
		transport.Row(transport.Button{Text: "No, cancel", Data: "delall:cancel"}),
	}
	_, _ = b.reply(ctx, m.ChatID, "Delete every catalog entry? This cannot be undone.", kb, 0)
}
