package bot

import (
	"context"
	"fmt"

	"filmgate/internal/catalog"
	"filmgate/internal/storage"
	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

// ingestChannelPost saves a new primary-channel post through the same
// upsert path the scanner uses and, when global notifications are on,
// fans the news out to opted-in subscribers.
func (b *Bot) ingestChannelPost(ctx context.Context, m *transport.Message) {
	if b.cfg.PrimaryChannelID == 0 || m.ChatID != b.cfg.PrimaryChannelID {
		return
	}
	entry, ok := catalog.FromMessage(*m)
	if !ok {
		return
	}
	inserted, err := b.store.UpsertEntryIfAbsent(ctx, entry)
	if err != nil {
		b.log.Error("channel post not indexed",
			logx.Int64("chat_id", m.ChatID), logx.Int("message_id", m.ID), logx.Err(err))
		return
	}
	if !inserted {
		return
	}
	b.log.Info("new entry indexed", logx.String("title", entry.Title))

	if !b.setting(ctx, storage.SettingGlobalNotify) {
		return
	}
	go b.notifyNewEntry(context.WithoutCancel(ctx), entry)
}

// notifyNewEntry broadcasts a new-upload notice to subscribers who kept
// notifications on. Each delivered notice cleans itself up after a day.
func (b *Bot) notifyNewEntry(ctx context.Context, entry catalog.Entry) {
	cur, err := b.store.SubscriberIDs(ctx, true)
	if err != nil {
		b.log.Error("notify cursor failed", logx.Err(err))
		return
	}
	defer cur.Close()

	text := fmt.Sprintf("New upload: %s", entry.Title)
	kb := transport.Keyboard{transport.Row(transport.Button{Text: "Watch now", URL: b.watchLink(entry.Key)})}
	opt := &transport.SendOptions{Keyboard: kb}

	send := func(ctx context.Context, userID int64) error {
		ref, err := b.gw.SendMessage(ctx, transport.ChatTarget{ChatID: userID}, text, opt)
		if err != nil {
			return err
		}
		b.scheduleDelete(ref, notificationTTL)
		return nil
	}
	out, err := b.engine.Run(ctx, cur, send, b.store.DeleteSubscriber, nil)
	if err != nil {
		b.log.Error("new-entry broadcast failed", logx.Err(err))
		return
	}
	b.log.Info("new-entry broadcast finished",
		logx.String("title", entry.Title),
		logx.Int64("success", out.Success),
		logx.Int64("failed", out.Failed),
		logx.Int64("removed", out.Removed))
}
