package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"

	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

const updateBuffer = 64

// Run starts the gateway, the periodic jobs and the dispatch loop, and
// blocks until ctx is cancelled. On return the gateway is stopped, the
// cron jobs are drained and every pending delayed job is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updates := make(chan transport.Update, updateBuffer)
	if err := b.gw.Start(ctx, updates); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+b.cfg.AutoMessageInterval.String(), func() { b.autoGroupMessage(ctx) }); err != nil {
		return err
	}
	if _, err := c.AddFunc("@every 10m", func() { b.reapTokens(ctx) }); err != nil {
		return err
	}
	c.Start()

	b.log.Info("bot running", logx.String("username", b.gw.Username()))

	var wg sync.WaitGroup
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case up := <-updates:
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.HandleUpdate(ctx, up)
			}()
		}
	}

	<-c.Stop().Done()
	wg.Wait()
	b.timers.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), gatewayStopGrace)
	defer cancel()
	if err := b.gw.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn("gateway stop", logx.Err(err))
	}
	return ctx.Err()
}

// autoGroupMessage posts the configured promo text to every recorded
// group; each copy cleans itself up, and groups that kicked the bot are
// pruned.
func (b *Bot) autoGroupMessage(ctx context.Context) {
	text, ttl := b.autoMessage()
	if text == "" {
		return
	}
	ids, err := b.store.GroupIDs(ctx)
	if err != nil {
		b.log.Error("group list failed", logx.Err(err))
		return
	}
	for _, chatID := range ids {
		ref, err := b.gw.SendMessage(ctx, transport.ChatTarget{ChatID: chatID}, text, nil)
		if err != nil {
			if errors.Is(err, transport.ErrRecipientUnreachable) {
				if derr := b.store.DeleteGroup(ctx, chatID); derr != nil {
					b.log.Warn("unreachable group not pruned", logx.Int64("chat_id", chatID), logx.Err(derr))
				} else {
					b.log.Info("unreachable group pruned", logx.Int64("chat_id", chatID))
				}
				continue
			}
			b.log.Debug("group message failed", logx.Int64("chat_id", chatID), logx.Err(err))
			continue
		}
		b.scheduleDelete(ref, ttl)
	}
}

func (b *Bot) reapTokens(ctx context.Context) {
	n, err := b.gate.Reap(ctx)
	if err != nil {
		b.log.Error("token reap failed", logx.Err(err))
		return
	}
	if n > 0 {
		b.log.Info("expired tokens reaped", logx.Int64("count", n))
	}
}
