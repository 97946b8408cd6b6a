// Package telegram adapts the Bot API, via telebot, to the transport
// contract the bot core consumes.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update
	// log spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.emitMessage(c.Message())
		return nil
	})
	a.bot.Handle(tele.OnMedia, func(c tele.Context) error {
		a.emitMessage(c.Message())
		return nil
	})
	a.bot.Handle(tele.OnChannelPost, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		a.push(transport.Update{
			Kind:    transport.UpdateChannelPost,
			Message: fromTeleMessage(m),
		})
		return nil
	})
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		a.push(transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:           cb.ID,
				FromID:       cb.Sender.ID,
				FromUsername: cb.Sender.Username,
				ChatID:       m.Chat.ID,
				MessageID:    m.ID,
				Data:         strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started", logx.String("bot", a.Username()))
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) emitMessage(m *tele.Message) {
	if m == nil || m.Chat == nil || m.Sender == nil {
		return
	}
	a.push(transport.Update{
		Kind:    transport.UpdateMessage,
		Message: fromTeleMessage(m),
	})
}

func (a *Adapter) push(up transport.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func fromTeleMessage(m *tele.Message) *transport.Message {
	out := &transport.Message{
		ID:        m.ID,
		ChatID:    m.Chat.ID,
		ChatTitle: m.Chat.Title,
		IsGroup:   m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
		IsReply:   m.ReplyTo != nil,
		Text:      m.Text,
		Date:      m.Time(),
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
		out.FromIsBot = m.Sender.IsBot
	}
	if m.ReplyTo != nil {
		out.ReplyTo = &transport.MessageRef{ChatID: m.Chat.ID, MessageID: m.ReplyTo.ID}
	}
	if m.Origin != nil && m.Origin.Chat != nil {
		out.ForwardFrom = m.Origin.Chat.ID
	}
	switch {
	case m.Photo != nil:
		out.HasMedia = true
		out.ThumbnailRef = m.Photo.FileID
	case m.Video != nil:
		out.HasMedia = true
		if m.Video.Thumbnail != nil {
			out.ThumbnailRef = m.Video.Thumbnail.FileID
		}
	case m.Document != nil, m.Animation != nil, m.Audio != nil:
		out.HasMedia = true
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	return out
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	go a.bot.Stop()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if the long-poll is still
	// waiting out its timeout.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendMessage(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, mapError(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendPhoto(_ context.Context, to transport.ChatTarget, photo, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	file := tele.File{FileID: photo}
	if strings.HasPrefix(photo, "http://") || strings.HasPrefix(photo, "https://") {
		file = tele.FromURL(photo)
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, &tele.Photo{File: file, Caption: caption}, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, mapError(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, sendOptions(opt))
	return mapError(err)
}

func (a *Adapter) EditCaption(_ context.Context, ref transport.MessageRef, caption string, opt *transport.SendOptions) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.EditCaption(m, caption, sendOptions(opt))
	return mapError(err)
}

func (a *Adapter) DeleteMessage(_ context.Context, ref transport.MessageRef) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	return mapError(a.bot.Delete(m))
}

func (a *Adapter) CopyMessage(_ context.Context, to transport.ChatTarget, from transport.MessageRef, protect bool) (transport.MessageRef, error) {
	src := &tele.Message{ID: from.MessageID, Chat: &tele.Chat{ID: from.ChatID}}
	msg, err := a.bot.Copy(&tele.Chat{ID: to.ChatID}, src, &tele.SendOptions{Protected: protect})
	if err != nil {
		return transport.MessageRef{}, mapError(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	return mapError(a.bot.Respond(&tele.Callback{ID: callbackID},
		&tele.CallbackResponse{Text: text, ShowAlert: alert}))
}

func (a *Adapter) Username() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) DisplayName() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.FirstName
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	out := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if len(opt.Keyboard) > 0 {
		rm := &tele.ReplyMarkup{}
		rows := make([][]tele.InlineButton, 0, len(opt.Keyboard))
		for _, row := range opt.Keyboard {
			btns := make([]tele.InlineButton, 0, len(row))
			for _, b := range row {
				btns = append(btns, tele.InlineButton{Text: b.Text, URL: b.URL, Data: b.Data})
			}
			rows = append(rows, btns)
		}
		rm.InlineKeyboard = rows
		out.ReplyMarkup = rm
	}
	return out
}

// mapError folds telebot's error taxonomy into the transport classes the
// core branches on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser),
		errors.Is(err, tele.ErrChatNotFound):
		return transport.ErrRecipientUnreachable
	case errors.Is(err, tele.ErrSameMessageContent):
		return transport.ErrNotModified
	case errors.Is(err, tele.ErrNotFound):
		return transport.ErrNotFound
	}
	return err
}
