// Package mtproto implements channel-history access over MTProto. The
// Bot API cannot read a channel's past messages, so the indexing scanner
// runs through this client instead of the regular bot gateway.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

type Config struct {
	APIID       int
	APIHash     string
	BotToken    string
	SessionFile string
}

// Client wraps a gotd MTProto session authorized as the bot account.
type Client struct {
	cfg    Config
	client *telegram.Client
	log    logx.Logger

	ready  chan struct{}
	cancel context.CancelFunc

	// access hashes learned per channel, required by every channel RPC
	hashMu sync.Mutex
	hashes map[int64]int64
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, errors.New("api_id and api_hash are required for history access")
	}
	opts := telegram.Options{}
	if cfg.SessionFile != "" {
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionFile}
	}
	return &Client{
		cfg:    cfg,
		client: telegram.NewClient(cfg.APIID, cfg.APIHash, opts),
		log:    log,
		ready:  make(chan struct{}),
		hashes: map[int64]int64{},
	}, nil
}

// Run connects and authorizes the session, then blocks until ctx is
// cancelled. Fetch calls made before authorization completes wait on it.
func (c *Client) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	err := c.client.Run(runCtx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if !status.Authorized {
			if _, err := c.client.Auth().Bot(ctx, c.cfg.BotToken); err != nil {
				return fmt.Errorf("bot authorization: %w", err)
			}
		}
		c.log.Info("history client authorized")
		close(c.ready)
		<-ctx.Done()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Client) waitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchMessages resolves ids in chatID's history. Deleted ids are simply
// absent from the result.
func (c *Client) FetchMessages(ctx context.Context, chatID int64, ids []int) ([]transport.Message, error) {
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}
	channel, err := c.inputChannel(ctx, chatID)
	if err != nil {
		return nil, err
	}

	req := &tg.ChannelsGetMessagesRequest{Channel: channel}
	for _, id := range ids {
		req.ID = append(req.ID, &tg.InputMessageID{ID: id})
	}

	res, err := c.client.API().ChannelsGetMessages(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	var raw []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesChannelMessages:
		raw = r.Messages
	case *tg.MessagesMessages:
		raw = r.Messages
	default:
		return nil, fmt.Errorf("unexpected messages result type %T", res)
	}

	out := make([]transport.Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue // deleted or service message
		}
		out = append(out, fromTgMessage(chatID, msg))
	}
	return out, nil
}

// LatestMessageID reports the newest message id in the channel.
func (c *Client) LatestMessageID(ctx context.Context, chatID int64) (int, error) {
	if err := c.waitReady(ctx); err != nil {
		return 0, err
	}
	channel, err := c.inputChannel(ctx, chatID)
	if err != nil {
		return 0, err
	}

	res, err := c.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer: &tg.InputPeerChannel{
			ChannelID:  channel.ChannelID,
			AccessHash: channel.AccessHash,
		},
		Limit: 1,
	})
	if err != nil {
		return 0, mapError(err)
	}

	var raw []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesChannelMessages:
		raw = r.Messages
	case *tg.MessagesMessages:
		raw = r.Messages
	default:
		return 0, fmt.Errorf("unexpected history result type %T", res)
	}
	for _, m := range raw {
		switch msg := m.(type) {
		case *tg.Message:
			return msg.ID, nil
		case *tg.MessageService:
			return msg.ID, nil
		}
	}
	return 0, transport.ErrNotFound
}

// inputChannel turns a Bot API style chat id (-100xxxxxxxxxx) into an
// InputChannel, learning the access hash on first use.
func (c *Client) inputChannel(ctx context.Context, chatID int64) (*tg.InputChannel, error) {
	channelID := chatID
	if channelID < 0 {
		channelID = -channelID - 1000000000000
	}
	if channelID <= 0 {
		return nil, fmt.Errorf("chat id %d is not a channel", chatID)
	}

	c.hashMu.Lock()
	hash, ok := c.hashes[channelID]
	c.hashMu.Unlock()
	if ok {
		return &tg.InputChannel{ChannelID: channelID, AccessHash: hash}, nil
	}

	res, err := c.client.API().ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: channelID},
	})
	if err != nil {
		return nil, mapError(err)
	}
	for _, chat := range res.GetChats() {
		ch, ok := chat.(*tg.Channel)
		if !ok || ch.ID != channelID {
			continue
		}
		c.hashMu.Lock()
		c.hashes[channelID] = ch.AccessHash
		c.hashMu.Unlock()
		return &tg.InputChannel{ChannelID: channelID, AccessHash: ch.AccessHash}, nil
	}
	return nil, fmt.Errorf("channel %d not accessible to the bot", chatID)
}

func fromTgMessage(chatID int64, m *tg.Message) transport.Message {
	out := transport.Message{
		ID:     m.ID,
		ChatID: chatID,
		Text:   m.Message,
		Date:   time.Unix(int64(m.Date), 0).UTC(),
	}
	if m.Media != nil {
		switch m.Media.(type) {
		case *tg.MessageMediaPhoto, *tg.MessageMediaDocument:
			out.HasMedia = true
		}
	}
	return out
}

func mapError(err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &transport.RateLimitedError{RetryAfter: wait}
	}
	if tgerr.Is(err, "CHANNEL_INVALID", "MSG_ID_INVALID") {
		return transport.ErrNotFound
	}
	return err
}
