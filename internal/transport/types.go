package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateCallback    UpdateKind = "callback"
	UpdateChannelPost UpdateKind = "channel_post"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is a platform-agnostic view of an incoming or fetched message.
// Text carries the caption for media posts.
type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	IsGroup      bool
	FromID       int64
	FromUsername string
	FromIsBot    bool
	IsReply      bool
	ReplyTo      *MessageRef // the replied-to message, nil when IsReply is false
	ForwardFrom  int64       // source chat id when forwarded from a channel, 0 otherwise
	Text         string
	HasMedia     bool
	ThumbnailRef string // opaque preview asset reference, empty if none
	Date         time.Time
}

type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	ChatID       int64
	MessageID    int
	Data         string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is a single inline keyboard button. Exactly one of URL or Data
// should be set; Data buttons round-trip through the callback stream.
type Button struct {
	Text string
	URL  string
	Data string
}

type Keyboard [][]Button

func Row(btns ...Button) []Button { return btns }

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       Keyboard
}

// Gateway is the chat-platform boundary the bot core talks through.
type Gateway interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendMessage(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditCaption(ctx context.Context, ref MessageRef, caption string, opt *SendOptions) error
	// DeleteMessage is best-effort; callers ignore its error by contract.
	DeleteMessage(ctx context.Context, ref MessageRef) error
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef, protect bool) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error

	Username() string
	DisplayName() string
}

// MessageFetcher reads a channel's history by message id. The Bot API has
// no history access, so the production implementation runs over MTProto;
// the scanner only depends on this contract.
type MessageFetcher interface {
	// FetchMessages returns the messages that exist among ids. Gaps
	// (deleted ids) are simply absent from the result.
	FetchMessages(ctx context.Context, chatID int64, ids []int) ([]Message, error)
	// LatestMessageID reports the newest message id in the channel.
	LatestMessageID(ctx context.Context, chatID int64) (int, error)
}
