package bot

import (
	"context"
	"fmt"

	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

func requestActionKeyboard(userID int64, title string) transport.Keyboard {
	return transport.Keyboard{
		transport.Row(
			transport.Button{Text: "Uploading", Data: encodeRequestAction("uploading", userID, title)},
			transport.Button{Text: "Uploaded", Data: encodeRequestAction("uploaded", userID, title)},
		),
		transport.Row(
			transport.Button{Text: "Unavailable", Data: encodeRequestAction("unavailable", userID, title)},
			transport.Button{Text: "Already available", Data: encodeRequestAction("already", userID, title)},
		),
		transport.Row(
			transport.Button{Text: "Spelling error", Data: encodeRequestAction("spelling", userID, title)},
			transport.Button{Text: "Dismiss", Data: encodeRequestAction("delete", userID, title)},
		),
	}
}

// handleRequest records a manual /request and alerts the operators.
func (b *Bot) handleRequest(ctx context.Context, m *transport.Message, title string) {
	if m.IsGroup {
		return
	}
	if title == "" {
		_, _ = b.reply(ctx, m.ChatID, "Usage: /request <movie name>", nil, replyTTL)
		return
	}
	if err := b.store.InsertRequest(ctx, m.FromID, m.FromUsername, title); err != nil {
		b.log.Error("request not saved", logx.Int64("user_id", m.FromID), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Sorry, the request could not be saved. Try again in a moment.", nil, replyTTL)
		return
	}
	_, _ = b.reply(ctx, m.ChatID, fmt.Sprintf("Your request for %q has been submitted.", title), nil, replyTTL)

	alert := fmt.Sprintf("New request (manual)\n\nTitle: %s\nFrom: %s (%d)", title, m.FromUsername, m.FromID)
	b.notifyAdmins(ctx, alert, requestActionKeyboard(m.FromID, title))
}

// submitRequest is the request button on a not-found reply.
func (b *Bot) submitRequest(ctx context.Context, cb *transport.Callback, ref transport.MessageRef, cmd Command) {
	if err := b.store.InsertRequest(ctx, cmd.UserID, cb.FromUsername, cmd.Title); err != nil {
		b.log.Error("request not saved", logx.Int64("user_id", cmd.UserID), logx.Err(err))
		b.answer(ctx, cb.ID, "Sorry, the request could not be saved.", true)
		return
	}
	b.answer(ctx, cb.ID, "Your request was sent to the operators!", true)
	b.editResults(ctx, ref,
		fmt.Sprintf("Request submitted.\n\nTitle: %s\n\nPlease wait, the operators will upload it soon.", cmd.Title), nil)

	alert := fmt.Sprintf("New request\n\nTitle: %s\nFrom: %s (%d)", cmd.Title, cb.FromUsername, cmd.UserID)
	b.notifyAdmins(ctx, alert, requestActionKeyboard(cmd.UserID, cmd.Title))
}

// requestOutcomes maps an operator action to the status recorded and
// the message the requester receives.
var requestOutcomes = map[string]struct {
	status  string
	userMsg string
}{
	"uploading":   {"uploading", "Your requested title %q is being uploaded. Search again in a little while."},
	"uploaded":    {"fulfilled", "Your requested title %q has been uploaded! Search the bot to download it."},
	"unavailable": {"rejected", "Sorry, your requested title %q is not available right now."},
	"already":     {"fulfilled", "The title %q is already in the catalog. Double-check the spelling and search again."},
	"spelling":    {"rejected", "The spelling of your requested title %q looks off. Please search again with the correct (English) spelling."},
}

// closeRequest handles an operator pressing one of the action buttons
// under a request alert.
func (b *Bot) closeRequest(ctx context.Context, cb *transport.Callback, ref transport.MessageRef, cmd Command) {
	if !b.isAdmin(cb.FromID) {
		b.answer(ctx, cb.ID, "Operators only.", true)
		return
	}
	if cmd.Action == "delete" {
		_ = b.gw.DeleteMessage(ctx, ref)
		b.answer(ctx, cb.ID, "", false)
		return
	}
	outcome, ok := requestOutcomes[cmd.Action]
	if !ok {
		b.answer(ctx, cb.ID, "", false)
		return
	}

	note := fmt.Sprintf("Marked %q.", cmd.Action)
	if _, err := b.reply(ctx, cmd.UserID, fmt.Sprintf(outcome.userMsg, cmd.Title), nil, 0); err != nil {
		note += " The requester could not be messaged."
	}
	if err := b.store.SetRequestStatus(ctx, cmd.UserID, cmd.Title, outcome.status); err != nil {
		b.log.Warn("request status not saved", logx.Err(err))
	}
	b.editResults(ctx, ref,
		fmt.Sprintf("Request closed.\n\nTitle: %s\nAction by: %s\n%s", cmd.Title, cb.FromUsername, note), nil)
	b.answer(ctx, cb.ID, "", false)
}

// handleFeedback stores free-form /feedback text.
func (b *Bot) handleFeedback(ctx context.Context, m *transport.Message, text string) {
	if m.IsGroup {
		return
	}
	if text == "" {
		_, _ = b.reply(ctx, m.ChatID, "Usage: /feedback <your thoughts>", nil, replyTTL)
		return
	}
	if err := b.store.InsertFeedback(ctx, m.FromID, text); err != nil {
		b.log.Error("feedback not saved", logx.Int64("user_id", m.FromID), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Sorry, that could not be saved. Try again in a moment.", nil, replyTTL)
		return
	}
	_, _ = b.reply(ctx, m.ChatID, "Thanks for the feedback!", nil, replyTTL)
}
