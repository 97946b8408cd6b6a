package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"filmgate/internal/catalog"
	"filmgate/internal/search"
	"filmgate/internal/storage"
	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

// handleSearch is the plain-text entry point: every non-command message
// in a private chat, and every plausible query in a group, runs through
// the resolution pipeline.
func (b *Bot) handleSearch(ctx context.Context, m *transport.Message) {
	query := strings.TrimSpace(m.Text)
	if query == "" {
		return
	}

	if m.IsGroup {
		if err := b.store.UpsertGroup(ctx, m.ChatID, m.ChatTitle); err != nil {
			b.log.Warn("group not recorded", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		}
		// Group chatter is mostly not for us; only a plausible
		// standalone title triggers a search.
		if len(query) < 2 || m.IsReply || m.FromIsBot || strings.HasPrefix(query, "/") {
			return
		}
	}

	if err := b.store.UpsertSubscriber(ctx, m.FromID); err != nil {
		b.log.Warn("subscriber not recorded", logx.Int64("user_id", m.FromID), logx.Err(err))
	}
	if err := b.store.SetLastQuery(ctx, m.FromID, query); err != nil {
		b.log.Warn("last query not saved", logx.Int64("user_id", m.FromID), logx.Err(err))
	}

	res, err := b.resolver.Resolve(ctx, query, 0)
	if err != nil {
		b.log.Error("search failed", logx.String("query", query), logx.Err(err))
		_, _ = b.reply(ctx, m.ChatID, "Sorry, the search failed. Try again in a moment.", nil, replyTTL)
		return
	}

	if len(res.Entries) > 0 {
		b.sendResults(ctx, m.ChatID, m.FromID, b.resultHeader(query, res), res.Entries, 0, res.Total, nil)
		return
	}
	b.sendNotFound(ctx, m, query, res)
}

func (b *Bot) resultHeader(query string, res search.Result) string {
	switch res.Source {
	case search.SourceSuggestion:
		return fmt.Sprintf("Nothing matched %q, showing results for %q instead:", query, res.Suggestion)
	case search.SourceFuzzy:
		return fmt.Sprintf("Closest matches for %q:", query)
	default:
		return fmt.Sprintf("Results for %q:", query)
	}
}

// sendResults renders one result page. When edit is non-nil the page
// replaces an existing message (pagination and filters edit in place);
// otherwise it is sent fresh with a cleanup timer.
func (b *Bot) sendResults(ctx context.Context, chatID, userID int64, header string, entries []catalog.Entry, offset, total int, edit *transport.MessageRef) {
	verifyOn := b.setting(ctx, storage.SettingVerificationMode)
	links, err := b.entryLinks(ctx, userID, entries, verifyOn)
	if err != nil {
		b.log.Error("result links not built", logx.Err(err))
		_, _ = b.reply(ctx, chatID, "Sorry, something went wrong. Try again in a moment.", nil, replyTTL)
		return
	}

	text, kb := resultsView(header, entries, links, offset, total, b.resolver.PageSize(), verifyOn)
	opt := &transport.SendOptions{Keyboard: kb}
	if edit != nil {
		err := b.gw.EditText(ctx, *edit, text, opt)
		if err != nil && !errors.Is(err, transport.ErrNotModified) {
			b.log.Warn("results not edited", logx.Err(err))
		}
		return
	}
	ref, err := b.gw.SendMessage(ctx, transport.ChatTarget{ChatID: chatID}, text, opt)
	if err != nil {
		b.log.Warn("results not sent", logx.Int64("chat_id", chatID), logx.Err(err))
		return
	}
	b.scheduleDelete(ref, replyTTL)
}

// entryLinks builds the per-entry URL buttons: verification links when
// the gate is on, plain watch deep links otherwise.
func (b *Bot) entryLinks(ctx context.Context, userID int64, entries []catalog.Entry, verifyOn bool) ([]string, error) {
	links := make([]string, len(entries))
	for i, e := range entries {
		if !verifyOn {
			links[i] = b.watchLink(e.Key)
			continue
		}
		link, err := b.gate.Issue(ctx, userID, e.Key)
		if err != nil {
			return nil, err
		}
		links[i] = link
	}
	return links, nil
}

// sendNotFound renders the miss path: a request button and a web search
// link for the user, and a structured alert for the operators.
func (b *Bot) sendNotFound(ctx context.Context, m *transport.Message, query string, res search.Result) {
	finalQuery := res.NormalizedQuery
	if res.Suggestion != "" {
		finalQuery = res.Suggestion
	}
	if finalQuery == "" {
		finalQuery = query
	}

	text := fmt.Sprintf("Nothing found for %q.", query)
	if res.Suggestion != "" {
		text += fmt.Sprintf("\nDid you mean %q? Request it below and we will upload it.", res.Suggestion)
	} else {
		text += "\nCheck the spelling, or request it below and we will upload it."
	}
	kb := transport.Keyboard{
		transport.Row(transport.Button{Text: "Request this title", Data: encodeRequestNew(m.FromID, finalQuery)}),
		transport.Row(transport.Button{Text: "Search the web", URL: googleSearchURL(finalQuery)}),
	}
	_, _ = b.reply(ctx, m.ChatID, text, kb, replyTTL)

	alert := fmt.Sprintf("Missing file alert\n\nUser: %s (%d)\nSearch: %s", m.FromUsername, m.FromID, query)
	b.notifyAdmins(ctx, alert, requestActionKeyboard(m.FromID, finalQuery))
}
