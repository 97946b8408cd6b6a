package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"filmgate/internal/storage"
	"filmgate/internal/transport"
	"filmgate/pkg/logx"
)

func (b *Bot) onCallback(ctx context.Context, cb *transport.Callback) {
	cmd := DecodeCommand(cb.Data)
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	switch cmd.Kind {
	case CmdIgnore:
		b.answer(ctx, cb.ID, "", false)
	case CmdNavHome:
		b.editMenu(ctx, ref, b.welcomeText(cb.FromUsername), b.homeKeyboard())
		b.answer(ctx, cb.ID, "", false)
	case CmdNavHelp:
		b.editMenu(ctx, ref, helpText, backToHomeKeyboard())
		b.answer(ctx, cb.ID, "", false)
	case CmdNavAbout:
		b.editMenu(ctx, ref, b.aboutText(), backToHomeKeyboard())
		b.answer(ctx, cb.ID, "", false)
	case CmdNavTop:
		b.showTop(ctx, cb, ref)
	case CmdPageNext, CmdPagePrev:
		b.turnPage(ctx, cb, ref, cmd)
	case CmdFilterMenu:
		title, kb, ok := filterMenuView(cmd.Menu)
		if ok {
			b.editResults(ctx, ref, title, kb)
		}
		b.answer(ctx, cb.ID, "", false)
	case CmdFilterAdd:
		b.addFilter(ctx, cb, ref, cmd.Token)
	case CmdBackToResults:
		b.backToResults(ctx, cb, ref)
	case CmdReport:
		b.answer(ctx, cb.ID, "Report sent. Thank you!", true)
		b.notifyAdmins(ctx, fmt.Sprintf("Delivery problem reported by %s (%d).", cb.FromUsername, cb.FromID), nil)
	case CmdDeleteConfirm:
		b.confirmDelete(ctx, cb, ref, cmd.Title)
	case CmdDeleteCancel:
		if b.isAdmin(cb.FromID) {
			b.editResults(ctx, ref, "Deletion cancelled.", nil)
		}
		b.answer(ctx, cb.ID, "", false)
	case CmdDeleteAllConfirm:
		b.confirmDeleteAll(ctx, cb, ref)
	case CmdDeleteAllCancel:
		if b.isAdmin(cb.FromID) {
			b.editResults(ctx, ref, "Deletion cancelled.", nil)
		}
		b.answer(ctx, cb.ID, "", false)
	case CmdRequestNew:
		b.submitRequest(ctx, cb, ref, cmd)
	case CmdRequestAction:
		b.closeRequest(ctx, cb, ref, cmd)
	default:
		b.answer(ctx, cb.ID, "", false)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := b.gw.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		b.log.Debug("callback not answered", logx.Err(err))
	}
}

// editMenu rewrites the start-menu message in place. The menu lives in
// a photo caption when a start picture is configured.
func (b *Bot) editMenu(ctx context.Context, ref transport.MessageRef, text string, kb transport.Keyboard) {
	opt := &transport.SendOptions{Keyboard: kb}
	var err error
	if b.cfg.StartPic != "" {
		err = b.gw.EditCaption(ctx, ref, text, opt)
	} else {
		err = b.gw.EditText(ctx, ref, text, opt)
	}
	if err != nil && !errors.Is(err, transport.ErrNotModified) {
		b.log.Warn("menu not edited", logx.Err(err))
	}
}

func (b *Bot) editResults(ctx context.Context, ref transport.MessageRef, text string, kb transport.Keyboard) {
	var opt *transport.SendOptions
	if kb != nil {
		opt = &transport.SendOptions{Keyboard: kb}
	}
	if err := b.gw.EditText(ctx, ref, text, opt); err != nil && !errors.Is(err, transport.ErrNotModified) {
		b.log.Warn("message not edited", logx.Err(err))
	}
}

func (b *Bot) showTop(ctx context.Context, cb *transport.Callback, ref transport.MessageRef) {
	top, err := b.store.TopEntriesByViews(ctx, 10)
	if err != nil {
		b.log.Error("top list lookup failed", logx.Err(err))
		b.answer(ctx, cb.ID, "Something went wrong, try again.", true)
		return
	}
	if len(top) == 0 {
		b.answer(ctx, cb.ID, "Nothing popular yet. Be the first to search!", true)
		return
	}

	verifyOn := b.setting(ctx, storage.SettingVerificationMode)
	links, err := b.entryLinks(ctx, cb.FromID, top, verifyOn)
	if err != nil {
		b.log.Error("top links not built", logx.Err(err))
		b.answer(ctx, cb.ID, "Something went wrong, try again.", true)
		return
	}

	var sb strings.Builder
	sb.WriteString("Top searches:\n\n")
	var kb transport.Keyboard
	for i, e := range top {
		fmt.Fprintf(&sb, "%d. %s (%d views)\n", i+1, e.Title, e.ViewCount)
		kb = append(kb, transport.Row(transport.Button{
			Text: fmt.Sprintf("%d. %s", i+1, truncate(e.Title, 32)),
			URL:  links[i],
		}))
	}
	kb = append(kb, transport.Row(transport.Button{Text: "Back", Data: "nav:home"}))
	b.editMenu(ctx, ref, sb.String(), kb)
	b.answer(ctx, cb.ID, "", false)
}

func (b *Bot) turnPage(ctx context.Context, cb *transport.Callback, ref transport.MessageRef, cmd Command) {
	last, err := b.lastQuery(ctx, cb.FromID)
	if err != nil || last == "" {
		b.answer(ctx, cb.ID, "Session expired. Search again.", true)
		return
	}

	offset := cmd.Offset
	if cmd.Kind == CmdPageNext {
		offset += b.resolver.PageSize()
	} else {
		offset -= b.resolver.PageSize()
		if offset < 0 {
			offset = 0
		}
	}

	res, err := b.resolver.Resolve(ctx, last, offset)
	if err != nil {
		b.log.Error("page lookup failed", logx.Err(err))
		b.answer(ctx, cb.ID, "Something went wrong, try again.", true)
		return
	}
	if len(res.Entries) == 0 {
		b.answer(ctx, cb.ID, "No more results.", true)
		return
	}
	header := fmt.Sprintf("Results for %q:", last)
	b.sendResults(ctx, cb.ChatID, cb.FromID, header, res.Entries, offset, res.Total, &ref)
	b.answer(ctx, cb.ID, "", false)
}

// addFilter appends a quality/language/season term to the last query
// and re-runs the search. A filter that matches nothing is reverted so
// the user keeps their working result set.
func (b *Bot) addFilter(ctx context.Context, cb *transport.Callback, ref transport.MessageRef, token string) {
	last, err := b.lastQuery(ctx, cb.FromID)
	if err != nil || last == "" {
		b.answer(ctx, cb.ID, "Session expired. Search again.", true)
		return
	}
	newQuery := strings.TrimSpace(last + " " + token)

	res, err := b.resolver.Resolve(ctx, newQuery, 0)
	if err != nil {
		b.log.Error("filtered search failed", logx.Err(err))
		b.answer(ctx, cb.ID, "Something went wrong, try again.", true)
		return
	}
	if len(res.Entries) == 0 {
		b.answer(ctx, cb.ID, "No files match that filter.", true)
		return
	}
	if err := b.store.SetLastQuery(ctx, cb.FromID, newQuery); err != nil {
		b.log.Warn("filtered query not saved", logx.Err(err))
	}
	header := fmt.Sprintf("Filtered results for %q:", newQuery)
	b.sendResults(ctx, cb.ChatID, cb.FromID, header, res.Entries, 0, res.Total, &ref)
	b.answer(ctx, cb.ID, "", false)
}

func (b *Bot) backToResults(ctx context.Context, cb *transport.Callback, ref transport.MessageRef) {
	last, err := b.lastQuery(ctx, cb.FromID)
	if err != nil || last == "" {
		b.answer(ctx, cb.ID, "Session expired. Search again.", true)
		return
	}
	res, err := b.resolver.Resolve(ctx, last, 0)
	if err != nil || len(res.Entries) == 0 {
		b.answer(ctx, cb.ID, "Session expired. Search again.", true)
		return
	}
	header := fmt.Sprintf("Results for %q:", last)
	b.sendResults(ctx, cb.ChatID, cb.FromID, header, res.Entries, 0, res.Total, &ref)
	b.answer(ctx, cb.ID, "", false)
}

func (b *Bot) lastQuery(ctx context.Context, userID int64) (string, error) {
	q, err := b.store.LastQuery(ctx, userID)
	if err != nil {
		b.log.Warn("last query lookup failed", logx.Int64("user_id", userID), logx.Err(err))
		return "", err
	}
	return q, nil
}

func (b *Bot) confirmDelete(ctx context.Context, cb *transport.Callback, ref transport.MessageRef, title string) {
	if !b.isAdmin(cb.FromID) {
		b.answer(ctx, cb.ID, "Operators only.", true)
		return
	}
	n, err := b.store.DeleteEntriesByTitle(ctx, title)
	if err != nil {
		b.log.Error("title deletion failed", logx.String("title", title), logx.Err(err))
		b.editResults(ctx, ref, "Deletion failed, check the logs.", nil)
		b.answer(ctx, cb.ID, "", false)
		return
	}
	b.editResults(ctx, ref, fmt.Sprintf("Deleted %d file(s) matching %q.", n, title), nil)
	b.answer(ctx, cb.ID, "", false)
}

func (b *Bot) confirmDeleteAll(ctx context.Context, cb *transport.Callback, ref transport.MessageRef) {
	if !b.isAdmin(cb.FromID) {
		b.answer(ctx, cb.ID, "Operators only.", true)
		return
	}
	n, err := b.store.DeleteAllEntries(ctx)
	if err != nil {
		b.log.Error("catalog wipe failed", logx.Err(err))
		b.editResults(ctx, ref, "Deletion failed, check the logs.", nil)
		b.answer(ctx, cb.ID, "", false)
		return
	}
	b.editResults(ctx, ref, fmt.Sprintf("Catalog wiped: %d entries removed.", n), nil)
	b.answer(ctx, cb.ID, "", false)
}
