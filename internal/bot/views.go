package bot

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"filmgate/internal/catalog"
	"filmgate/internal/transport"
)

// The audience is primarily UTC+6; greetings follow their clock, not
// the server's.
const audienceUTCOffset = 6 * time.Hour

func greeting(now time.Time) string {
	switch h := now.UTC().Add(audienceUTCOffset).Hour(); {
	case h >= 5 && h < 12:
		return "good morning"
	case h >= 12 && h < 17:
		return "good afternoon"
	case h >= 17 && h < 21:
		return "good evening"
	default:
		return "good night"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (b *Bot) welcomeText(username string) string {
	name := strings.TrimSpace(username)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hey %s, %s!\n\nI am %s. Send me a movie or series name and I will find it in the catalog for you.",
		name, greeting(time.Now()), b.gw.DisplayName())
}

func (b *Bot) homeKeyboard() transport.Keyboard {
	kb := transport.Keyboard{
		transport.Row(transport.Button{
			Text: "Add me to your group",
			URL:  "https://t.me/" + b.gw.Username() + "?startgroup=true",
		}),
		transport.Row(
			transport.Button{Text: "Help", Data: "nav:help"},
			transport.Button{Text: "About", Data: "nav:about"},
		),
	}
	row := transport.Row(transport.Button{Text: "Top searches", Data: "nav:top"})
	if b.cfg.UpdateChannelURL != "" {
		row = append(row, transport.Button{Text: "Updates", URL: b.cfg.UpdateChannelURL})
	}
	return append(kb, row)
}

const helpText = `Help

1. Search: just type the movie or series name.
2. Request: if nothing is found, tap the request button.
3. Verify: when verification is on, complete the two web steps to receive the file.

Commands:
/start - check that the bot is alive
/request <name> - request a missing title
/feedback <text> - tell us what to improve
/notify on|off - new-upload alerts`

func (b *Bot) aboutText() string {
	return fmt.Sprintf("About\n\nName: %s\nAn auto-filter delivery bot with web verification.", b.gw.DisplayName())
}

func backToHomeKeyboard() transport.Keyboard {
	return transport.Keyboard{transport.Row(transport.Button{Text: "Back", Data: "nav:home"})}
}

var filterMenus = map[string]struct {
	title  string
	tokens [][]string
}{
	"quality": {"Select quality:", [][]string{{"480p", "720p"}, {"1080p", "2160p"}}},
	"lang":    {"Select language:", [][]string{{"Hindi", "Bengali"}, {"English", "Tamil"}}},
	"season":  {"Select season:", [][]string{{"S01", "S02"}, {"S03", "S04"}}},
}

func filterMenuView(menu string) (string, transport.Keyboard, bool) {
	m, ok := filterMenus[menu]
	if !ok {
		return "", nil, false
	}
	var kb transport.Keyboard
	for _, row := range m.tokens {
		btns := make([]transport.Button, 0, len(row))
		for _, tok := range row {
			btns = append(btns, transport.Button{Text: tok, Data: encodeFilterAdd(tok)})
		}
		kb = append(kb, btns)
	}
	kb = append(kb, transport.Row(transport.Button{Text: "Back to results", Data: "search:back"}))
	return m.title, kb, true
}

// resultsView renders one page of entries: a link button per entry, the
// filter row, and the pagination row. links must align with entries.
func resultsView(header string, entries []catalog.Entry, links []string, offset, total, pageSize int, verifyOn bool) (string, transport.Keyboard) {
	var kb transport.Keyboard
	for i, e := range entries {
		kb = append(kb, transport.Row(transport.Button{
			Text: truncate(e.Title, 36),
			URL:  links[i],
		}))
	}

	kb = append(kb, transport.Row(
		transport.Button{Text: "Quality", Data: encodeFilterMenu("quality")},
		transport.Button{Text: "Language", Data: encodeFilterMenu("lang")},
		transport.Button{Text: "Season", Data: encodeFilterMenu("season")},
	))

	page := offset/pageSize + 1
	pages := (total + pageSize - 1) / pageSize
	nav := transport.Row()
	if offset > 0 {
		nav = append(nav, transport.Button{Text: "< Back", Data: encodePage(false, offset)})
	} else {
		nav = append(nav, transport.Button{Text: "Page", Data: "ignore"})
	}
	nav = append(nav, transport.Button{Text: fmt.Sprintf("%d/%d", page, pages), Data: "ignore"})
	if offset+pageSize < total {
		nav = append(nav, transport.Button{Text: "Next >", Data: encodePage(true, offset)})
	} else {
		nav = append(nav, transport.Button{Text: "End", Data: "ignore"})
	}
	kb = append(kb, nav)

	footer := "Tap a title to download it."
	if verifyOn {
		footer = "Tap a title and complete verification to download it."
	}
	return header + "\n" + footer, kb
}

func googleSearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}

func (b *Bot) watchLink(key catalog.EntryKey) string {
	return fmt.Sprintf("https://t.me/%s?start=watch_%d_%d", b.gw.Username(), key.ChatID, key.MessageID)
}
