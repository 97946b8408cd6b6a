package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Callback data is decoded exactly once, at the update boundary, into a
// tagged Command. Handlers switch on Kind instead of re-parsing the raw
// string, so a malformed payload can only ever produce CmdUnknown.
//
// Wire formats (free-text fields are query-escaped, so ':' never
// appears inside a segment):
//
//	ignore
//	nav:home | nav:help | nav:about | nav:top
//	page:next:<offset> | page:prev:<offset>
//	flt:menu:<quality|lang|season>
//	flt:add:<token>
//	search:back
//	report
//	del:confirm:<title> | del:cancel
//	delall:confirm | delall:cancel
//	req:new:<userID>:<title>
//	req:act:<action>:<userID>:<title>
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdIgnore
	CmdNavHome
	CmdNavHelp
	CmdNavAbout
	CmdNavTop
	CmdPageNext
	CmdPagePrev
	CmdFilterMenu
	CmdFilterAdd
	CmdBackToResults
	CmdReport
	CmdDeleteConfirm
	CmdDeleteCancel
	CmdDeleteAllConfirm
	CmdDeleteAllCancel
	CmdRequestNew
	CmdRequestAction
)

// Command is one decoded callback. Only the fields relevant to Kind are
// populated.
type Command struct {
	Kind   CommandKind
	Offset int    // CmdPageNext, CmdPagePrev: the offset currently shown
	Menu   string // CmdFilterMenu: quality, lang or season
	Token  string // CmdFilterAdd: term appended to the last query
	Action string // CmdRequestAction: uploading, uploaded, unavailable, already, spelling, delete
	UserID int64  // CmdRequestNew, CmdRequestAction: the requesting user
	Title  string // CmdDeleteConfirm, CmdRequestNew, CmdRequestAction
}

func encodePage(next bool, offset int) string {
	dir := "prev"
	if next {
		dir = "next"
	}
	return fmt.Sprintf("page:%s:%d", dir, offset)
}

func encodeFilterMenu(menu string) string { return "flt:menu:" + menu }

func encodeFilterAdd(token string) string {
	return "flt:add:" + url.QueryEscape(token)
}

func encodeDeleteConfirm(title string) string {
	return "del:confirm:" + url.QueryEscape(title)
}

func encodeRequestNew(userID int64, title string) string {
	return fmt.Sprintf("req:new:%d:%s", userID, url.QueryEscape(title))
}

func encodeRequestAction(action string, userID int64, title string) string {
	return fmt.Sprintf("req:act:%s:%d:%s", action, userID, url.QueryEscape(title))
}

// DecodeCommand parses raw callback data. Anything unparseable comes
// back as CmdUnknown rather than an error; stale buttons from older
// deployments should die quietly.
func DecodeCommand(data string) Command {
	switch data {
	case "ignore":
		return Command{Kind: CmdIgnore}
	case "nav:home":
		return Command{Kind: CmdNavHome}
	case "nav:help":
		return Command{Kind: CmdNavHelp}
	case "nav:about":
		return Command{Kind: CmdNavAbout}
	case "nav:top":
		return Command{Kind: CmdNavTop}
	case "search:back":
		return Command{Kind: CmdBackToResults}
	case "report":
		return Command{Kind: CmdReport}
	case "del:cancel":
		return Command{Kind: CmdDeleteCancel}
	case "delall:confirm":
		return Command{Kind: CmdDeleteAllConfirm}
	case "delall:cancel":
		return Command{Kind: CmdDeleteAllCancel}
	}

	parts := strings.Split(data, ":")
	switch parts[0] {
	case "page":
		if len(parts) != 3 {
			break
		}
		offset, err := strconv.Atoi(parts[2])
		if err != nil || offset < 0 {
			break
		}
		switch parts[1] {
		case "next":
			return Command{Kind: CmdPageNext, Offset: offset}
		case "prev":
			return Command{Kind: CmdPagePrev, Offset: offset}
		}
	case "flt":
		if len(parts) != 3 {
			break
		}
		switch parts[1] {
		case "menu":
			switch parts[2] {
			case "quality", "lang", "season":
				return Command{Kind: CmdFilterMenu, Menu: parts[2]}
			}
		case "add":
			token, err := url.QueryUnescape(parts[2])
			if err != nil || token == "" {
				break
			}
			return Command{Kind: CmdFilterAdd, Token: token}
		}
	case "del":
		if len(parts) != 3 || parts[1] != "confirm" {
			break
		}
		title, err := url.QueryUnescape(parts[2])
		if err != nil || title == "" {
			break
		}
		return Command{Kind: CmdDeleteConfirm, Title: title}
	case "req":
		if len(parts) < 4 {
			break
		}
		switch parts[1] {
		case "new":
			if len(parts) != 4 {
				break
			}
			userID, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				break
			}
			title, err := url.QueryUnescape(parts[3])
			if err != nil || title == "" {
				break
			}
			return Command{Kind: CmdRequestNew, UserID: userID, Title: title}
		case "act":
			if len(parts) != 5 {
				break
			}
			userID, err := strconv.ParseInt(parts[3], 10, 64)
			if err != nil {
				break
			}
			title, err := url.QueryUnescape(parts[4])
			if err != nil || title == "" {
				break
			}
			return Command{Kind: CmdRequestAction, Action: parts[2], UserID: userID, Title: title}
		}
	}
	return Command{Kind: CmdUnknown}
}
