package bot

import (
	"testing"
)

func TestDecodeCommandRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want Command
	}{
		{"ignore", "ignore", Command{Kind: CmdIgnore}},
		{"home", "nav:home", Command{Kind: CmdNavHome}},
		{"top", "nav:top", Command{Kind: CmdNavTop}},
		{"next page", encodePage(true, 10), Command{Kind: CmdPageNext, Offset: 10}},
		{"prev page", encodePage(false, 20), Command{Kind: CmdPagePrev, Offset: 20}},
		{"filter menu", encodeFilterMenu("quality"), Command{Kind: CmdFilterMenu, Menu: "quality"}},
		{"filter add", encodeFilterAdd("720p"), Command{Kind: CmdFilterAdd, Token: "720p"}},
		{"back", "search:back", Command{Kind: CmdBackToResults}},
		{"report", "report", Command{Kind: CmdReport}},
		{"delete cancel", "del:cancel", Command{Kind: CmdDeleteCancel}},
		{"delete all", "delall:confirm", Command{Kind: CmdDeleteAllConfirm}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DecodeCommand(tc.data); got != tc.want {
				t.Fatalf("DecodeCommand(%q) = %+v, want %+v", tc.data, got, tc.want)
			}
		})
	}
}

func TestDecodeCommandEscapedTitles(t *testing.T) {
	t.Parallel()
	title := "Mission: Impossible (1996)"

	got := DecodeCommand(encodeDeleteConfirm(title))
	if got.Kind != CmdDeleteConfirm || got.Title != title {
		t.Fatalf("delete confirm decoded to %+v", got)
	}

	got = DecodeCommand(encodeRequestNew(42, title))
	if got.Kind != CmdRequestNew || got.UserID != 42 || got.Title != title {
		t.Fatalf("request new decoded to %+v", got)
	}

	got = DecodeCommand(encodeRequestAction("uploaded", 42, title))
	if got.Kind != CmdRequestAction || got.Action != "uploaded" || got.UserID != 42 || got.Title != title {
		t.Fatalf("request action decoded to %+v", got)
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	t.Parallel()
	for _, data := range []string{
		"",
		"bogus",
		"page:next:notanumber",
		"page:next:-5",
		"page:sideways:10",
		"flt:menu:resolution",
		"flt:add:",
		"del:confirm:",
		"req:new:notanid:Title",
		"req:act:uploaded:42", // missing title segment
	} {
		if got := DecodeCommand(data); got.Kind != CmdUnknown {
			t.Fatalf("DecodeCommand(%q) = %+v, want CmdUnknown", data, got)
		}
	}
}
