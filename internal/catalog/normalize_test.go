package catalog

import (
	"testing"
	"time"

	"filmgate/internal/transport"
)

func TestNormalizeVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Avengers Endgame", want: "avengers endgame"},
		{name: "year and quality", in: "Avengers: Endgame (2019) [720p]", want: "avengers endgame"},
		{name: "stop words", in: "Avengers Endgame Full Movie Download HD", want: "avengers endgame"},
		{name: "season episode", in: "Dark S01E03 German", want: "dark german"},
		{name: "season word", in: "Dark Season 2 Episode 10", want: "dark"},
		{name: "language tag stripped", in: "Parasite Korean Dubbed", want: "parasite"},
		{name: "only filters", in: "720p BluRay", want: ""},
		{name: "collapse whitespace", in: "  The   Batman \n 2022  ", want: "the batman"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"Avengers: Endgame (2019) [720p] BluRay x264",
		"Dark S01E03 720p WEBRip Dual Audio",
		"পথের পাঁচালী (1955) Bengali",
		"",
		"720p",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeQueryFallback(t *testing.T) {
	t.Parallel()
	if got := NormalizeQuery("720p"); got != "720p" {
		t.Fatalf("NormalizeQuery(%q) = %q, want raw fallback", "720p", got)
	}
	if got := NormalizeQuery("Avengers 720p"); got != "avengers" {
		t.Fatalf("NormalizeQuery = %q, want %q", got, "avengers")
	}
}

func TestExtractYear(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"Avengers Endgame 2019", 2019},
		{"Old Classic (1955)", 1955},
		{"No year here", 0},
		{"x20191 is not a year", 0},
	}
	for _, tt := range tests {
		if got := ExtractYear(tt.in); got != tt.want {
			t.Fatalf("ExtractYear(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractLanguage(t *testing.T) {
	t.Parallel()
	if got := ExtractLanguage("Some Movie Hindi Dubbed 720p"); got != "Hindi" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractLanguage("Some Movie 720p"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestFromMessage(t *testing.T) {
	t.Parallel()
	base := transport.Message{
		ID:       42,
		ChatID:   -100123,
		HasMedia: true,
		Text:     "Avengers: Endgame (2019) [720p]\nDual Audio | 1.4GB",
		Date:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	e, ok := FromMessage(base)
	if !ok {
		t.Fatal("expected indexable entry")
	}
	if e.Key != (EntryKey{ChatID: -100123, MessageID: 42}) {
		t.Fatalf("unexpected key %+v", e.Key)
	}
	if e.Title != "Avengers: Endgame (2019) [720p]" {
		t.Fatalf("unexpected title %q", e.Title)
	}
	if e.Year != 2019 {
		t.Fatalf("unexpected year %d", e.Year)
	}
	if e.TitleNormalized != Normalize(base.Text) {
		t.Fatal("TitleNormalized must derive from the full caption")
	}

	noMedia := base
	noMedia.HasMedia = false
	if _, ok := FromMessage(noMedia); ok {
		t.Fatal("message without media must not be indexable")
	}

	noCaption := base
	noCaption.Text = "   "
	if _, ok := FromMessage(noCaption); ok {
		t.Fatal("message without caption must not be indexable")
	}

	shortTitle := base
	shortTitle.Text = "A\nrest of caption"
	if _, ok := FromMessage(shortTitle); ok {
		t.Fatal("degenerate title must not be indexable")
	}
}
