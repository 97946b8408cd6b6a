package catalog

import (
	"strings"
	"time"

	"filmgate/internal/transport"
)

// EntryKey is the composite identity of an indexed post. A logical title
// may appear under several source locations; each location is its own
// entry.
type EntryKey struct {
	ChatID    int64
	MessageID int
}

// Entry is one indexed media post.
//
// TitleNormalized is always Normalize(FullCaption); re-indexing the same
// caption yields the same value. ViewCount only ever increments, and only
// on successful delivery.
type Entry struct {
	Key             EntryKey
	Title           string
	TitleNormalized string
	FullCaption     string
	Year            int    // 0 when no year was extracted
	Language        string // empty when no known language was extracted
	ViewCount       int64
	ThumbnailRef    string // opaque preview asset reference, may be empty
	CreatedAt       time.Time
}

// FromMessage derives an Entry from a fetched or incoming channel post.
// Returns false for posts that are not indexable: no media, no caption,
// or a degenerate title line.
func FromMessage(m transport.Message) (Entry, bool) {
	if !m.HasMedia {
		return Entry{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return Entry{}, false
	}
	title := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if len(title) < 2 {
		return Entry{}, false
	}
	created := m.Date
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Entry{
		Key:             EntryKey{ChatID: m.ChatID, MessageID: m.ID},
		Title:           title,
		TitleNormalized: Normalize(text),
		FullCaption:     text,
		Year:            ExtractYear(text),
		Language:        ExtractLanguage(text),
		ThumbnailRef:    m.ThumbnailRef,
		CreatedAt:       created,
	}, true
}
