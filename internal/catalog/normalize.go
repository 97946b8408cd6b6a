package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// Tokens that carry no identity: generic media words, language and release
// tags, quality and container markers.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"movie", "movies", "film", "films", "cinema", "show", "series", "season", "episode",
		"full", "link", "links", "download", "watch", "online", "free", "all", "part", "url",
		"hindi", "bengali", "bangla", "english", "tamil", "telugu", "kannada", "malayalam",
		"korean", "japanese", "chinese", "spanish", "french", "dubbed", "dual", "audio",
		"sub", "esub", "subbed", "org", "original",
		"hd", "fhd", "4k", "8k", "1080p", "720p", "480p", "360p", "240p",
		"cam", "hdcam", "rip", "web", "webrip", "hdrip", "bluray", "dvd", "dvdscr",
		"hevc", "x264", "x265", "10bit", "60fps", "hdr", "amzn", "nf", "hulu", "mp4", "mkv",
	} {
		stopWords[w] = struct{}{}
	}
}

var (
	reBracketed = regexp.MustCompile(`\[[^\]]*\]`)
	reParen     = regexp.MustCompile(`\([^)]*\)`)
	reQuality   = regexp.MustCompile(`\b(480p|720p|1080p|2160p|4k|8k|hd|fhd|bluray|web-dl|webrip|camrip|dvdscr)\b`)
	reYear      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	reSeasonEp  = regexp.MustCompile(`\bs\d{1,2}(e\d{1,2})?\b|\bseason\s?\d{1,2}\b|\bepisode\s?\d{1,3}\b`)
	reNonAlnum  = regexp.MustCompile(`[^a-z0-9\s]`)
)

// Normalize reduces free text to a comparable token form: bracketed and
// parenthesized annotations, quality tags, 4-digit years, season/episode
// patterns and stop words are stripped; the remainder is lower-cased with
// collapsed whitespace. The result is deterministic and idempotent.
// An input that normalizes to nothing yields the empty string; query
// callers fall back to the lower-cased raw text themselves.
func Normalize(text string) string {
	t := strings.ToLower(text)
	t = reBracketed.ReplaceAllString(t, " ")
	t = reParen.ReplaceAllString(t, " ")
	t = reQuality.ReplaceAllString(t, " ")
	t = reYear.ReplaceAllString(t, " ")
	t = reSeasonEp.ReplaceAllString(t, " ")
	t = reNonAlnum.ReplaceAllString(t, " ")

	words := strings.Fields(t)
	kept := words[:0]
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// NormalizeQuery is Normalize with the raw-query fallback applied: when
// everything in the query is a filter token (e.g. just "720p"), matching
// proceeds against the lower-cased raw query instead of nothing.
func NormalizeQuery(query string) string {
	if n := Normalize(query); n != "" {
		return n
	}
	return strings.ToLower(strings.TrimSpace(query))
}

// ExtractYear returns the first 4-digit year in text, or 0.
func ExtractYear(text string) int {
	m := reYear.FindString(text)
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

var knownLanguages = []string{"Bengali", "Hindi", "English", "Tamil", "Telugu", "Korean"}

// ExtractLanguage returns the first known language named in text, or "".
func ExtractLanguage(text string) string {
	lower := strings.ToLower(text)
	for _, lang := range knownLanguages {
		if strings.Contains(lower, strings.ToLower(lang)) {
			return lang
		}
	}
	return ""
}
