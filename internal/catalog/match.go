package catalog

// Match describes one catalog title query. Every whitespace-separated
// word of Pattern must occur as a case-insensitive substring of the
// title or normalized title (normalized only when NormalizedOnly is
// set), optionally filtered by an exact year.
type Match struct {
	Pattern        string
	NormalizedOnly bool
	Year           int // 0 = no year filter
}
