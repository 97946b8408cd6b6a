// Package search resolves a free-form user query into catalog entries
// through a staged fallback pipeline: exact substring match, loose
// normalized match, an external spelling suggestion, and finally a
// catalog-wide fuzzy scan.
package search

import (
	"context"
	"sort"
	"strings"

	"filmgate/internal/catalog"
	"filmgate/pkg/logx"
)

// Source names the pipeline stage that produced a result set.
type Source string

const (
	SourceExact      Source = "exact"
	SourceLoose      Source = "loose"
	SourceSuggestion Source = "suggestion"
	SourceFuzzy      Source = "fuzzy"
	SourceNone       Source = "none"
)

// Catalog is the slice of the store the pipeline needs.
type Catalog interface {
	SearchEntries(ctx context.Context, m catalog.Match, offset, limit int) ([]catalog.Entry, error)
	CountEntries(ctx context.Context, m catalog.Match) (int, error)
	AllEntries(ctx context.Context) ([]catalog.Entry, error)
}

// Suggester proposes an alternative spelling for a query. An empty
// suggestion means none is available.
type Suggester interface {
	Suggest(ctx context.Context, query string) (string, error)
}

type Result struct {
	Entries         []catalog.Entry
	Total           int
	Source          Source
	Suggestion      string // corrected title from the suggester, set even when it matched nothing
	NormalizedQuery string
	Year            int
}

type Resolver struct {
	catalog     Catalog
	suggester   Suggester
	pool        *FuzzyPool
	pageSize    int
	fuzzyCutoff int
	log         logx.Logger
}

func NewResolver(c Catalog, s Suggester, pool *FuzzyPool, pageSize, fuzzyCutoff int, log logx.Logger) *Resolver {
	if pageSize <= 0 {
		pageSize = 10
	}
	if fuzzyCutoff <= 0 {
		fuzzyCutoff = 80
	}
	return &Resolver{
		catalog:     c,
		suggester:   s,
		pool:        pool,
		pageSize:    pageSize,
		fuzzyCutoff: fuzzyCutoff,
		log:         log,
	}
}

func (r *Resolver) PageSize() int { return r.pageSize }

// Resolve runs the query through the stages in order and returns the
// first non-empty page. Later stages only run on the first page: a user
// paging through exact results never falls through to a fuzzy scan.
func (r *Resolver) Resolve(ctx context.Context, rawQuery string, offset int) (Result, error) {
	query := strings.TrimSpace(rawQuery)
	year := catalog.ExtractYear(query)
	normalized := catalog.NormalizeQuery(query)

	res := Result{Source: SourceNone, NormalizedQuery: normalized, Year: year}
	if normalized == "" {
		return res, nil
	}

	// Stage 1: the raw query, word by word, over title and normalized
	// title. Raw keeps user-typed filter tags like "720p" in play.
	exact := catalog.Match{Pattern: query, Year: year}
	entries, total, err := r.page(ctx, exact, offset)
	if err != nil {
		return res, err
	}
	if total > 0 {
		res.Entries, res.Total, res.Source = entries, total, SourceExact
		return res, nil
	}

	// Stage 2: the normalized query against normalized titles only.
	// Skipped when the user pinned a year; an explicit year that matches
	// nothing should say so rather than loosen silently.
	if year == 0 {
		loose := catalog.Match{Pattern: normalized, NormalizedOnly: true}
		entries, total, err = r.page(ctx, loose, offset)
		if err != nil {
			return res, err
		}
		if total > 0 {
			res.Entries, res.Total, res.Source = entries, total, SourceLoose
			return res, nil
		}
	}

	if offset > 0 {
		return res, nil
	}

	// Stage 3: spelling suggestion. Failures here degrade to the fuzzy
	// stage instead of failing the whole search.
	var suggested bool
	if r.suggester != nil {
		if sugg := r.trySuggestion(ctx, normalized); sugg != "" {
			suggested = true
			// Kept on a miss too: the not-found flow offers the corrected
			// title as the thing to request.
			res.Suggestion = sugg
			entries, total, err = r.page(ctx, catalog.Match{Pattern: sugg}, 0)
			if err != nil {
				return res, err
			}
			if total == 0 {
				entries, total, err = r.page(ctx, catalog.Match{Pattern: catalog.NormalizeQuery(sugg)}, 0)
				if err != nil {
					return res, err
				}
			}
			if total > 0 {
				res.Entries, res.Total = entries, total
				res.Source, res.Suggestion = SourceSuggestion, sugg
				return res, nil
			}
		}
	}

	// Stage 4: fuzzy scan of the whole catalog. Last resort: skipped when
	// the query carried a year or a suggestion already came back.
	if year != 0 || suggested {
		return res, nil
	}
	entries, err = r.fuzzy(ctx, normalized)
	if err != nil {
		return res, err
	}
	if len(entries) > 0 {
		res.Entries, res.Total, res.Source = entries, len(entries), SourceFuzzy
	}
	return res, nil
}

func (r *Resolver) page(ctx context.Context, m catalog.Match, offset int) ([]catalog.Entry, int, error) {
	total, err := r.catalog.CountEntries(ctx, m)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || offset >= total {
		return nil, total, nil
	}
	entries, err := r.catalog.SearchEntries(ctx, m, offset, r.pageSize)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *Resolver) trySuggestion(ctx context.Context, query string) string {
	sugg, err := r.suggester.Suggest(ctx, query)
	if err != nil {
		r.log.Debug("suggestion lookup failed", logx.Err(err))
		return ""
	}
	sugg = strings.TrimSpace(sugg)
	if strings.EqualFold(sugg, query) {
		return ""
	}
	return sugg
}

type scored struct {
	entry catalog.Entry
	score int
}

func (r *Resolver) fuzzy(ctx context.Context, normalized string) ([]catalog.Entry, error) {
	all, err := r.catalog.AllEntries(ctx)
	if err != nil {
		return nil, err
	}

	var hits []scored
	score := func() {
		seen := map[catalog.EntryKey]bool{}
		for _, e := range all {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			target := e.TitleNormalized
			if target == "" {
				target = strings.ToLower(e.Title)
			}
			if s := TokenSetRatio(normalized, target); s >= r.fuzzyCutoff {
				hits = append(hits, scored{entry: e, score: s})
			}
		}
	}
	if r.pool != nil {
		if err := r.pool.Do(ctx, score); err != nil {
			return nil, err
		}
	} else {
		score()
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entry.ViewCount > hits[j].entry.ViewCount
	})
	if len(hits) > r.pageSize {
		hits = hits[:r.pageSize]
	}
	out := make([]catalog.Entry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out, nil
}
