package search

import (
	"context"
	"sort"
	"strings"
)

// TokenSetRatio scores similarity of two strings in [0, 100]. Both inputs
// are split into unique lower-cased words; the score is the better of two
// views of the same sets:
//
//   - the classic token-set comparison (sorted intersection against the
//     intersection plus each side's remainder), which makes word order and
//     duplicates irrelevant, and
//   - a best-alignment comparison that pairs every word of the smaller set
//     with its closest word in the other set, so a one-word typo against a
//     multi-word title still scores high ("avngers" vs "avengers endgame").
func TokenSetRatio(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, restA, restB []string
	for w := range ta {
		if tb[w] {
			inter = append(inter, w)
		} else {
			restA = append(restA, w)
		}
	}
	for w := range tb {
		if !ta[w] {
			restB = append(restB, w)
		}
	}
	sort.Strings(inter)
	sort.Strings(restA)
	sort.Strings(restB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(restA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(restB, " "))

	best := ratio(t0, t1)
	if r := ratio(t0, t2); r > best {
		best = r
	}
	if r := ratio(t1, t2); r > best {
		best = r
	}
	if r := alignmentScore(ta, tb); r > best {
		best = r
	}
	return best
}

// alignmentScore pairs each word of the smaller set with its best match
// in the larger set and returns the length-weighted average of the pair
// ratios. Words with no decent counterpart drag the score down in
// proportion to their length.
func alignmentScore(ta, tb map[string]bool) int {
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	var sum, weight int
	for wa := range ta {
		best := 0
		for wb := range tb {
			if r := ratio(wa, wb); r > best {
				best = r
			}
		}
		sum += best * len(wa)
		weight += len(wa)
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// ratio is the normalized indel similarity: (total - distance) / total,
// scaled to [0, 100].
func ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	d := indelDistance(a, b)
	return (total - d) * 100 / total
}

// indelDistance is edit distance with insertions and deletions only
// (no substitutions), computed as len(a)+len(b)-2*LCS(a,b).
func indelDistance(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(b)]
	return len(a) + len(b) - 2*lcs
}

// FuzzyPool bounds how many catalog-wide fuzzy scans run at once. Each
// Do call queues behind a fixed set of workers so a burst of misses
// cannot pin every core on scoring.
type FuzzyPool struct {
	jobs chan fuzzyJob
	stop chan struct{}
}

type fuzzyJob struct {
	run  func()
	done chan struct{}
}

func NewFuzzyPool(workers int) *FuzzyPool {
	if workers <= 0 {
		workers = 5
	}
	p := &FuzzyPool{
		jobs: make(chan fuzzyJob),
		stop: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *FuzzyPool) worker() {
	for {
		select {
		case j := <-p.jobs:
			j.run()
			close(j.done)
		case <-p.stop:
			return
		}
	}
}

// Do runs fn on a pool worker and waits for it to finish, or returns the
// context error if the caller gives up first.
func (p *FuzzyPool) Do(ctx context.Context, fn func()) error {
	j := fuzzyJob{run: fn, done: make(chan struct{})}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return context.Canceled
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FuzzyPool) Stop() { close(p.stop) }
