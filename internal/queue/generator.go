package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

var (
	ErrNoCandidates  = errors.New("queue: no candidates")
	ErrInvalidLimit  = errors.New("queue: invalid limit")
	ErrUnknownPinned = errors.New("queue: pinned item is not a candidate")
)

// DefaultTierWeights sets how often each tier is drawn while interleaving
// (high:medium:low = 1:0.5:0.33).
var DefaultTierWeights = [3]int{6, 3, 2}

// Limits bounds the batch size. The batch is Daily minus Consumed.
type Limits struct {
	Daily    int
	Consumed int
}

// BatchSize returns the number of items still allowed today.
func (l Limits) BatchSize() (int, error) {
	if l.Daily < 0 || l.Consumed < 0 {
		return 0, fmt.Errorf("%w: daily=%d consumed=%d", ErrInvalidLimit, l.Daily, l.Consumed)
	}
	return max(l.Daily-l.Consumed, 0), nil
}

// Pin places an explicitly selected item at a position in the batch.
type Pin struct {
	ItemID   string
	Position int
}

// Entry is one slot in a generated batch.
type Entry struct {
	Candidate
	Score  float64
	Tier   Tier
	Pinned bool
}

// Generator orders candidates into a review batch. It is safe for
// concurrent use.
type Generator struct {
	now     func() time.Time
	recency time.Duration
	weights [3]int

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock used for overdue and recency scoring.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRand sets the source for intra-tier shuffles.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithSeed seeds the intra-tier shuffle.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithRecencyWindow sets the window for the recency penalty.
func WithRecencyWindow(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.recency = d
		}
	}
}

// WithTierWeights overrides the interleaving weights.
func WithTierWeights(high, medium, low int) Option {
	return func(g *Generator) { g.weights = [3]int{high, medium, low} }
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:     time.Now,
		recency: DefaultRecencyWindow,
		weights: DefaultTierWeights,
	}
	for _, o := range opts {
		o(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// Generate scores candidates, buckets them into tiers, shuffles each tier,
// interleaves the tiers, inserts pinned items and truncates to the batch
// size. Fewer candidates than the batch size are returned without padding.
func (g *Generator) Generate(candidates []Candidate, limits Limits, pinned []Pin) ([]Entry, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	batch, err := limits.BatchSize()
	if err != nil {
		return nil, err
	}
	if batch == 0 {
		return []Entry{}, nil
	}

	byID := lo.KeyBy(candidates, func(c Candidate) string { return c.Item.ID })
	for _, p := range pinned {
		if _, ok := byID[p.ItemID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPinned, p.ItemID)
		}
	}
	pinnedIDs := lo.SliceToMap(pinned, func(p Pin) (string, bool) { return p.ItemID, true })

	now := g.now()
	var scored []Entry
	for _, c := range candidates {
		if pinnedIDs[c.Item.ID] {
			continue
		}
		s := Score(c, now, g.recency)
		scored = append(scored, Entry{Candidate: c, Score: s, Tier: TierFor(s)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})

	var tiers [3][]Entry
	for _, e := range scored {
		tiers[e.Tier] = append(tiers[e.Tier], e)
	}
	g.mu.Lock()
	for _, t := range tiers {
		g.rng.Shuffle(len(t), func(i, j int) { t[i], t[j] = t[j], t[i] })
	}
	g.mu.Unlock()

	return place(interleave(tiers, g.weights), pinned, byID, batch), nil
}

// interleave merges tiers by smooth weighted round-robin so the high tier is
// drawn most often while the others still appear throughout the batch.
func interleave(tiers [3][]Entry, weights [3]int) []Entry {
	total := len(tiers[0]) + len(tiers[1]) + len(tiers[2])
	out := make([]Entry, 0, total)
	var next [3]int
	var current [3]int

	for len(out) < total {
		sum, pick := 0, -1
		for t := range tiers {
			if next[t] >= len(tiers[t]) {
				continue
			}
			w := max(weights[t], 1)
			current[t] += w
			sum += w
			if pick < 0 || current[t] > current[pick] {
				pick = t
			}
		}
		current[pick] -= sum
		out = append(out, tiers[pick][next[pick]])
		next[pick]++
	}
	return out
}

// place fills a batch of at most batch entries. Pins take their requested
// positions, clamped into the batch and moved to the nearest free slot on
// collision; scored entries fill the remaining slots in order. When there
// are more pins than slots, the lowest positions win.
func place(ordered []Entry, pins []Pin, byID map[string]Candidate, batch int) []Entry {
	sorted := append([]Pin(nil), pins...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	sorted = lo.UniqBy(sorted, func(p Pin) string { return p.ItemID })
	if len(sorted) > batch {
		sorted = sorted[:batch]
	}

	n := min(batch, len(ordered)+len(sorted))
	out := make([]Entry, n)
	taken := make([]bool, n)
	for _, p := range sorted {
		pos := freeSlot(taken, min(max(p.Position, 0), n-1))
		out[pos] = Entry{Candidate: byID[p.ItemID], Tier: TierPinned, Pinned: true}
		taken[pos] = true
	}

	next := 0
	for i := range out {
		if taken[i] {
			continue
		}
		out[i] = ordered[next]
		next++
	}
	return out
}

// freeSlot returns the first free index at or after want, or the nearest
// free one before it.
func freeSlot(taken []bool, want int) int {
	for i := want; i < len(taken); i++ {
		if !taken[i] {
			return i
		}
	}
	for i := want - 1; i >= 0; i-- {
		if !taken[i] {
			return i
		}
	}
	return want
}
