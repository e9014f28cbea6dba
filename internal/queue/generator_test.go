package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/abhisek/retain/internal/content"
	"github.com/abhisek/retain/internal/spacedrep"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newCandidate(id string) Candidate {
	return Candidate{
		Item:  content.Item{ID: id, Answer: id},
		State: spacedrep.NewState("u1", id),
	}
}

func overdueCandidate(id string, days int) Candidate {
	c := newCandidate(id)
	c.State.State = spacedrep.StateReview
	c.State.TotalReviews = 4
	c.State.SuccessRate = 0.9
	c.State.IntervalDays = 3
	c.State.NextDue = now.Add(-time.Duration(days) * 24 * time.Hour)
	c.State.LastReviewedAt = c.State.NextDue.Add(-3 * 24 * time.Hour)
	return c
}

// mixedPool returns n high, n medium and n low tier candidates.
func mixedPool(n int) []Candidate {
	var out []Candidate
	for i := 0; i < n; i++ {
		out = append(out, overdueCandidate(fmt.Sprintf("high-%d", i), 20))
		out = append(out, overdueCandidate(fmt.Sprintf("med-%d", i), 5))
		out = append(out, newCandidate(fmt.Sprintf("low-%d", i)))
	}
	return out
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Item.ID
	}
	return out
}

func TestScore(t *testing.T) {
	learningLeech := overdueCandidate("leech", 2)
	learningLeech.State.State = spacedrep.StateLearning
	learningLeech.State.SuccessRate = 0.5
	learningLeech.State.Leech = true

	recent := newCandidate("recent")
	recent.State.State = spacedrep.StateLearning
	recent.State.TotalReviews = 1
	recent.State.SuccessRate = 1
	recent.State.LastReviewedAt = now.Add(-30 * time.Minute)
	recent.State.NextDue = now.Add(time.Hour)

	mastered := overdueCandidate("mastered", 0)
	mastered.State.State = spacedrep.StateMastered
	mastered.State.NextDue = now.Add(10 * 24 * time.Hour)

	tests := []struct {
		name string
		c    Candidate
		want float64
		tier Tier
	}{
		{"new", newCandidate("n"), 30, TierLow},
		{"review five days overdue", overdueCandidate("r5", 5), 60, TierMedium},
		{"overdue bonus caps at 100", overdueCandidate("r20", 20), 110, TierHigh},
		{"struggling leech", learningLeech, 20 + 20 + 40 + 35, TierHigh},
		{"recently reviewed", recent, 20 - 60, TierLow},
		{"mastered not due", mastered, 0, TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.c, now, DefaultRecencyWindow)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
			if tier := TierFor(got); tier != tt.tier {
				t.Errorf("TierFor(%v) = %v, want %v", got, tier, tt.tier)
			}
		})
	}
}

func TestTierFor_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{100.5, TierHigh},
		{100, TierMedium},
		{50, TierMedium},
		{49.9, TierLow},
		{-60, TierLow},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestGenerate_DeterministicWithSeed(t *testing.T) {
	pool := mixedPool(8)
	limits := Limits{Daily: 20}

	a, err := NewGenerator(WithClock(clock), WithSeed(42)).Generate(pool, limits, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewGenerator(WithClock(clock), WithSeed(42)).Generate(pool, limits, nil)
	if err != nil {
		t.Fatal(err)
	}
	ga, gb := ids(a), ids(b)
	if len(ga) != len(gb) {
		t.Fatalf("lengths differ: %d vs %d", len(ga), len(gb))
	}
	for i := range ga {
		if ga[i] != gb[i] {
			t.Fatalf("position %d differs: %s vs %s", i, ga[i], gb[i])
		}
	}
}

func TestGenerate_RespectsLimit(t *testing.T) {
	g := NewGenerator(WithClock(clock), WithSeed(1))
	tests := []struct {
		name   string
		pool   int
		limits Limits
		want   int
	}{
		{"truncated to daily minus consumed", 10, Limits{Daily: 10, Consumed: 3}, 7},
		{"fewer candidates than limit", 2, Limits{Daily: 50}, 6},
		{"limit exhausted", 3, Limits{Daily: 5, Consumed: 5}, 0},
		{"consumed beyond daily", 3, Limits{Daily: 5, Consumed: 9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Generate(mixedPool(tt.pool), tt.limits, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
			seen := make(map[string]bool)
			for _, id := range ids(got) {
				if seen[id] {
					t.Errorf("duplicate %s", id)
				}
				seen[id] = true
			}
		})
	}
}

func TestGenerate_Errors(t *testing.T) {
	g := NewGenerator(WithClock(clock), WithSeed(1))
	if _, err := g.Generate(nil, Limits{Daily: 10}, nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("empty candidates: error = %v", err)
	}
	if _, err := g.Generate(mixedPool(1), Limits{Daily: -1}, nil); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("negative daily: error = %v", err)
	}
	if _, err := g.Generate(mixedPool(1), Limits{Daily: 10}, []Pin{{ItemID: "ghost"}}); !errors.Is(err, ErrUnknownPinned) {
		t.Errorf("unknown pin: error = %v", err)
	}
}

func TestGenerate_InterleavesTiers(t *testing.T) {
	got, err := NewGenerator(WithClock(clock), WithSeed(7)).Generate(mixedPool(6), Limits{Daily: 18}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Tier != TierHigh {
		t.Errorf("first entry tier = %v, want high", got[0].Tier)
	}
	counts := map[Tier]int{}
	for _, e := range got[:11] {
		counts[e.Tier]++
	}
	if counts[TierHigh] != 6 || counts[TierMedium] != 3 || counts[TierLow] != 2 {
		t.Errorf("tier counts in first 11 = %v, want 6/3/2", counts)
	}
}

func TestGenerate_Pinned(t *testing.T) {
	pool := append(mixedPool(3), newCandidate("chosen"), newCandidate("late"))
	g := NewGenerator(WithClock(clock), WithSeed(3))
	got, err := g.Generate(pool, Limits{Daily: 5}, []Pin{
		{ItemID: "chosen", Position: 0},
		{ItemID: "late", Position: 99},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].Item.ID != "chosen" || !got[0].Pinned || got[0].Tier != TierPinned {
		t.Errorf("first entry = %+v, want pinned chosen", got[0])
	}
	if got[4].Item.ID != "late" || !got[4].Pinned {
		t.Errorf("last entry = %s, want late pin clamped into the batch", got[4].Item.ID)
	}
	for _, e := range got[1:4] {
		if e.Pinned {
			t.Errorf("unexpected pinned entry %s", e.Item.ID)
		}
	}
}

func TestGenerate_PinsCollide(t *testing.T) {
	pool := []Candidate{newCandidate("a"), newCandidate("b"), newCandidate("c")}
	got, err := NewGenerator(WithClock(clock), WithRand(rand.New(rand.NewPCG(1, 2)))).
		Generate(pool, Limits{Daily: 3}, []Pin{{ItemID: "a", Position: 1}, {ItemID: "b", Position: 1}})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "a", "b"}
	for i, id := range ids(got) {
		if id != want[i] {
			t.Errorf("order = %v, want %v", ids(got), want)
			break
		}
	}
}
