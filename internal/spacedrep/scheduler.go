package spacedrep

import (
	"fmt"
	"math"
	"time"
)

// Response is one graded answer fed into the scheduler.
type Response struct {
	Correct bool
	// ResponseTimeMs is the time taken to answer. Zero means unknown.
	ResponseTimeMs uint32
	// Confidence is the learner's self-rating in 1..5. Zero means absent.
	Confidence int
	// At is the review time. NextDue is computed from it.
	At time.Time
}

// Scheduler computes the next schedule state from a previous state and a
// response. It holds no mutable state and is safe for concurrent use.
type Scheduler struct {
	params Params
}

// NewScheduler creates a scheduler. Zero fields in p take their defaults.
func NewScheduler(p Params) (*Scheduler, error) {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Scheduler{params: p}, nil
}

// Default returns a scheduler with DefaultParams.
func Default() *Scheduler {
	return &Scheduler{params: DefaultParams()}
}

// Params returns the effective parameters.
func (s *Scheduler) Params() Params {
	return s.params
}

// Advance applies resp to prev and returns the updated state. prev is not
// modified. Errors wrap ErrInvalidResponse, ErrInvalidState or
// ErrInvalidInterval.
func (s *Scheduler) Advance(prev ScheduleState, resp Response) (ScheduleState, error) {
	if err := checkResponse(resp); err != nil {
		return ScheduleState{}, err
	}
	if err := s.checkState(prev); err != nil {
		return ScheduleState{}, err
	}

	next := prev
	if next.State == StateNew && next.Ease == 0 {
		next.Ease = DefaultEase
	}
	next.TotalReviews++
	next.SuccessRate = s.updateSuccessRate(prev, resp.Correct)

	if !resp.Correct {
		next.State = StateLearning
		next.IntervalDays = RelearnIntervalDays
		next.ConsecutiveCorrect = 0
		next.Lapses++
		next.Ease = clampEase(next.Ease - s.params.LapseEasePenalty)
	} else {
		pf := s.PerformanceFactor(resp)
		next.Ease = clampEase(next.Ease + s.params.MaxEaseStep*(2*pf-1))
		next.ConsecutiveCorrect++

		switch next.ConsecutiveCorrect {
		case 1:
			next.State = StateLearning
			next.IntervalDays = FirstStepDays
		case 2:
			next.State = StateReview
			next.IntervalDays = GraduateIntervalDays
		default:
			base := math.Max(prev.IntervalDays, GraduateIntervalDays)
			next.IntervalDays = math.Min(base*next.Ease, s.params.MaxIntervalDays)
			next.State = StateReview
			if next.IntervalDays >= s.params.MasteryIntervalDays &&
				next.SuccessRate >= s.params.MasterySuccessRate {
				next.State = StateMastered
			}
		}
	}

	if math.IsNaN(next.IntervalDays) || math.IsInf(next.IntervalDays, 0) || next.IntervalDays < 0 {
		return ScheduleState{}, fmt.Errorf("%w: %v days for item %s", ErrInvalidInterval, next.IntervalDays, prev.ItemID)
	}

	next.Leech = next.Lapses >= s.params.LeechThreshold
	next.LastReviewedAt = resp.At
	next.NextDue = resp.At.Add(daysToDuration(next.IntervalDays))
	return next, nil
}

// PerformanceFactor blends response speed and confidence into [0,1] for a
// correct answer. Missing inputs count as neutral. Incorrect answers score 0.
func (s *Scheduler) PerformanceFactor(resp Response) float64 {
	if !resp.Correct {
		return 0
	}
	return 0.5*s.speedScore(resp.ResponseTimeMs) + 0.5*confidenceScore(resp.Confidence)
}

func (s *Scheduler) speedScore(ms uint32) float64 {
	if ms == 0 {
		return 0.5
	}
	fast, slow := s.params.FastResponseMs, s.params.SlowResponseMs
	switch {
	case ms <= fast:
		return 1
	case ms >= slow:
		return 0
	}
	return float64(slow-ms) / float64(slow-fast)
}

func confidenceScore(c int) float64 {
	if c == 0 {
		return 0.5
	}
	return float64(c-1) / 4
}

func (s *Scheduler) updateSuccessRate(prev ScheduleState, correct bool) float64 {
	outcome := 0.0
	if correct {
		outcome = 1
	}
	if prev.TotalReviews == 0 {
		return outcome
	}
	a := s.params.SuccessRateAlpha
	return a*outcome + (1-a)*prev.SuccessRate
}

func clampEase(e float64) float64 {
	return math.Max(MinEase, math.Min(MaxEase, e))
}

func checkResponse(r Response) error {
	if r.Confidence < 0 || r.Confidence > 5 {
		return fmt.Errorf("%w: confidence %d outside 1..5", ErrInvalidResponse, r.Confidence)
	}
	if r.At.IsZero() {
		return fmt.Errorf("%w: missing review time", ErrInvalidResponse)
	}
	return nil
}

func (s *Scheduler) checkState(st ScheduleState) error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: item %s: "+format, append([]any{ErrInvalidState, st.ItemID}, args...)...)
	}
	if !st.State.Valid() {
		return bad("unknown learning state %q", st.State)
	}
	if math.IsNaN(st.Ease) || math.IsInf(st.Ease, 0) {
		return bad("ease %v", st.Ease)
	}
	if !(st.State == StateNew && st.Ease == 0) && (st.Ease < MinEase || st.Ease > MaxEase) {
		return bad("ease %v outside [%v, %v]", st.Ease, MinEase, MaxEase)
	}
	if math.IsNaN(st.IntervalDays) || math.IsInf(st.IntervalDays, 0) || st.IntervalDays < 0 {
		return bad("interval %v", st.IntervalDays)
	}
	if math.IsNaN(st.SuccessRate) || st.SuccessRate < 0 || st.SuccessRate > 1 {
		return bad("success rate %v", st.SuccessRate)
	}
	if st.ConsecutiveCorrect < 0 || st.TotalReviews < 0 || st.Lapses < 0 {
		return bad("negative counter")
	}
	return nil
}
