// Package dynamics implements the per-memory decay and reinforcement model:
// an FSRS-6 style scheduler with a power-law forgetting curve, plus the
// dual-strength (retrieval/storage) model used for ranking.
//
// All functions are deterministic given identical inputs; callers pass the
// current time explicitly.
package dynamics

import (
	"math"
	"time"
)

// Grade is a review grade on the FSRS 1-4 scale.
type Grade int

const (
	GradeAgain Grade = 1 // complete failure to recall
	GradeHard  Grade = 2 // recalled with significant difficulty
	GradeGood  Grade = 3 // recalled correctly with some effort
	GradeEasy  Grade = 4 // recalled effortlessly
)

// ClampGrade maps an arbitrary integer grade signal onto the FSRS scale.
// External callers grade on a loose 0-5 scale; anything at or below 0 is a
// failure, anything above Easy is Easy.
func ClampGrade(g int) Grade {
	if g < int(GradeAgain) {
		return GradeAgain
	}
	if g > int(GradeEasy) {
		return GradeEasy
	}
	return Grade(g)
}

// Params holds the 21 FSRS-6 weights.
//
//	w[0-3]   initial stability per first-review grade
//	w[4-5]   initial difficulty curve
//	w[6-7]   difficulty delta and mean reversion
//	w[8-10]  stability growth after successful recall
//	w[11-13] post-lapse stability
//	w[15-16] hard penalty and easy bonus on stability growth
//	w[17]    lapse retrievability factor
//	w[20]    power-law decay exponent for retrievability
//
// w[14], w[18] and w[19] belong to the source model's same-day review terms,
// which this scheduler does not apply.
type Params struct {
	W [21]float64
}

// DefaultParams returns the stock FSRS-6 weights.
func DefaultParams() Params {
	return Params{W: [21]float64{
		0.212, 1.2931, 2.3065, 8.2956,
		6.4133, 0.8334, 3.0194, 0.001,
		1.8722, 0.1666, 0.796,
		1.4835, 0.0614, 0.2629,
		1.6483, 0.6014, 1.8729, 0.5425,
		0.0912, 0.0658,
		0.1542,
	}}
}

// State is the scheduler-owned portion of a memory's dynamics.
type State struct {
	Stability         float64   // days until retrievability drops to 90%
	Difficulty        float64   // intrinsic recall hardness, 1-10
	RetrievalStrength float64   // short-term accessibility, 0-1
	StorageStrength   float64   // long-term consolidation, 0-1
	LastReview        time.Time // zero value means never reviewed
	ReviewCount       int
}

// NewState returns the defaults for a freshly created memory.
func NewState() State {
	return State{
		Stability:         1.0,
		Difficulty:        5.0,
		RetrievalStrength: 1.0,
		StorageStrength:   0.5,
	}
}

// ReviewResult is the outcome of applying one review to a State.
type ReviewResult struct {
	State                State
	RetrievabilityBefore float64
	NextReviewDays       float64
}

const (
	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// Retrievability returns the probability of recall after elapsedDays given
// the current stability, using the FSRS-6 power-law forgetting curve:
//
//	R(t) = (1 + factor * t/S)^(-w20)
//
// with factor chosen so that R(S) = 0.9.
func Retrievability(elapsedDays, stability float64, p Params) float64 {
	if elapsedDays <= 0 {
		return 1.0
	}
	if stability <= 0 {
		return 0.0
	}
	w20 := p.W[20]
	factor := math.Pow(0.9, -1.0/w20) - 1.0
	return math.Pow(1.0+factor*elapsedDays/stability, -w20)
}

func initialStability(g Grade, p Params) float64 {
	return p.W[g-1]
}

// initialDifficulty computes D0 = w4 - e^(w5*(grade-1)) + 1, clamped.
func initialDifficulty(g Grade, p Params) float64 {
	d0 := p.W[4] - math.Exp(p.W[5]*float64(g-1)) + 1
	return clampDifficulty(d0)
}

func clampDifficulty(d float64) float64 {
	return math.Max(minDifficulty, math.Min(maxDifficulty, d))
}

func clampUnit(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

// meanReversion pulls difficulty back toward the easy-item baseline so it
// cannot drift to an extreme over many reviews.
func meanReversion(d float64, p Params) float64 {
	return p.W[7]*initialDifficulty(GradeEasy, p) + (1-p.W[7])*d
}

// updateDifficulty moves difficulty against the grade: failures make an item
// harder, easy recalls make it easier. Mean reversion keeps it near center.
func updateDifficulty(current float64, g Grade, p Params) float64 {
	delta := p.W[6] * float64(GradeGood-g)
	return clampDifficulty(meanReversion(current+delta, p))
}

// updateStabilitySuccess grows stability after successful recall. The growth
// is largest for easy items recalled near the point of forgetting: low
// retrievability at review time means a big exp(w8*(1-R)) factor.
func updateStabilitySuccess(stability, difficulty, retrievability float64, g Grade, p Params) float64 {
	bonus := 1.0
	switch g {
	case GradeHard:
		bonus = p.W[15] // hard penalty, < 1
	case GradeEasy:
		bonus = p.W[16] // easy bonus, > 1
	}

	growth := math.Exp(p.W[8]) *
		(11 - difficulty) *
		math.Pow(stability, -p.W[9]) *
		(math.Exp(p.W[10]*(1-retrievability)) - 1) *
		bonus

	return math.Max(minStability, stability*(1+growth))
}

// updateStabilityFailure handles a lapse. The w13 exponent keeps the
// (S+1)^w13 term sublinear, so a lapse always lands well below the pre-lapse
// stability; the min is a backstop and the floor keeps it positive.
func updateStabilityFailure(stability, difficulty, retrievability float64, p Params) float64 {
	s := p.W[11] *
		math.Pow(difficulty, -p.W[12]) *
		(math.Pow(stability+1, p.W[13]) - 1) *
		math.Exp(p.W[17]*(1-retrievability))

	return math.Max(minStability, math.Min(s, stability))
}

// updateDualStrength applies Bjork's dual-strength model. Retrieval strength
// decays with elapsed time (slower at higher storage strength) and is boosted
// by successful recall; storage strength grows most when retrieval strength
// was low at review time (desirable difficulty).
func updateDualStrength(retrieval, storage float64, g Grade, elapsedDays float64) (float64, float64) {
	decayRate := 0.1 * (1 / (1 + storage))
	decayed := retrieval * math.Exp(-decayRate*elapsedDays)

	if g == GradeAgain {
		return 0.3, clampUnit(storage + 0.05)
	}

	difficultyBonus := math.Max(0, 1-decayed)

	var boost, gain float64
	switch g {
	case GradeHard:
		boost, gain = 0.5, 0.1+0.1*difficultyBonus
	case GradeEasy:
		boost, gain = 0.9, 0.1+0.05*difficultyBonus
	default:
		boost, gain = 0.7, 0.15+0.15*difficultyBonus
	}

	return clampUnit(decayed + boost), clampUnit(storage + gain)
}

// Review applies one graded recall to a memory state.
func Review(s State, g Grade, now time.Time, p Params) ReviewResult {
	var elapsedDays float64
	if !s.LastReview.IsZero() {
		elapsedDays = now.Sub(s.LastReview).Seconds() / 86400.0
	}

	var before float64
	if s.ReviewCount == 0 {
		before = 1.0
	} else {
		before = Retrievability(elapsedDays, s.Stability, p)
	}

	var stability, difficulty float64
	if s.ReviewCount == 0 {
		stability = initialStability(g, p)
		difficulty = initialDifficulty(g, p)
	} else {
		difficulty = updateDifficulty(s.Difficulty, g, p)
		if g == GradeAgain {
			stability = updateStabilityFailure(s.Stability, s.Difficulty, before, p)
		} else {
			stability = updateStabilitySuccess(s.Stability, s.Difficulty, before, g, p)
		}
	}

	retrieval, storage := updateDualStrength(s.RetrievalStrength, s.StorageStrength, g, elapsedDays)

	return ReviewResult{
		State: State{
			Stability:         stability,
			Difficulty:        difficulty,
			RetrievalStrength: retrieval,
			StorageStrength:   storage,
			LastReview:        now,
			ReviewCount:       s.ReviewCount + 1,
		},
		RetrievabilityBefore: before,
		NextReviewDays:       stability,
	}
}

// CompositeScore combines retrievability and storage strength into a ranking
// score; retrievability dominates since it reflects immediate usefulness.
func CompositeScore(retrievability, storageStrength, importanceWeight float64) float64 {
	return (0.7*retrievability + 0.3*storageStrength) * importanceWeight
}
