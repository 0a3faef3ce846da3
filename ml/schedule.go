package ml

const (
	rateDecay  = 0.99
	rateGrowth = 1.01
)

// AdjustLearnRate shrinks the rate by 1% when the error got worse and grows it
// by 1% otherwise. It applies no bounds.
func AdjustLearnRate(rate float64, worsened bool) float64 {
	if worsened {
		return rate * rateDecay
	}
	return rate * rateGrowth
}

// Schedule is the adaptive learning-rate policy used at checkpoints.
// A zero bound leaves that side unclamped.
type Schedule struct {
	MinRate float64
	MaxRate float64
}

// Next adjusts rate and clamps the result into [MinRate, MaxRate].
func (s Schedule) Next(rate float64, worsened bool) float64 {
	next := AdjustLearnRate(rate, worsened)
	if s.MinRate > 0 && next < s.MinRate {
		next = s.MinRate
	}
	if s.MaxRate > 0 && next > s.MaxRate {
		next = s.MaxRate
	}
	return next
}
