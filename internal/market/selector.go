package market

import (
	"math"
	"time"
)

// CooldownElapsed reports whether an event may fire at now.
func CooldownElapsed(lastEventAt, now time.Time, cooldown time.Duration) bool {
	return now.Sub(lastEventAt) >= cooldown
}

// EventWeights boosts event types that are under-represented in recent
// relative to their base share. A weight never drops below its base. With no
// history the weights equal the base.
func EventWeights(base map[EventType]float64, recent []MarketEvent) map[EventType]float64 {
	counts := make(map[EventType]int, len(EventTypes))
	for _, ev := range recent {
		counts[ev.Type]++
	}
	total := len(recent)

	weights := make(map[EventType]float64, len(EventTypes))
	for _, et := range EventTypes {
		b := base[et]
		var boost float64
		if total > 0 {
			if d := b - float64(counts[et])/float64(total); d > 0 {
				boost = d
			}
		}
		weights[et] = b + boost
	}
	return weights
}

// AdjustedProbabilities is EventWeights normalized to sum to 1.
func AdjustedProbabilities(base map[EventType]float64, recent []MarketEvent) map[EventType]float64 {
	weights := EventWeights(base, recent)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		uniform := 1 / float64(len(EventTypes))
		for _, et := range EventTypes {
			weights[et] = uniform
		}
		return weights
	}
	for et := range weights {
		weights[et] /= sum
	}
	return weights
}

// PickEventType walks EventTypes accumulating mass and returns the first
// type whose cumulative probability reaches draw. CRASH is the fallback for
// rounding leftovers.
func PickEventType(probs map[EventType]float64, draw float64) EventType {
	var cum float64
	for _, et := range EventTypes {
		cum += probs[et]
		if draw <= cum {
			return et
		}
	}
	return EventCrash
}
