package market

import (
	"testing"
	"time"
)

func TestNextPrice(t *testing.T) {
	neutral := NewState(time.Time{})
	bullish := neutral
	bullish.Sentiment = 1

	tests := []struct {
		name  string
		u     float64
		old   float64
		vol   float64
		state State
		want  float64
	}{
		{name: "midpoint only drifts", u: 0.5, old: 100, vol: 0.3, state: neutral, want: 100.01},
		{name: "lowest draw", u: 0, old: 100, vol: 0.3, state: neutral, want: 99.26},
		{name: "sentiment pull", u: 0.5, old: 100, vol: 0.3, state: bullish, want: 100.11},
		{name: "zero volatility uses default", u: 0, old: 100, vol: 0, state: neutral, want: 99.26},
		{name: "floored", u: 0, old: 0.01, vol: 1, state: neutral, want: MinPrice},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextPrice(constRand(tc.u), tc.old, tc.vol, tc.state)
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestNextPriceHigherVolatilityIndexWidensBand(t *testing.T) {
	calm := NewState(time.Time{})
	stormy := calm
	stormy.VolatilityIndex = 0.8

	calmLo, calmHi := PriceBand(100, 0.5, calm)
	stormLo, stormHi := PriceBand(100, 0.5, stormy)
	if stormHi-stormLo <= calmHi-calmLo {
		t.Fatalf("expected wider band: calm=[%v,%v] stormy=[%v,%v]", calmLo, calmHi, stormLo, stormHi)
	}

	got := NextPrice(constRand(0), 100, 0.5, stormy)
	if got > calmLo {
		t.Fatalf("expected stormy low draw %v below calm floor %v", got, calmLo)
	}
}
