package market

import (
	"math"
	"time"
)

const (
	VolatilityFloor = 0.3
	sentimentStep   = 0.01
	volatilityStep  = 0.005
)

// State is the market-wide feedback owned by the tick loop. It is never
// persisted; LastEventAt is rebuilt from the event log on startup.
type State struct {
	Sentiment       float64   `json:"sentiment"`
	VolatilityIndex float64   `json:"volatility_index"`
	LastEventAt     time.Time `json:"last_event_at"`
}

func NewState(lastEventAt time.Time) State {
	return State{VolatilityIndex: VolatilityFloor, LastEventAt: lastEventAt}
}

// Push sets both fields to an event's extremes.
func (s *State) Push(sentiment, volatilityIndex float64) {
	s.Sentiment = math.Max(-1, math.Min(1, sentiment))
	s.VolatilityIndex = math.Max(VolatilityFloor, volatilityIndex)
}

// Decay pulls sentiment toward zero and the volatility index toward its
// floor, one step each, without overshooting.
func (s *State) Decay() {
	switch {
	case s.Sentiment > 0:
		s.Sentiment = snap(math.Max(0, s.Sentiment-sentimentStep))
	case s.Sentiment < 0:
		s.Sentiment = snap(math.Min(0, s.Sentiment+sentimentStep))
	}
	if s.VolatilityIndex > VolatilityFloor {
		s.VolatilityIndex = snap(math.Max(VolatilityFloor, s.VolatilityIndex-volatilityStep))
	}
	if s.VolatilityIndex < VolatilityFloor {
		s.VolatilityIndex = VolatilityFloor
	}
}

// snap trims float drift so repeated steps land exactly on zero/floor.
func snap(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
