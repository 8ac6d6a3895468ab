package market

import (
	"strings"
	"testing"
)

func universeFrom(seeds []Seed) []Instrument {
	out := make([]Instrument, 0, len(seeds))
	for i, s := range seeds {
		out = append(out, Instrument{ID: int64(i + 1), Symbol: s.Symbol, Name: s.Name, Price: s.Price, Volatility: s.Volatility})
	}
	return out
}

func TestCrashRange(t *testing.T) {
	cat := DefaultCatalog()
	universe := []Instrument{{ID: 1, Symbol: "AAPL", Price: 100}}

	low := PlanEvent(constRand(0), cat, EventCrash, universe)
	if got := low.Prices[1]; got != 90 {
		t.Fatalf("smallest crash got %v want 90", got)
	}
	high := PlanEvent(constRand(0.999999), cat, EventCrash, universe)
	if got := high.Prices[1]; got < 65 || got > 65.01 {
		t.Fatalf("largest crash got %v want ~65", got)
	}
	if low.Push == nil || low.Push.Sentiment != -0.8 || low.Push.VolatilityIndex != 0.8 {
		t.Fatalf("unexpected crash push %+v", low.Push)
	}
	if low.Message == "" || low.Notice.Severity == nil {
		t.Fatalf("crash notice incomplete: %+v", low.Notice)
	}
}

func TestCrashFloorsPenny(t *testing.T) {
	universe := []Instrument{{ID: 1, Symbol: "LYFT", Price: 0.01}}
	eff := PlanEvent(constRand(0.9), DefaultCatalog(), EventCrash, universe)
	if eff.Prices[1] != MinPrice {
		t.Fatalf("got %v want floor", eff.Prices[1])
	}
}

func TestSurgeRange(t *testing.T) {
	cat := DefaultCatalog()
	universe := universeFrom(cat.Starter)
	eff := PlanEvent(newSeqRand(0.5, 0, 0.2, 0.9), cat, EventSurge, universe)
	for _, in := range universe {
		got := eff.Prices[in.ID]
		if got < ClampPrice(in.Price*1.05) || got > ClampPrice(in.Price*1.30) {
			t.Fatalf("%s surge %v outside 5-30%% of %v", in.Symbol, got, in.Price)
		}
	}
	if eff.Push == nil || eff.Push.Sentiment != 0.8 || eff.Push.VolatilityIndex != 0.6 {
		t.Fatalf("unexpected surge push %+v", eff.Push)
	}
}

func TestIPOPicksUnlistedCandidate(t *testing.T) {
	cat := DefaultCatalog()
	universe := universeFrom(cat.Starter)
	// Unlisted pool entries are RBLX CRWD NET SQ SHOP.
	eff := PlanEvent(constRand(0.6), cat, EventIPO, universe)
	if eff.Listing == nil {
		t.Fatalf("expected a listing")
	}
	if eff.Listing.Symbol != "SQ" || !eff.Listing.IsIPO || eff.Listing.Price != 120 {
		t.Fatalf("unexpected listing %+v", eff.Listing)
	}
	if !strings.Contains(eff.Message, "SQ") {
		t.Fatalf("message %q should name the symbol", eff.Message)
	}
	if eff.Push != nil {
		t.Fatalf("ipo must not push market state")
	}
}

func TestIPONoopWhenPoolExhausted(t *testing.T) {
	cat := DefaultCatalog()
	universe := universeFrom(append(append([]Seed{}, cat.Starter...), cat.IPOPool...))
	eff := PlanEvent(constRand(0.3), cat, EventIPO, universe)
	if !eff.Noop() {
		t.Fatalf("expected no-op, got listing %+v", eff.Listing)
	}
}

func TestNewsTopicImpact(t *testing.T) {
	cat := DefaultCatalog()
	universe := universeFrom(cat.Starter)
	// topic draw 0 -> EARNINGS, impact draw 0 -> +5%.
	eff := PlanEvent(newSeqRand(0, 0, 0), cat, EventNews, universe)
	if eff.Notice.Topic != "EARNINGS" {
		t.Fatalf("topic got %s", eff.Notice.Topic)
	}
	if eff.Notice.Impact == nil || *eff.Notice.Impact != 0.05 {
		t.Fatalf("impact got %v", eff.Notice.Impact)
	}
	if len(eff.Prices) != 5 || len(eff.Notice.AffectedStocks) != 5 {
		t.Fatalf("expected 5 affected, got prices=%d notice=%v", len(eff.Prices), eff.Notice.AffectedStocks)
	}
	for _, in := range universe {
		if in.Symbol == "AAPL" && eff.Prices[in.ID] != 157.5 {
			t.Fatalf("AAPL got %v want 157.5", eff.Prices[in.ID])
		}
		if in.Symbol == "TSLA" {
			if _, ok := eff.Prices[in.ID]; ok {
				t.Fatalf("TSLA is not an earnings name")
			}
		}
	}
}

func TestNewsRegulationIsNegative(t *testing.T) {
	cat := DefaultCatalog()
	universe := universeFrom(cat.Starter)
	// 0.3 * 4 topics -> index 1, REGULATION.
	eff := PlanEvent(newSeqRand(0.3, 0.5, 0), cat, EventNews, universe)
	if eff.Notice.Topic != "REGULATION" {
		t.Fatalf("topic got %s", eff.Notice.Topic)
	}
	if *eff.Notice.Impact >= 0 {
		t.Fatalf("regulation impact should be negative, got %v", *eff.Notice.Impact)
	}
	for _, in := range universe {
		if p, ok := eff.Prices[in.ID]; ok && p >= in.Price {
			t.Fatalf("%s did not fall: %v -> %v", in.Symbol, in.Price, p)
		}
	}
}

func TestRotationAdjacentSectors(t *testing.T) {
	cat := DefaultCatalog()
	universe := universeFrom(cat.Starter)

	tests := []struct {
		draw   float64
		winner string
		loser  string
	}{
		{draw: 0, winner: "tech", loser: "consumer"},
		{draw: 0.5, winner: "consumer", loser: "growth"},
		{draw: 0.9, winner: "growth", loser: "tech"},
	}
	for _, tc := range tests {
		eff := PlanEvent(constRand(tc.draw), cat, EventRotation, universe)
		if eff.Notice.WinningSector != tc.winner || eff.Notice.LosingSector != tc.loser {
			t.Fatalf("draw %v got %s/%s want %s/%s", tc.draw, eff.Notice.WinningSector, eff.Notice.LosingSector, tc.winner, tc.loser)
		}
		for _, in := range universe {
			p, ok := eff.Prices[in.ID]
			if !ok {
				continue
			}
			if p == in.Price {
				t.Fatalf("%s unchanged by rotation", in.Symbol)
			}
		}
		if eff.Push != nil {
			t.Fatalf("rotation must not push market state")
		}
	}
}

func TestFlavorFillsPlaceholders(t *testing.T) {
	got := flavor(constRand(0), []string{"{winner} beats {loser}"}, map[string]string{"winner": "tech", "loser": "growth"})
	if got != "tech beats growth" {
		t.Fatalf("got %q", got)
	}
	if got := flavor(constRand(0), nil, nil); got == "" {
		t.Fatalf("empty pool must still produce a description")
	}
}
