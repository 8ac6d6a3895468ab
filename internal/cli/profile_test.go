package cli

import (
	"errors"
	"testing"

	"github.com/jainyash0614/stock-price/internal/market"
)

func TestProfileRoundTripInHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	empty, err := LoadProfile()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if empty.APIBaseURL != "" || len(empty.Watchlist) != 0 {
		t.Fatalf("expected empty profile, got %+v", empty)
	}

	p := Profile{APIBaseURL: "http://stocks.local:8080"}
	if err := p.Watch("tsla", "AAPL", "TSLA"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := SaveProfile(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadProfile()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.APIBaseURL != p.APIBaseURL || len(got.Watchlist) != 2 || got.Watchlist[0] != "AAPL" || got.Watchlist[1] != "TSLA" {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestProfileWatchlist(t *testing.T) {
	var p Profile
	if !p.Watching("NFLX") {
		t.Fatalf("empty watchlist should show every symbol")
	}
	if err := p.Watch("toolong"); !errors.Is(err, market.ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
	_ = p.Watch("AMD", "NVDA")
	p.Unwatch("amd")
	if p.Watching("AMD") || !p.Watching("NVDA") {
		t.Fatalf("unexpected watchlist %v", p.Watchlist)
	}
}
