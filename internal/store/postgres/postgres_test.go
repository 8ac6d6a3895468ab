package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jainyash0614/stock-price/internal/db"
	"github.com/jainyash0614/stock-price/internal/market"
)

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure is not a unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

// Runs against a disposable database named by STOCKSIM_TEST_DATABASE_URL.
func TestStoreAgainstPostgres(t *testing.T) {
	url := os.Getenv("STOCKSIM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STOCKSIM_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, url, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := New(pool)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat := market.DefaultCatalog()
	if err := s.ResetMarket(ctx, cat.ResetList); err != nil {
		t.Fatalf("reset: %v", err)
	}

	instruments, err := s.ListInstruments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(instruments) != len(cat.ResetList) {
		t.Fatalf("got %d instruments want %d", len(instruments), len(cat.ResetList))
	}

	if _, err := s.CreateInstrument(ctx, market.NewInstrument{Symbol: "AAPL", Name: "dup", Price: 1, Volatility: 0.3}); !errors.Is(err, market.ErrDuplicateSymbol) {
		t.Fatalf("expected ErrDuplicateSymbol, got %v", err)
	}

	if _, ok, err := s.LatestMarketEventTime(ctx); err != nil || ok {
		t.Fatalf("expected empty event log, ok=%v err=%v", ok, err)
	}
	if _, err := s.AppendMarketEvent(ctx, market.NewMarketEvent{Type: market.EventCrash, Description: "Panic selling hits the market!"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	recent, err := s.ListRecentMarketEvents(ctx, 10)
	if err != nil || len(recent) != 1 || recent[0].Type != market.EventCrash {
		t.Fatalf("recent events %+v err=%v", recent, err)
	}
}
