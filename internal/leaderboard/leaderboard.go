package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Topic is the broadcast topic for a refreshed ranking.
const Topic = "leaderboard"

const DefaultSize = 10

type Holding struct {
	InstrumentID int64
	Quantity     int64
	Price        float64
}

type Portfolio struct {
	UserID   int64
	Username string
	Balance  float64
	Holdings []Holding
}

type Entry struct {
	UserID     int64   `json:"userId"`
	Username   string  `json:"username"`
	TotalValue float64 `json:"totalValue"`
	Rank       int     `json:"rank"`
}

type Store interface {
	ListPortfolios(ctx context.Context) ([]Portfolio, error)
	ReplaceLeaderboard(ctx context.Context, entries []Entry) error
	Leaderboard(ctx context.Context, limit int) ([]Entry, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type Service struct {
	store Store
	pub   Publisher
	size  int
	log   *slog.Logger
}

func NewService(store Store, pub Publisher, size int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Service{store: store, pub: pub, size: size, log: logger}
}

// Value returns balance plus the market value of every holding, in cents.
func Value(p Portfolio) decimal.Decimal {
	total := decimal.NewFromFloat(p.Balance)
	for _, h := range p.Holdings {
		total = total.Add(decimal.NewFromFloat(h.Price).Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total.Round(2)
}

// Rank orders portfolios by value, ties broken by username, and keeps the
// first size entries.
func Rank(portfolios []Portfolio, size int) []Entry {
	type scored struct {
		p     Portfolio
		value decimal.Decimal
	}
	all := make([]scored, 0, len(portfolios))
	for _, p := range portfolios {
		all = append(all, scored{p: p, value: Value(p)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if c := all[i].value.Cmp(all[j].value); c != 0 {
			return c > 0
		}
		return all[i].p.Username < all[j].p.Username
	})
	if size > 0 && len(all) > size {
		all = all[:size]
	}
	out := make([]Entry, 0, len(all))
	for i, s := range all {
		out = append(out, Entry{
			UserID:     s.p.UserID,
			Username:   s.p.Username,
			TotalValue: s.value.InexactFloat64(),
			Rank:       i + 1,
		})
	}
	return out
}

// Refresh recomputes the ranking from current prices, stores it and
// broadcasts it.
func (s *Service) Refresh(ctx context.Context) ([]Entry, error) {
	started := time.Now()
	portfolios, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	entries := Rank(portfolios, s.size)
	if err := s.store.ReplaceLeaderboard(ctx, entries); err != nil {
		return nil, fmt.Errorf("replace leaderboard: %w", err)
	}
	if err := s.pub.Publish(ctx, Topic, entries); err != nil {
		s.log.Warn("leaderboard broadcast failed", "err", err)
	}
	s.log.Debug("leaderboard refreshed", "entries", len(entries), "took", time.Since(started).String())
	return entries, nil
}

// RunRefresh is the scheduler entry point.
func (s *Service) RunRefresh(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Error("leaderboard refresh failed", "err", err)
	}
}

// Current returns the stored ranking.
func (s *Service) Current(ctx context.Context) ([]Entry, error) {
	return s.store.Leaderboard(ctx, s.size)
}
