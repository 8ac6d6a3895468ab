package leaderboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeStore struct {
	portfolios []Portfolio
	stored     []Entry
	listErr    error
}

func (f *fakeStore) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	return f.portfolios, f.listErr
}

func (f *fakeStore) ReplaceLeaderboard(ctx context.Context, entries []Entry) error {
	f.stored = entries
	return nil
}

func (f *fakeStore) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if len(f.stored) > limit {
		return f.stored[:limit], nil
	}
	return f.stored, nil
}

type fakePublisher struct {
	topic   string
	payload any
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload any) error {
	f.topic = topic
	f.payload = payload
	return nil
}

func TestValue(t *testing.T) {
	p := Portfolio{
		Balance: 1000.10,
		Holdings: []Holding{
			{InstrumentID: 1, Quantity: 3, Price: 150.33},
			{InstrumentID: 2, Quantity: 10, Price: 0.01},
		},
	}
	got := Value(p).String()
	if got != "1451.19" {
		t.Fatalf("got %s want 1451.19", got)
	}
}

func TestRankOrdersAndTruncates(t *testing.T) {
	portfolios := []Portfolio{
		{UserID: 1, Username: "carol", Balance: 500},
		{UserID: 2, Username: "alice", Balance: 900},
		{UserID: 3, Username: "bob", Balance: 900},
		{UserID: 4, Username: "dave", Balance: 100, Holdings: []Holding{{Quantity: 10, Price: 100}}},
	}
	got := Rank(portfolios, 3)
	want := []string{"dave", "alice", "bob"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Username != name || got[i].Rank != i+1 {
			t.Fatalf("entry %d got %+v want %s rank %d", i, got[i], name, i+1)
		}
	}
	if got[0].TotalValue != 1100 {
		t.Fatalf("dave value got %v want 1100", got[0].TotalValue)
	}
}

func TestRefreshStoresAndBroadcasts(t *testing.T) {
	store := &fakeStore{portfolios: []Portfolio{
		{UserID: 1, Username: "alice", Balance: 10000},
		{UserID: 2, Username: "bob", Balance: 12000},
	}}
	pub := &fakePublisher{}
	svc := NewService(store, pub, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	entries, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(entries) != 2 || entries[0].Username != "bob" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if len(store.stored) != 2 {
		t.Fatalf("expected leaderboard stored, got %+v", store.stored)
	}
	if pub.topic != Topic {
		t.Fatalf("expected %s broadcast, got %q", Topic, pub.topic)
	}
}

func TestRefreshListFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	svc := NewService(store, &fakePublisher{}, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := svc.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if store.stored != nil {
		t.Fatalf("leaderboard must not be replaced on failure")
	}
}
