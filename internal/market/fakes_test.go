package market

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errFake = errors.New("fake store failure")

// seqRand replays vals in order and then keeps returning the last one.
type seqRand struct {
	mu   sync.Mutex
	vals []float64
	pos  int
}

func newSeqRand(vals ...float64) *seqRand {
	return &seqRand{vals: vals}
}

func (r *seqRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return 0.5
	}
	if r.pos >= len(r.vals) {
		return r.vals[len(r.vals)-1]
	}
	v := r.vals[r.pos]
	r.pos++
	return v
}

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

type memStore struct {
	mu          sync.Mutex
	nextID      int64
	instruments map[int64]Instrument
	points      []PricePoint
	events      []MarketEvent

	failUpdate      map[string]bool
	failRecent      bool
	failAppendEvent bool
	failList        bool
}

func newMemStore() *memStore {
	return &memStore{instruments: map[int64]Instrument{}, failUpdate: map[string]bool{}}
}

func (s *memStore) add(seeds ...Seed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seed := range seeds {
		s.nextID++
		s.instruments[s.nextID] = Instrument{
			ID:         s.nextID,
			Symbol:     seed.Symbol,
			Name:       seed.Name,
			Price:      seed.Price,
			Volatility: seed.Volatility,
		}
	}
}

func (s *memStore) ListInstruments(ctx context.Context) ([]Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errFake
	}
	out := make([]Instrument, 0, len(s.instruments))
	for _, in := range s.instruments {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) bySymbol(symbol string) (Instrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.instruments {
		if in.Symbol == symbol {
			return in, true
		}
	}
	return Instrument{}, false
}

func (s *memStore) UpdateInstrumentPrice(ctx context.Context, id int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instruments[id]
	if !ok {
		return ErrInstrumentNotFound
	}
	if s.failUpdate[in.Symbol] {
		return errFake
	}
	in.Price = price
	s.instruments[id] = in
	return nil
}

func (s *memStore) AppendPricePoint(ctx context.Context, instrumentID int64, price float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, PricePoint{InstrumentID: instrumentID, Price: price, RecordedAt: at})
	return nil
}

func (s *memStore) CreateInstrument(ctx context.Context, in NewInstrument) (Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.instruments {
		if existing.Symbol == in.Symbol {
			return Instrument{}, ErrDuplicateSymbol
		}
	}
	s.nextID++
	created := Instrument{
		ID:         s.nextID,
		Symbol:     in.Symbol,
		Name:       in.Name,
		Price:      in.Price,
		Volatility: in.Volatility,
		IsIPO:      in.IsIPO,
	}
	s.instruments[created.ID] = created
	return created, nil
}

func (s *memStore) AppendMarketEvent(ctx context.Context, ev NewMarketEvent) (MarketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppendEvent {
		return MarketEvent{}, errFake
	}
	out := MarketEvent{
		ID:           int64(len(s.events) + 1),
		Type:         ev.Type,
		Description:  ev.Description,
		InstrumentID: ev.InstrumentID,
		CreatedAt:    time.Now(),
	}
	s.events = append(s.events, out)
	return out, nil
}

func (s *memStore) ListRecentMarketEvents(ctx context.Context, limit int) ([]MarketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecent {
		return nil, errFake
	}
	out := make([]MarketEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *memStore) LatestMarketEventTime(ctx context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return time.Time{}, false, nil
	}
	return s.events[len(s.events)-1].CreatedAt, true, nil
}

func (s *memStore) SeedInstruments(ctx context.Context, seeds []Seed) (int, error) {
	s.add(seeds...)
	return len(seeds), nil
}

type published struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

func (p *recordingPublisher) last(topic string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].topic == topic {
			return p.msgs[i].payload, true
		}
	}
	return nil, false
}
