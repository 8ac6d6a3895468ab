package market

import (
	"strings"
)

const (
	crashSentiment  = -0.8
	crashVolatility = 0.8
	surgeSentiment  = 0.8
	surgeVolatility = 0.6
)

// Effect is what an applier decided to do. The engine persists it: price
// updates first, then the listing, then the event row, then the state push.
type Effect struct {
	Type    EventType
	Message string
	// Prices maps instrument id to its new price.
	Prices  map[int64]float64
	Listing *NewInstrument
	Notice  EventNotice
	// Push is nil for kinds that leave sentiment and volatility alone.
	Push *StatePush
}

type StatePush struct {
	Sentiment       float64
	VolatilityIndex float64
}

// Noop reports an IPO with nothing left to list.
func (e Effect) Noop() bool {
	return e.Type == EventIPO && e.Listing == nil
}

type applier func(r Rand, cat Catalog, universe []Instrument) Effect

var appliers = map[EventType]applier{
	EventCrash:    applyCrash,
	EventSurge:    applySurge,
	EventIPO:      applyIPO,
	EventNews:     applyNews,
	EventRotation: applyRotation,
}

// PlanEvent runs the applier for et against universe without touching any
// store. Unknown types fall back to CRASH.
func PlanEvent(r Rand, cat Catalog, et EventType, universe []Instrument) Effect {
	fn, ok := appliers[et]
	if !ok {
		fn = applyCrash
	}
	return fn(r, cat, universe)
}

func applyCrash(r Rand, cat Catalog, universe []Instrument) Effect {
	severity := between(r, 0.10, 0.25)
	msg := flavor(r, cat.Flavor.Crash, nil)
	prices := make(map[int64]float64, len(universe))
	for _, in := range universe {
		drop := severity + r.Float64()*0.10
		prices[in.ID] = ClampPrice(in.Price * (1 - drop))
	}
	return Effect{
		Type:    EventCrash,
		Message: msg,
		Prices:  prices,
		Notice:  EventNotice{Type: EventCrash, Message: msg, Severity: &severity},
		Push:    &StatePush{Sentiment: crashSentiment, VolatilityIndex: crashVolatility},
	}
}

func applySurge(r Rand, cat Catalog, universe []Instrument) Effect {
	severity := between(r, 0.05, 0.20)
	msg := flavor(r, cat.Flavor.Surge, nil)
	prices := make(map[int64]float64, len(universe))
	for _, in := range universe {
		gain := severity + r.Float64()*0.10
		prices[in.ID] = ClampPrice(in.Price * (1 + gain))
	}
	return Effect{
		Type:    EventSurge,
		Message: msg,
		Prices:  prices,
		Notice:  EventNotice{Type: EventSurge, Message: msg, Severity: &severity},
		Push:    &StatePush{Sentiment: surgeSentiment, VolatilityIndex: surgeVolatility},
	}
}

func applyIPO(r Rand, cat Catalog, universe []Instrument) Effect {
	listed := make(map[string]struct{}, len(universe))
	for _, in := range universe {
		listed[in.Symbol] = struct{}{}
	}
	var candidates []Seed
	for _, s := range cat.IPOPool {
		if _, ok := listed[s.Symbol]; !ok {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Effect{Type: EventIPO}
	}
	seed := candidates[pick(r, len(candidates))]
	msg := flavor(r, cat.Flavor.IPO, map[string]string{"symbol": seed.Symbol})
	vol := seed.Volatility
	if vol <= 0 {
		vol = DefaultVolatility
	}
	return Effect{
		Type:    EventIPO,
		Message: msg,
		Listing: &NewInstrument{
			Symbol:     seed.Symbol,
			Name:       seed.Name,
			Price:      ClampPrice(seed.Price),
			Volatility: vol,
			IsIPO:      true,
		},
		Notice: EventNotice{Type: EventIPO, Message: msg},
	}
}

func applyNews(r Rand, cat Catalog, universe []Instrument) Effect {
	topic := cat.NewsTopics[pick(r, len(cat.NewsTopics))]
	impact := between(r, topic.ImpactMin, topic.ImpactMax)
	msg := flavor(r, topic.Headlines, nil)

	bySymbol := indexBySymbol(universe)
	prices := make(map[int64]float64, len(topic.Symbols))
	affected := make([]string, 0, len(topic.Symbols))
	for _, sym := range topic.Symbols {
		in, ok := bySymbol[sym]
		if !ok {
			continue
		}
		prices[in.ID] = ClampPrice(in.Price * (1 + impact))
		affected = append(affected, sym)
	}
	return Effect{
		Type:    EventNews,
		Message: msg,
		Prices:  prices,
		Notice: EventNotice{
			Type:           EventNews,
			Message:        msg,
			AffectedStocks: affected,
			Impact:         &impact,
			Topic:          topic.Name,
		},
	}
}

func applyRotation(r Rand, cat Catalog, universe []Instrument) Effect {
	wi := pick(r, len(cat.Sectors))
	winner := cat.Sectors[wi]
	loser := cat.Sectors[(wi+1)%len(cat.Sectors)]
	msg := flavor(r, cat.Flavor.Rotation, map[string]string{"winner": winner.Name, "loser": loser.Name})

	bySymbol := indexBySymbol(universe)
	prices := make(map[int64]float64, len(winner.Symbols)+len(loser.Symbols))
	for _, sym := range winner.Symbols {
		if in, ok := bySymbol[sym]; ok {
			gain := 0.03 + r.Float64()*0.07
			prices[in.ID] = ClampPrice(in.Price * (1 + gain))
		}
	}
	for _, sym := range loser.Symbols {
		if in, ok := bySymbol[sym]; ok {
			drop := 0.02 + r.Float64()*0.06
			prices[in.ID] = ClampPrice(in.Price * (1 - drop))
		}
	}
	return Effect{
		Type:    EventRotation,
		Message: msg,
		Prices:  prices,
		Notice: EventNotice{
			Type:          EventRotation,
			Message:       msg,
			WinningSector: winner.Name,
			LosingSector:  loser.Name,
		},
	}
}

func indexBySymbol(universe []Instrument) map[string]Instrument {
	out := make(map[string]Instrument, len(universe))
	for _, in := range universe {
		out[in.Symbol] = in
	}
	return out
}

// flavor samples one line from pool and fills {key} placeholders.
func flavor(r Rand, pool []string, vars map[string]string) string {
	if len(pool) == 0 {
		return "Market event"
	}
	line := pool[pick(r, len(pool))]
	for k, v := range vars {
		line = strings.ReplaceAll(line, "{"+k+"}", v)
	}
	if strings.TrimSpace(line) == "" {
		return "Market event"
	}
	return line
}
