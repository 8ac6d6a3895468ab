package market

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is a preset listing: the starter universe and the IPO pool share it.
type Seed struct {
	Symbol     string  `yaml:"symbol" json:"symbol"`
	Name       string  `yaml:"name" json:"name"`
	Price      float64 `yaml:"price" json:"price"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
}

// NewsTopic moves a fixed symbol list by an impact drawn from [ImpactMin, ImpactMax).
type NewsTopic struct {
	Name      string   `yaml:"name"`
	Headlines []string `yaml:"headlines"`
	Symbols   []string `yaml:"symbols"`
	ImpactMin float64  `yaml:"impact_min"`
	ImpactMax float64  `yaml:"impact_max"`
}

// Sector order matters: a rotation's loser is the entry after the winner.
type Sector struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

// Flavor holds the description pools. IPO lines may use {symbol}, rotation
// lines {winner} and {loser}.
type Flavor struct {
	Crash    []string `yaml:"crash"`
	Surge    []string `yaml:"surge"`
	IPO      []string `yaml:"ipo"`
	Rotation []string `yaml:"rotation"`
}

type Catalog struct {
	Starter       []Seed                `yaml:"starter"`
	ResetList     []Seed                `yaml:"reset"`
	IPOPool       []Seed                `yaml:"ipo_pool"`
	NewsTopics    []NewsTopic           `yaml:"news_topics"`
	Sectors       []Sector              `yaml:"sectors"`
	Flavor        Flavor                `yaml:"flavor"`
	Probabilities map[EventType]float64 `yaml:"probabilities"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Starter: []Seed{
			{Symbol: "AAPL", Name: "Apple Inc.", Price: 150, Volatility: 0.25},
			{Symbol: "GOOG", Name: "Alphabet Inc.", Price: 2800, Volatility: 0.3},
			{Symbol: "TSLA", Name: "Tesla Inc.", Price: 250, Volatility: 0.5},
			{Symbol: "AMZN", Name: "Amazon.com Inc.", Price: 3200, Volatility: 0.35},
			{Symbol: "MSFT", Name: "Microsoft Corp.", Price: 300, Volatility: 0.25},
			{Symbol: "META", Name: "Meta Platforms", Price: 350, Volatility: 0.4},
			{Symbol: "NVDA", Name: "NVIDIA Corp.", Price: 450, Volatility: 0.45},
			{Symbol: "NFLX", Name: "Netflix Inc.", Price: 180, Volatility: 0.4},
			{Symbol: "LYFT", Name: "Lyft Inc.", Price: 12, Volatility: 0.6},
			{Symbol: "ABNB", Name: "Airbnb Inc.", Price: 140, Volatility: 0.4},
			{Symbol: "ZM", Name: "Zoom Video", Price: 65, Volatility: 0.5},
			{Symbol: "DIS", Name: "Walt Disney Co.", Price: 85, Volatility: 0.3},
			{Symbol: "DASH", Name: "DoorDash Inc.", Price: 45, Volatility: 0.5},
			{Symbol: "SNOW", Name: "Snowflake Inc.", Price: 180, Volatility: 0.5},
			{Symbol: "COIN", Name: "Coinbase Global", Price: 120, Volatility: 0.6},
			{Symbol: "PLTR", Name: "Palantir Technologies", Price: 25, Volatility: 0.6},
			{Symbol: "PINS", Name: "Pinterest Inc.", Price: 30, Volatility: 0.4},
			{Symbol: "SPOT", Name: "Spotify Technology", Price: 200, Volatility: 0.4},
			{Symbol: "UBER", Name: "Uber Technologies", Price: 40, Volatility: 0.5},
			{Symbol: "BABA", Name: "Alibaba Group", Price: 80, Volatility: 0.4},
		},
		ResetList: []Seed{
			{Symbol: "AAPL", Name: "Apple Inc.", Price: 150, Volatility: 0.25},
			{Symbol: "GOOG", Name: "Alphabet Inc.", Price: 2800, Volatility: 0.3},
			{Symbol: "TSLA", Name: "Tesla Inc.", Price: 700, Volatility: 0.5},
			{Symbol: "AMZN", Name: "Amazon.com Inc.", Price: 3400, Volatility: 0.35},
			{Symbol: "MSFT", Name: "Microsoft Corp.", Price: 300, Volatility: 0.25},
			{Symbol: "META", Name: "Meta Platforms", Price: 350, Volatility: 0.4},
			{Symbol: "NVDA", Name: "NVIDIA Corp.", Price: 800, Volatility: 0.45},
			{Symbol: "NFLX", Name: "Netflix Inc.", Price: 500, Volatility: 0.4},
			{Symbol: "BABA", Name: "Alibaba Group", Price: 90, Volatility: 0.4},
			{Symbol: "DIS", Name: "Walt Disney Co.", Price: 100, Volatility: 0.3},
		},
		IPOPool: []Seed{
			{Symbol: "ABNB", Name: "Airbnb Inc.", Price: 150, Volatility: 0.4},
			{Symbol: "SNOW", Name: "Snowflake Inc.", Price: 250, Volatility: 0.5},
			{Symbol: "UBER", Name: "Uber Technologies", Price: 60, Volatility: 0.4},
			{Symbol: "COIN", Name: "Coinbase Global", Price: 250, Volatility: 0.6},
			{Symbol: "LYFT", Name: "Lyft Inc.", Price: 50, Volatility: 0.4},
			{Symbol: "ZM", Name: "Zoom Video", Price: 120, Volatility: 0.5},
			{Symbol: "SPOT", Name: "Spotify Technology", Price: 140, Volatility: 0.4},
			{Symbol: "PINS", Name: "Pinterest Inc.", Price: 70, Volatility: 0.4},
			{Symbol: "DASH", Name: "DoorDash Inc.", Price: 130, Volatility: 0.5},
			{Symbol: "PLTR", Name: "Palantir Technologies", Price: 25, Volatility: 0.6},
			{Symbol: "RBLX", Name: "Roblox Corp.", Price: 80, Volatility: 0.5},
			{Symbol: "CRWD", Name: "CrowdStrike Holdings", Price: 200, Volatility: 0.5},
			{Symbol: "NET", Name: "Cloudflare Inc.", Price: 100, Volatility: 0.5},
			{Symbol: "SQ", Name: "Square Inc.", Price: 120, Volatility: 0.4},
			{Symbol: "SHOP", Name: "Shopify Inc.", Price: 150, Volatility: 0.4},
		},
		NewsTopics: []NewsTopic{
			{
				Name:      "EARNINGS",
				Headlines: []string{"Tech earnings beat expectations!", "Blowout quarter for big tech!"},
				Symbols:   []string{"AAPL", "GOOG", "MSFT", "META", "NVDA"},
				ImpactMin: 0.05,
				ImpactMax: 0.15,
			},
			{
				Name:      "REGULATION",
				Headlines: []string{"New regulations hit tech sector!", "Antitrust probe widens across big tech!"},
				Symbols:   []string{"AAPL", "GOOG", "META", "AMZN"},
				ImpactMin: -0.11,
				ImpactMax: -0.03,
			},
			{
				Name:      "INNOVATION",
				Headlines: []string{"Breakthrough in AI technology!", "AI chip demand explodes!"},
				Symbols:   []string{"NVDA", "GOOG", "MSFT", "PLTR"},
				ImpactMin: 0.08,
				ImpactMax: 0.20,
			},
			{
				Name:      "ECONOMIC",
				Headlines: []string{"Interest rates affect market sentiment!", "Fed decision keeps traders guessing!"},
				Symbols:   []string{"AAPL", "GOOG", "MSFT", "AMZN", "TSLA"},
				ImpactMin: -0.05,
				ImpactMax: 0.05,
			},
		},
		Sectors: []Sector{
			{Name: "tech", Symbols: []string{"AAPL", "GOOG", "MSFT", "META", "NVDA", "TSLA"}},
			{Name: "consumer", Symbols: []string{"AMZN", "NFLX", "DIS", "BABA"}},
			{Name: "growth", Symbols: []string{"SNOW", "PLTR", "COIN", "DASH", "ABNB"}},
		},
		Flavor: Flavor{
			Crash: []string{
				"Market crash! Stocks plummeted across the board.",
				"Panic selling hits the market!",
				"Black Monday strikes again!",
				"Market correction turns into crash!",
				"Investors flee as market tumbles!",
			},
			Surge: []string{
				"Market rally! Stocks surge across the board.",
				"Bull market momentum continues!",
				"Investors celebrate as market soars!",
				"Green day for all major indices!",
				"Market euphoria drives prices higher!",
			},
			IPO: []string{
				"Hot IPO: {symbol} debuts on the market!",
				"New listing: {symbol} goes public!",
				"IPO frenzy: {symbol} hits the market!",
				"Investors rush to buy {symbol} IPO!",
				"{symbol} makes its market debut!",
			},
			Rotation: []string{
				"Sector rotation: {winner} stocks surge while {loser} falls!",
				"Investors rotate from {loser} to {winner}!",
				"{winner} sector leads market gains!",
				"Money flows from {loser} to {winner} stocks!",
			},
		},
		Probabilities: map[EventType]float64{
			EventCrash:    0.25,
			EventSurge:    0.25,
			EventIPO:      0.20,
			EventNews:     0.15,
			EventRotation: 0.15,
		},
	}
}

// LoadCatalog reads a YAML override. Sections missing from the file keep
// their built-in values.
func LoadCatalog(path string) (Catalog, error) {
	cat := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if len(override.Starter) > 0 {
		cat.Starter = override.Starter
	}
	if len(override.ResetList) > 0 {
		cat.ResetList = override.ResetList
	}
	if len(override.IPOPool) > 0 {
		cat.IPOPool = override.IPOPool
	}
	if len(override.NewsTopics) > 0 {
		cat.NewsTopics = override.NewsTopics
	}
	if len(override.Sectors) > 0 {
		cat.Sectors = override.Sectors
	}
	if len(override.Flavor.Crash) > 0 {
		cat.Flavor.Crash = override.Flavor.Crash
	}
	if len(override.Flavor.Surge) > 0 {
		cat.Flavor.Surge = override.Flavor.Surge
	}
	if len(override.Flavor.IPO) > 0 {
		cat.Flavor.IPO = override.Flavor.IPO
	}
	if len(override.Flavor.Rotation) > 0 {
		cat.Flavor.Rotation = override.Flavor.Rotation
	}
	if len(override.Probabilities) > 0 {
		cat.Probabilities = override.Probabilities
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func (c Catalog) Validate() error {
	for _, list := range [][]Seed{c.Starter, c.ResetList, c.IPOPool} {
		for _, s := range list {
			if err := ValidateSymbol(s.Symbol); err != nil {
				return fmt.Errorf("%w: %q: %v", ErrInvalidCatalog, s.Symbol, err)
			}
			if s.Price < MinPrice {
				return fmt.Errorf("%w: %s price %.4f below floor", ErrInvalidCatalog, s.Symbol, s.Price)
			}
			if s.Volatility < 0 || s.Volatility > 1 {
				return fmt.Errorf("%w: %s volatility must be within 0..1", ErrInvalidCatalog, s.Symbol)
			}
		}
	}
	for _, et := range EventTypes {
		if c.Probabilities[et] <= 0 {
			return fmt.Errorf("%w: probability for %s must be > 0", ErrInvalidCatalog, et)
		}
	}
	for et := range c.Probabilities {
		if !et.Valid() {
			return fmt.Errorf("%w: unknown event type %q", ErrInvalidCatalog, et)
		}
	}
	if len(c.NewsTopics) == 0 {
		return fmt.Errorf("%w: at least one news topic is required", ErrInvalidCatalog)
	}
	for _, t := range c.NewsTopics {
		if len(t.Headlines) == 0 {
			return fmt.Errorf("%w: news topic %s has no headlines", ErrInvalidCatalog, t.Name)
		}
		if t.ImpactMax < t.ImpactMin {
			return fmt.Errorf("%w: news topic %s impact range is inverted", ErrInvalidCatalog, t.Name)
		}
	}
	if len(c.Sectors) < 2 {
		return fmt.Errorf("%w: rotation needs at least two sectors", ErrInvalidCatalog)
	}
	if len(c.Flavor.Crash) == 0 || len(c.Flavor.Surge) == 0 || len(c.Flavor.IPO) == 0 || len(c.Flavor.Rotation) == 0 {
		return fmt.Errorf("%w: every flavor pool needs at least one line", ErrInvalidCatalog)
	}
	return nil
}
