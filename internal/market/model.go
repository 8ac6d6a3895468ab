package market

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MinPrice is the hard floor applied after every price mutation.
	MinPrice = 0.01

	DefaultVolatility = 0.3
)

var (
	ErrInvalidSymbol      = errors.New("symbol must be 1-5 uppercase letters")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrDuplicateSymbol    = errors.New("symbol already listed")
	ErrTickInProgress     = errors.New("tick already in progress")
	ErrInvalidCatalog     = errors.New("invalid catalog")
)

var symbolRE = regexp.MustCompile(`^[A-Z]{1,5}$`)

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(strings.TrimSpace(symbol)) {
		return ErrInvalidSymbol
	}
	return nil
}

type EventType string

const (
	EventCrash    EventType = "CRASH"
	EventSurge    EventType = "SURGE"
	EventIPO      EventType = "IPO"
	EventNews     EventType = "NEWS"
	EventRotation EventType = "ROTATION"
)

// EventTypes is the fixed walk order used by the trigger selector.
var EventTypes = []EventType{EventCrash, EventSurge, EventIPO, EventNews, EventRotation}

func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

type Instrument struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Volatility float64   `json:"volatility"`
	IsIPO      bool      `json:"is_ipo"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PricePoint struct {
	InstrumentID int64     `json:"instrument_id"`
	Price        float64   `json:"price"`
	RecordedAt   time.Time `json:"recorded_at"`
}

type MarketEvent struct {
	ID           int64     `json:"id"`
	Type         EventType `json:"type"`
	Description  string    `json:"description"`
	InstrumentID *int64    `json:"instrument_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewInstrument is the input for CreateInstrument.
type NewInstrument struct {
	Symbol     string
	Name       string
	Price      float64
	Volatility float64
	IsIPO      bool
}

type NewMarketEvent struct {
	Type         EventType
	Description  string
	InstrumentID *int64
}

// Quote is one entry of a priceTick broadcast.
type Quote struct {
	InstrumentID int64   `json:"instrumentId"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
}

// EventNotice is the marketEvent broadcast payload. Only the fields of the
// event's kind are set.
type EventNotice struct {
	Type           EventType   `json:"type"`
	Message        string      `json:"message"`
	Severity       *float64    `json:"severity,omitempty"`
	Stock          *Instrument `json:"stock,omitempty"`
	AffectedStocks []string    `json:"affectedStocks,omitempty"`
	Impact         *float64    `json:"impact,omitempty"`
	Topic          string      `json:"topic,omitempty"`
	WinningSector  string      `json:"winningSector,omitempty"`
	LosingSector   string      `json:"losingSector,omitempty"`
}

const (
	TopicPriceTick   = "priceTick"
	TopicMarketEvent = "marketEvent"
)

// ClampPrice rounds to cents and applies the MinPrice floor.
func ClampPrice(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return MinPrice
	}
	rounded := decimal.NewFromFloat(p).Round(2).InexactFloat64()
	if rounded < MinPrice {
		return MinPrice
	}
	return rounded
}
