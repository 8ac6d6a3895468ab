package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/market"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	defaultEventLimit   = 50
)

// Reader is the read side of the store the API serves from.
type Reader interface {
	ListInstruments(ctx context.Context) ([]market.Instrument, error)
	InstrumentBySymbol(ctx context.Context, symbol string) (market.Instrument, error)
	PriceHistory(ctx context.Context, instrumentID int64, limit int) ([]market.PricePoint, error)
	ListRecentMarketEvents(ctx context.Context, limit int) ([]market.MarketEvent, error)
	Leaderboard(ctx context.Context, limit int) ([]leaderboard.Entry, error)
}

// StateSource exposes the in-process engine state. Only set when the
// engine runs inside the API process.
type StateSource interface {
	Snapshot() market.State
}

type Server struct {
	store           Reader
	sockets         http.Handler
	engine          StateSource
	leaderboardSize int
	log             *slog.Logger
	mux             *chi.Mux
}

func New(store Reader, sockets http.Handler, engine StateSource, leaderboardSize int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if leaderboardSize < 1 {
		leaderboardSize = leaderboard.DefaultSize
	}
	s := &Server{
		store:           store,
		sockets:         sockets,
		engine:          engine,
		leaderboardSize: leaderboardSize,
		log:             logger,
		mux:             chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		// Sockets live outside the request timeout.
		if s.sockets != nil {
			r.Handle("/ws", s.sockets)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/stocks", s.handleStocksList)
			r.Get("/stocks/{symbol}", s.handleStockDetail)
			r.Get("/market-events", s.handleMarketEvents)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/market/state", s.handleMarketState)
		})
	})
}

func (s *Server) handleStocksList(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.store.ListInstruments(r.Context())
	if err != nil {
		s.log.Error("list instruments", "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stocks": orEmpty(stocks)})
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if err := market.ValidateSymbol(symbol); err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := queryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stock, err := s.store.InstrumentBySymbol(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	history, err := s.store.PriceHistory(r.Context(), stock.ID, limit)
	if err != nil {
		s.log.Error("price history", "symbol", symbol, "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": stock, "history": orEmpty(history)})
}

func (s *Server) handleMarketEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultEventLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.store.ListRecentMarketEvents(r.Context(), limit)
	if err != nil {
		s.log.Error("list market events", "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": orEmpty(events)})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Leaderboard(r.Context(), s.leaderboardSize)
	if err != nil {
		s.log.Error("leaderboard", "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": orEmpty(entries)})
}

func (s *Server) handleMarketState(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusNotFound, "market engine is not running in this process")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func queryLimit(r *http.Request, def, ceiling int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

// orEmpty keeps empty lists as [] rather than null on the wire.
func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrInstrumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
