package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/market"
)

type Store struct {
	db *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// Migrate creates the tables the simulation reads and writes. Users and
// holdings belong to the trading API; they are created here so a fresh
// database can run the leaderboard job.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id          BIGSERIAL PRIMARY KEY,
			symbol      TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			price       NUMERIC(18,2) NOT NULL CHECK (price >= 0.01),
			volatility  DOUBLE PRECISION NOT NULL DEFAULT 0.3,
			is_ipo      BOOLEAN NOT NULL DEFAULT false,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS price_points (
			id            BIGSERIAL PRIMARY KEY,
			instrument_id BIGINT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
			price         NUMERIC(18,2) NOT NULL,
			recorded_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_points_instrument ON price_points(instrument_id, recorded_at DESC)`,
		`CREATE TABLE IF NOT EXISTS market_events (
			id            BIGSERIAL PRIMARY KEY,
			type          TEXT NOT NULL,
			description   TEXT NOT NULL,
			instrument_id BIGINT REFERENCES instruments(id) ON DELETE SET NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_events_created ON market_events(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
			id       BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			balance  NUMERIC(18,2) NOT NULL DEFAULT 10000
		)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			instrument_id BIGINT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
			quantity      BIGINT NOT NULL CHECK (quantity >= 0),
			PRIMARY KEY (user_id, instrument_id)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id     BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			rank        INT NOT NULL,
			total_value NUMERIC(18,2) NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const instrumentColumns = `id, symbol, name, price::float8, volatility, is_ipo, created_at, updated_at`

func scanInstrument(row pgx.Row) (market.Instrument, error) {
	var in market.Instrument
	err := row.Scan(&in.ID, &in.Symbol, &in.Name, &in.Price, &in.Volatility, &in.IsIPO, &in.CreatedAt, &in.UpdatedAt)
	return in, err
}

func (s *Store) ListInstruments(ctx context.Context) ([]market.Instrument, error) {
	rows, err := s.db.Query(ctx, `SELECT `+instrumentColumns+` FROM instruments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) InstrumentBySymbol(ctx context.Context, symbol string) (market.Instrument, error) {
	in, err := scanInstrument(s.db.QueryRow(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE symbol = $1`, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Instrument{}, market.ErrInstrumentNotFound
	}
	return in, err
}

func (s *Store) UpdateInstrumentPrice(ctx context.Context, id int64, price float64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE instruments
		SET price = $1, updated_at = now()
		WHERE id = $2
	`, price, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return market.ErrInstrumentNotFound
	}
	return nil
}

func (s *Store) AppendPricePoint(ctx context.Context, instrumentID int64, price float64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO price_points (instrument_id, price, recorded_at)
		VALUES ($1, $2, $3)
	`, instrumentID, price, at)
	return err
}

func (s *Store) PriceHistory(ctx context.Context, instrumentID int64, limit int) ([]market.PricePoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT instrument_id, price::float8, recorded_at
		FROM price_points
		WHERE instrument_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`, instrumentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.PricePoint
	for rows.Next() {
		var p market.PricePoint
		if err := rows.Scan(&p.InstrumentID, &p.Price, &p.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateInstrument(ctx context.Context, in market.NewInstrument) (market.Instrument, error) {
	created, err := scanInstrument(s.db.QueryRow(ctx, `
		INSERT INTO instruments (symbol, name, price, volatility, is_ipo)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+instrumentColumns,
		in.Symbol, in.Name, in.Price, in.Volatility, in.IsIPO))
	if isUniqueViolation(err) {
		return market.Instrument{}, market.ErrDuplicateSymbol
	}
	return created, err
}

func (s *Store) SeedInstruments(ctx context.Context, seeds []market.Seed) (int, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, seed := range seeds {
		tag, err := tx.Exec(ctx, `
			INSERT INTO instruments (symbol, name, price, volatility)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol) DO NOTHING
		`, seed.Symbol, seed.Name, seed.Price, seed.Volatility)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanEvent(row pgx.Row) (market.MarketEvent, error) {
	var ev market.MarketEvent
	var typ string
	err := row.Scan(&ev.ID, &typ, &ev.Description, &ev.InstrumentID, &ev.CreatedAt)
	ev.Type = market.EventType(typ)
	return ev, err
}

func (s *Store) AppendMarketEvent(ctx context.Context, ev market.NewMarketEvent) (market.MarketEvent, error) {
	return scanEvent(s.db.QueryRow(ctx, `
		INSERT INTO market_events (type, description, instrument_id)
		VALUES ($1, $2, $3)
		RETURNING id, type, description, instrument_id, created_at
	`, string(ev.Type), ev.Description, ev.InstrumentID))
}

func (s *Store) ListRecentMarketEvents(ctx context.Context, limit int) ([]market.MarketEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, description, instrument_id, created_at
		FROM market_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.MarketEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) LatestMarketEventTime(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	if err := s.db.QueryRow(ctx, `SELECT max(created_at) FROM market_events`).Scan(&latest); err != nil {
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}

// ResetMarket clears the event log, drops every instrument not in keep along
// with its history and holdings, and upserts keep at its listed prices.
func (s *Store) ResetMarket(ctx context.Context, keep []market.Seed) error {
	symbols := make([]string, 0, len(keep))
	for _, seed := range keep {
		symbols = append(symbols, seed.Symbol)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM market_events`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM holdings
		WHERE instrument_id IN (SELECT id FROM instruments WHERE NOT (symbol = ANY($1)))
	`, symbols); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM price_points
		WHERE instrument_id IN (SELECT id FROM instruments WHERE NOT (symbol = ANY($1)))
	`, symbols); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM instruments WHERE NOT (symbol = ANY($1))`, symbols); err != nil {
		return err
	}
	for _, seed := range keep {
		if _, err := tx.Exec(ctx, `
			INSERT INTO instruments (symbol, name, price, volatility)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol) DO UPDATE
			SET name = EXCLUDED.name, price = EXCLUDED.price, is_ipo = false, updated_at = now()
		`, seed.Symbol, seed.Name, seed.Price, seed.Volatility); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListPortfolios(ctx context.Context) ([]leaderboard.Portfolio, error) {
	rows, err := s.db.Query(ctx, `SELECT id, username, balance::float8 FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []leaderboard.Portfolio
	index := map[int64]int{}
	for rows.Next() {
		var p leaderboard.Portfolio
		if err := rows.Scan(&p.UserID, &p.Username, &p.Balance); err != nil {
			rows.Close()
			return nil, err
		}
		index[p.UserID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `
		SELECT h.user_id, h.instrument_id, h.quantity, i.price::float8
		FROM holdings h
		JOIN instruments i ON i.id = h.instrument_id
		WHERE h.quantity > 0
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		var h leaderboard.Holding
		if err := rows.Scan(&userID, &h.InstrumentID, &h.Quantity, &h.Price); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			out[i].Holdings = append(out[i].Holdings, h)
		}
	}
	return out, rows.Err()
}

func (s *Store) ReplaceLeaderboard(ctx context.Context, entries []leaderboard.Entry) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM leaderboard`); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO leaderboard (user_id, rank, total_value, updated_at)
			VALUES ($1, $2, $3, now())
		`, e.UserID, e.Rank, e.TotalValue); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.user_id, u.username, l.total_value::float8, l.rank
		FROM leaderboard l
		JOIN users u ON u.id = l.user_id
		ORDER BY l.rank
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leaderboard.Entry
	for rows.Next() {
		var e leaderboard.Entry
		if err := rows.Scan(&e.UserID, &e.Username, &e.TotalValue, &e.Rank); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
