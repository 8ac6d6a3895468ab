// Package sqlite is the embedded store used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/market"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and creates missing tables.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "stocksim", "market.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instruments (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			price       REAL NOT NULL,
			volatility  REAL NOT NULL DEFAULT 0.3,
			is_ipo      INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_points (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
			price         REAL NOT NULL,
			recorded_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_points_instrument ON price_points(instrument_id, recorded_at DESC)`,
		`CREATE TABLE IF NOT EXISTS market_events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			type          TEXT NOT NULL,
			description   TEXT NOT NULL,
			instrument_id INTEGER REFERENCES instruments(id) ON DELETE SET NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_events_created ON market_events(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			balance  REAL NOT NULL DEFAULT 10000
		)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
			quantity      INTEGER NOT NULL,
			PRIMARY KEY (user_id, instrument_id)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id     INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			rank        INTEGER NOT NULL,
			total_value REAL NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const instrumentColumns = `id, symbol, name, price, volatility, is_ipo, created_at, updated_at`

func scanInstrument(scan func(...any) error) (market.Instrument, error) {
	var in market.Instrument
	var isIPO int
	var created, updated int64
	if err := scan(&in.ID, &in.Symbol, &in.Name, &in.Price, &in.Volatility, &isIPO, &created, &updated); err != nil {
		return market.Instrument{}, err
	}
	in.IsIPO = isIPO != 0
	in.CreatedAt = time.Unix(0, created).UTC()
	in.UpdatedAt = time.Unix(0, updated).UTC()
	return in, nil
}

func (s *Store) ListInstruments(ctx context.Context) ([]market.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+instrumentColumns+` FROM instruments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Instrument
	for rows.Next() {
		in, err := scanInstrument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) InstrumentBySymbol(ctx context.Context, symbol string) (market.Instrument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE symbol = ?`, symbol)
	in, err := scanInstrument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Instrument{}, market.ErrInstrumentNotFound
	}
	return in, err
}

func (s *Store) UpdateInstrumentPrice(ctx context.Context, id int64, price float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE instruments SET price = ?, updated_at = ? WHERE id = ?`,
		price, time.Now().UnixNano(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return market.ErrInstrumentNotFound
	}
	return nil
}

func (s *Store) AppendPricePoint(ctx context.Context, instrumentID int64, price float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO price_points (instrument_id, price, recorded_at) VALUES (?, ?, ?)`,
		instrumentID, price, at.UnixNano())
	return err
}

func (s *Store) PriceHistory(ctx context.Context, instrumentID int64, limit int) ([]market.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_id, price, recorded_at
		FROM price_points
		WHERE instrument_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, instrumentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.PricePoint
	for rows.Next() {
		var p market.PricePoint
		var at int64
		if err := rows.Scan(&p.InstrumentID, &p.Price, &at); err != nil {
			return nil, err
		}
		p.RecordedAt = time.Unix(0, at).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateInstrument(ctx context.Context, in market.NewInstrument) (market.Instrument, error) {
	now := time.Now().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instruments (symbol, name, price, volatility, is_ipo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Symbol, in.Name, in.Price, in.Volatility, boolToInt(in.IsIPO), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return market.Instrument{}, market.ErrDuplicateSymbol
		}
		return market.Instrument{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return market.Instrument{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id)
	return scanInstrument(row.Scan)
}

func (s *Store) SeedInstruments(ctx context.Context, seeds []market.Seed) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	inserted := 0
	for _, seed := range seeds {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO instruments (symbol, name, price, volatility, is_ipo, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (symbol) DO NOTHING`,
			seed.Symbol, seed.Name, seed.Price, seed.Volatility, now, now)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanEvent(scan func(...any) error) (market.MarketEvent, error) {
	var ev market.MarketEvent
	var typ string
	var instrumentID sql.NullInt64
	var created int64
	if err := scan(&ev.ID, &typ, &ev.Description, &instrumentID, &created); err != nil {
		return market.MarketEvent{}, err
	}
	ev.Type = market.EventType(typ)
	if instrumentID.Valid {
		id := instrumentID.Int64
		ev.InstrumentID = &id
	}
	ev.CreatedAt = time.Unix(0, created).UTC()
	return ev, nil
}

func (s *Store) AppendMarketEvent(ctx context.Context, ev market.NewMarketEvent) (market.MarketEvent, error) {
	var instrumentID sql.NullInt64
	if ev.InstrumentID != nil {
		instrumentID = sql.NullInt64{Int64: *ev.InstrumentID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO market_events (type, description, instrument_id, created_at)
		VALUES (?, ?, ?, ?)`,
		string(ev.Type), ev.Description, instrumentID, time.Now().UnixNano())
	if err != nil {
		return market.MarketEvent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return market.MarketEvent{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, type, description, instrument_id, created_at FROM market_events WHERE id = ?`, id)
	return scanEvent(row.Scan)
}

func (s *Store) ListRecentMarketEvents(ctx context.Context, limit int) ([]market.MarketEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, description, instrument_id, created_at
		FROM market_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.MarketEvent
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) LatestMarketEventTime(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT max(created_at) FROM market_events`).Scan(&latest); err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, latest.Int64).UTC(), true, nil
}

func (s *Store) ResetMarket(ctx context.Context, keep []market.Seed) error {
	args := make([]any, 0, len(keep))
	marks := make([]string, 0, len(keep))
	for _, seed := range keep {
		args = append(args, seed.Symbol)
		marks = append(marks, "?")
	}
	notKept := `SELECT id FROM instruments`
	if len(marks) > 0 {
		notKept += ` WHERE symbol NOT IN (` + strings.Join(marks, ",") + `)`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []struct {
		query string
		args  []any
	}{
		{query: `DELETE FROM market_events`},
		{query: `DELETE FROM holdings WHERE instrument_id IN (` + notKept + `)`, args: args},
		{query: `DELETE FROM price_points WHERE instrument_id IN (` + notKept + `)`, args: args},
		{query: `DELETE FROM instruments WHERE id IN (` + notKept + `)`, args: args},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return err
		}
	}
	now := time.Now().UnixNano()
	for _, seed := range keep {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instruments (symbol, name, price, volatility, is_ipo, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (symbol) DO UPDATE
			SET name = excluded.name, price = excluded.price, is_ipo = 0, updated_at = excluded.updated_at`,
			seed.Symbol, seed.Name, seed.Price, seed.Volatility, now, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListPortfolios(ctx context.Context) ([]leaderboard.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, balance FROM users ORDER BY id`)
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

	rows, err = s.db.QueryContext(ctx, `
		SELECT h.user_id, h.instrument_id, h.quantity, i.price
		FROM holdings h
		JOIN instruments i ON i.id = h.instrument_id
		WHERE h.quantity > 0`)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard`); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO leaderboard (user_id, rank, total_value, updated_at)
			VALUES (?, ?, ?, ?)`, e.UserID, e.Rank, e.TotalValue, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.user_id, u.username, l.total_value, l.rank
		FROM leaderboard l
		JOIN users u ON u.id = l.user_id
		ORDER BY l.rank
		LIMIT ?`, limit)
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

// AddUser and SetHolding stand in for the trading API on local databases.
func (s *Store) AddUser(ctx context.Context, username string, balance float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, balance) VALUES (?, ?)`, username, balance)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) SetHolding(ctx context.Context, userID, instrumentID, quantity int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings (user_id, instrument_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT (user_id, instrument_id) DO UPDATE SET quantity = excluded.quantity`,
		userID, instrumentID, quantity)
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
