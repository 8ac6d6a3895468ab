package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/jainyash0614/stock-price/internal/broadcast"
	cl "github.com/jainyash0614/stock-price/internal/cli"
	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/market"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

// Last seen price per symbol, for watch deltas.
var lastPrices = map[string]float64{}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func renderStocksList(stocks []market.Instrument) {
	accent.Println("\n== STOCK MARKET ==")
	if len(stocks) == 0 {
		printInfo("No stocks found.")
		return
	}
	fmt.Printf("%-8s %-24s %12s %6s %-4s\n", "SYMBOL", "NAME", "PRICE", "VOL", "IPO")
	for _, s := range stocks {
		ipo := ""
		if s.IsIPO {
			ipo = "yes"
		}
		fmt.Printf("%-8s %-24s %12s %6.2f %-4s\n",
			s.Symbol,
			truncate(s.Name, 24),
			formatPrice(s.Price),
			s.Volatility,
			ipo,
		)
	}
	fmt.Println()
}

func renderStockDetail(detail cl.StockDetail) {
	s := detail.Stock
	accent.Printf("\n== %s (%s) ==\n", s.Symbol, s.Name)
	fmt.Printf("Current Price: $%s\n", formatPrice(s.Price))
	fmt.Printf("Volatility:    %.2f\n", s.Volatility)
	if s.IsIPO {
		fmt.Printf("Listed:        %s (IPO)\n", s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}

	if len(detail.History) > 1 {
		latest := detail.History[0].Price
		oldest := detail.History[len(detail.History)-1].Price
		fmt.Printf("Trend (recent): %s  %s\n", colorizeDelta(latest-oldest), colorizePercent(percentChange(oldest, latest)))
	}

	if len(detail.History) > 0 {
		fmt.Println()
		accent.Println("Recent Ticks")
		fmt.Printf("%-20s %12s\n", "TIME", "PRICE")
		for _, p := range detail.History {
			fmt.Printf("%-20s %12s\n", p.RecordedAt.Local().Format("2006-01-02 15:04:05"), formatPrice(p.Price))
		}
	}
	fmt.Println()
}

func renderEvents(events []market.MarketEvent) {
	accent.Println("\n== MARKET EVENTS ==")
	if len(events) == 0 {
		printInfo("No market events yet.")
		return
	}
	fmt.Printf("%-20s %-16s %s\n", "TIME", "TYPE", "DESCRIPTION")
	for _, ev := range events {
		fmt.Printf("%-20s %s %s\n",
			ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			eventColor(ev.Type).Sprintf("%-16s", ev.Type),
			ev.Description,
		)
	}
	fmt.Println()
}

func renderLeaderboard(rows []leaderboard.Entry) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-18s %16s\n", "RANK", "PLAYER", "TOTAL VALUE")
	for _, row := range rows {
		fmt.Printf("%-6d %-18s %16s\n", row.Rank, truncate(row.Username, 18), formatPrice(row.TotalValue))
	}
	fmt.Println()
}

func renderEnvelope(env broadcast.Envelope, profile cl.Profile) error {
	stamp := env.SentAt.Local().Format("15:04:05")
	switch env.Event {
	case market.TopicPriceTick:
		var quotes []market.Quote
		if err := json.Unmarshal(env.Data, &quotes); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		parts := make([]string, 0, len(quotes))
		for _, q := range quotes {
			if !profile.Watching(q.Symbol) {
				continue
			}
			part := fmt.Sprintf("%s %s", q.Symbol, formatPrice(q.Price))
			if prev, ok := lastPrices[q.Symbol]; ok {
				part += " " + colorizeDelta(q.Price-prev)
			}
			lastPrices[q.Symbol] = q.Price
			parts = append(parts, part)
		}
		fmt.Printf("%s %s %s\n", stamp, neutral.Sprint("tick"), strings.Join(parts, " | "))
	case market.TopicMarketEvent:
		var n market.EventNotice
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		fmt.Printf("%s %s %s\n", stamp, eventColor(n.Type).Sprintf("%s", n.Type), n.Message)
	case leaderboard.Topic:
		var rows []leaderboard.Entry
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		top := make([]string, 0, 3)
		for i := 0; i < len(rows) && i < 3; i++ {
			top = append(top, fmt.Sprintf("#%d %s %s", rows[i].Rank, rows[i].Username, formatPrice(rows[i].TotalValue)))
		}
		fmt.Printf("%s %s %s\n", stamp, accent.Sprint("leaders"), strings.Join(top, "  "))
	default:
		printWarn(fmt.Sprintf("%s unknown event %q", stamp, env.Event))
	}
	return nil
}

func renderProfile(p cl.Profile) {
	accent.Println("\n== PROFILE ==")
	api := p.APIBaseURL
	if api == "" {
		api = "(default)"
	}
	fmt.Printf("API:       %s\n", api)
	if len(p.Watchlist) == 0 {
		fmt.Println("Watchlist: all symbols")
	} else {
		fmt.Printf("Watchlist: %s\n", strings.Join(p.Watchlist, ", "))
	}
	fmt.Println()
}

func eventColor(t market.EventType) *color.Color {
	switch t {
	case market.EventCrash:
		return danger
	case market.EventSurge:
		return success
	case market.EventIPO:
		return accent
	default:
		return warn
	}
}

func colorizeDelta(v float64) string {
	text := fmt.Sprintf("%+.2f", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func formatPrice(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(v*100 + 0.5)
	return fmt.Sprintf("%s%s.%02d", sign, comma(cents/100), cents%100)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
