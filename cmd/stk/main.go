package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jainyash0614/stock-price/internal/broadcast"
	cl "github.com/jainyash0614/stock-price/internal/cli"
	"github.com/jainyash0614/stock-price/internal/config"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	if os.Getenv("STK_API_BASE_URL") == "" {
		if p, err := cl.LoadProfile(); err == nil && p.APIBaseURL != "" {
			apiBase = p.APIBaseURL
		}
	}

	root := &cobra.Command{
		Use:          "stk",
		Short:        "Stock market simulation client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newStocksCmd(&apiBase),
		newEventsCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newWatchCmd(&apiBase),
		newProfileCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newStocksCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "stocks [SYMBOL]",
		Short:   "List stocks or inspect one stock",
		Aliases: []string{"stock"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			if len(args) == 0 {
				stocks, err := client.ListStocks(ctx)
				if err != nil {
					return err
				}
				renderStocksList(stocks)
				return nil
			}
			detail, err := client.StockDetail(ctx, args[0], limit)
			if err != nil {
				return err
			}
			renderStockDetail(detail)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "price points to fetch for a single stock")
	return cmd
}

func newEventsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Recent market events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			events, err := newClient(apiBase).MarketEvents(ctx, limit)
			if err != nil {
				return err
			}
			renderEvents(events)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Top portfolios by total value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx)
			if err != nil {
				return err
			}
			renderLeaderboard(rows)
			return nil
		},
	}
}

func newWatchCmd(apiBase *string) *cobra.Command {
	var topics []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live prices, events and leaderboard updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			want := map[string]bool{}
			for _, t := range topics {
				want[strings.TrimSpace(t)] = true
			}
			profile, err := cl.LoadProfile()
			if err != nil {
				printWarn("profile unreadable, showing every symbol: " + err.Error())
			}
			printInfo("Watching " + *apiBase + " (Ctrl+C to stop)")
			return newClient(apiBase).Watch(ctx, func(env broadcast.Envelope) error {
				if len(want) > 0 && !want[env.Event] {
					return nil
				}
				return renderEnvelope(env, profile)
			})
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "only show these topics (priceTick, marketEvent, leaderboard)")
	return cmd
}

func newProfileCmd() *cobra.Command {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Local settings: API address and watchlist",
	}
	profile.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			renderProfile(p)
			return nil
		},
	})
	profile.AddCommand(&cobra.Command{
		Use:   "set-api URL",
		Short: "Remember the API base URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateProfile(func(p *cl.Profile) error {
				p.APIBaseURL = strings.TrimRight(strings.TrimSpace(args[0]), "/")
				return nil
			})
		},
	})
	profile.AddCommand(&cobra.Command{
		Use:   "watch SYMBOL...",
		Short: "Add symbols to the watchlist used by `stk watch`",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateProfile(func(p *cl.Profile) error { return p.Watch(args...) })
		},
	})
	profile.AddCommand(&cobra.Command{
		Use:   "unwatch SYMBOL...",
		Short: "Remove symbols from the watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateProfile(func(p *cl.Profile) error {
				p.Unwatch(args...)
				return nil
			})
		},
	})
	return profile
}

func updateProfile(change func(*cl.Profile) error) error {
	p, err := cl.LoadProfile()
	if err != nil {
		return err
	}
	if err := change(&p); err != nil {
		return err
	}
	if err := cl.SaveProfile(p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	renderProfile(p)
	return nil
}
