// Package notify posts market events to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jainyash0614/stock-price/internal/config"
	"github.com/jainyash0614/stock-price/internal/market"
)

const (
	sendTimeout = 10 * time.Second
	maxInFlight = 2
)

type Notifier interface {
	Notify(ctx context.Context, n market.EventNotice) error
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n market.EventNotice) error {
	var errs []error
	for _, x := range m {
		if err := x.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bridge is a broadcast sink that forwards marketEvent notices to a
// notifier in the background. When maxInFlight sends are already running
// the notice is dropped so a slow chat API never holds up a tick.
type Bridge struct {
	n   Notifier
	log *slog.Logger
	g   errgroup.Group
}

func NewBridge(n Notifier, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{n: n, log: logger}
	b.g.SetLimit(maxInFlight)
	return b
}

func (b *Bridge) Publish(ctx context.Context, topic string, payload any) error {
	if topic != market.TopicMarketEvent {
		return nil
	}
	notice, ok := payload.(market.EventNotice)
	if !ok {
		return fmt.Errorf("notify: unexpected %s payload %T", topic, payload)
	}
	started := b.g.TryGo(func() error {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := b.n.Notify(sendCtx, notice); err != nil {
			b.log.Warn("market event notification failed", "type", string(notice.Type), "err", err)
		}
		return nil
	})
	if !started {
		b.log.Warn("notification dropped, senders busy", "type", string(notice.Type))
	}
	return nil
}

// Wait blocks until in-flight notifications finish.
func (b *Bridge) Wait() {
	_ = b.g.Wait()
}

// Format renders a notice as plain text.
func Format(n market.EventNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", emoji(n.Type), n.Type, n.Message)
	switch {
	case n.Severity != nil:
		fmt.Fprintf(&b, " (severity %.1f%%)", *n.Severity*100)
	case n.Stock != nil:
		fmt.Fprintf(&b, " (%s lists at $%.2f)", n.Stock.Symbol, n.Stock.Price)
	case n.Impact != nil:
		fmt.Fprintf(&b, " (%s %+.1f%% on %s)", n.Topic, *n.Impact*100, strings.Join(n.AffectedStocks, ", "))
	case n.WinningSector != "":
		fmt.Fprintf(&b, " (%s up, %s down)", n.WinningSector, n.LosingSector)
	}
	return b.String()
}

func emoji(t market.EventType) string {
	switch t {
	case market.EventCrash:
		return "📉"
	case market.EventSurge:
		return "📈"
	case market.EventIPO:
		return "🔔"
	case market.EventNews:
		return "📰"
	case market.EventRotation:
		return "🔄"
	default:
		return "•"
	}
}

// FromConfig builds the configured chat sinks. It returns nil when none
// are configured.
func FromConfig(cfg config.Config) (Notifier, error) {
	var sinks Multi
	if cfg.DiscordWebhookID != "" {
		d, err := NewDiscord(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	if cfg.TelegramBotToken != "" {
		tg, err := NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}
