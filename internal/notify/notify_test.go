package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jainyash0614/stock-price/internal/config"
	"github.com/jainyash0614/stock-price/internal/market"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []market.EventNotice
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, n market.EventNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func ptr(v float64) *float64 { return &v }

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		notice market.EventNotice
		want   string
	}{
		{
			name:   "crash",
			notice: market.EventNotice{Type: market.EventCrash, Message: "Panic selling hits the market!", Severity: ptr(0.125)},
			want:   "CRASH: Panic selling hits the market! (severity 12.5%)",
		},
		{
			name:   "ipo",
			notice: market.EventNotice{Type: market.EventIPO, Message: "SQ goes public!", Stock: &market.Instrument{Symbol: "SQ", Price: 120}},
			want:   "(SQ lists at $120.00)",
		},
		{
			name:   "news",
			notice: market.EventNotice{Type: market.EventNews, Message: "Chip shortage", Impact: ptr(-0.04), Topic: "TECH", AffectedStocks: []string{"AAPL", "NVDA"}},
			want:   "(TECH -4.0% on AAPL, NVDA)",
		},
		{
			name:   "rotation",
			notice: market.EventNotice{Type: market.EventRotation, Message: "Money moves", WinningSector: "Tech", LosingSector: "Energy"},
			want:   "(Tech up, Energy down)",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Format(tc.notice)
			if !strings.Contains(got, tc.want) {
				t.Fatalf("format got %q want it to contain %q", got, tc.want)
			}
		})
	}
}

func TestBridgeForwardsOnlyMarketEvents(t *testing.T) {
	rec := &recordingNotifier{}
	b := NewBridge(rec, nil)
	ctx := context.Background()

	if err := b.Publish(ctx, market.TopicPriceTick, []market.Quote{{Symbol: "AAPL"}}); err != nil {
		t.Fatalf("price tick: %v", err)
	}
	if err := b.Publish(ctx, market.TopicMarketEvent, market.EventNotice{Type: market.EventSurge, Message: "Bull run"}); err != nil {
		t.Fatalf("market event: %v", err)
	}
	b.Wait()
	if rec.count() != 1 {
		t.Fatalf("notified %d times want 1", rec.count())
	}
}

func TestBridgeSwallowsNotifierErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("rate limited")}
	b := NewBridge(rec, nil)
	if err := b.Publish(context.Background(), market.TopicMarketEvent, market.EventNotice{Type: market.EventCrash}); err != nil {
		t.Fatalf("notifier failures must not reach the engine: %v", err)
	}
	b.Wait()
}

func TestBridgeRejectsWrongPayload(t *testing.T) {
	b := NewBridge(&recordingNotifier{}, nil)
	if err := b.Publish(context.Background(), market.TopicMarketEvent, "nope"); err == nil {
		t.Fatalf("expected error for string payload")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	err := Multi{bad, ok}.Notify(context.Background(), market.EventNotice{Type: market.EventIPO})
	if err == nil || ok.count() != 1 {
		t.Fatalf("expected joined error and both sinks called, err=%v ok=%d", err, ok.count())
	}
}

type fakeWebhook struct {
	id, token string
	params    *discordgo.WebhookParams
}

func (f *fakeWebhook) WebhookExecute(webhookID, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.id, f.token, f.params = webhookID, token, data
	return nil, nil
}

func TestDiscordNotify(t *testing.T) {
	fake := &fakeWebhook{}
	d := &Discord{exec: fake, webhookID: "42", token: "secret"}
	if err := d.Notify(context.Background(), market.EventNotice{Type: market.EventSurge, Message: "Bull run"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if fake.id != "42" || fake.token != "secret" || !strings.Contains(fake.params.Content, "Bull run") {
		t.Fatalf("unexpected webhook call %+v", fake)
	}
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifyEscapes(t *testing.T) {
	bot := &fakeBot{}
	tg := &Telegram{bot: bot, chatID: 7}
	if err := tg.Notify(context.Background(), market.EventNotice{Type: market.EventCrash, Message: "Sell-off!", Severity: ptr(0.1)}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages want 1", len(bot.sent))
	}
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	if msg.ChatID != 7 || msg.ParseMode != "MarkdownV2" || !strings.Contains(msg.Text, `Sell\-off\!`) {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	if got := escapeMarkdownV2("a.b_c"); got != `a\.b\_c` {
		t.Fatalf("got %q", got)
	}
}

func TestFromConfigWithoutSinks(t *testing.T) {
	n, err := FromConfig(config.Config{})
	if err != nil || n != nil {
		t.Fatalf("expected no notifier, got %v err=%v", n, err)
	}
}

func TestFromConfigDiscordOnly(t *testing.T) {
	n, err := FromConfig(config.Config{DiscordWebhookID: "42", DiscordWebhookToken: "secret"})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if _, ok := n.(*Discord); !ok {
		t.Fatalf("expected *Discord, got %T", n)
	}
}
