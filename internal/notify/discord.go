package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jainyash0614/stock-price/internal/market"
)

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts through a channel webhook, so no bot login is needed.
type Discord struct {
	exec      webhookExecutor
	webhookID string
	token     string
}

func NewDiscord(webhookID, token string) (*Discord, error) {
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{exec: s, webhookID: webhookID, token: token}, nil
}

func (d *Discord) Notify(ctx context.Context, n market.EventNotice) error {
	_, err := d.exec.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Username: "Market Wire",
		Content:  Format(n),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
