package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jainyash0614/stock-price/internal/broadcast"
	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/market"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

type StockDetail struct {
	Stock   market.Instrument   `json:"stock"`
	History []market.PricePoint `json:"history"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		Dialer: websocket.DefaultDialer,
	}
}

func (c *Client) ListStocks(ctx context.Context) ([]market.Instrument, error) {
	var out struct {
		Stocks []market.Instrument `json:"stocks"`
	}
	err := c.getJSON(ctx, "/v1/stocks", &out)
	return out.Stocks, err
}

func (c *Client) StockDetail(ctx context.Context, symbol string, limit int) (StockDetail, error) {
	var out StockDetail
	path := "/v1/stocks/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(symbol)))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.getJSON(ctx, path, &out)
	return out, err
}

func (c *Client) MarketEvents(ctx context.Context, limit int) ([]market.MarketEvent, error) {
	var out struct {
		Events []market.MarketEvent `json:"events"`
	}
	path := "/v1/market-events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.getJSON(ctx, path, &out)
	return out.Events, err
}

func (c *Client) Leaderboard(ctx context.Context) ([]leaderboard.Entry, error) {
	var out struct {
		Leaderboard []leaderboard.Entry `json:"leaderboard"`
	}
	err := c.getJSON(ctx, "/v1/leaderboard", &out)
	return out.Leaderboard, err
}

// Watch streams socket envelopes to fn until ctx ends, the server hangs
// up, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(broadcast.Envelope) error) error {
	wsURL, err := socketURL(c.BaseURL)
	if err != nil {
		return err
	}
	conn, resp, err := c.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("socket dial status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("socket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var env broadcast.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("socket read: %w", err)
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}

func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("api url must be http or https")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	return u.String(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
