package cli

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jainyash0614/stock-price/internal/market"
)

// Profile is the local stk state kept in ~/.stk/profile.json.
type Profile struct {
	APIBaseURL string   `json:"api_base_url,omitempty"`
	Watchlist  []string `json:"watchlist,omitempty"`
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".stk")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func profilePath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

func SaveProfile(p Profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

// LoadProfile returns an empty profile when none was saved yet.
func LoadProfile() (Profile, error) {
	path, err := profilePath()
	if err != nil {
		return Profile{}, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Watch adds symbols to the watchlist, keeping it sorted and unique.
func (p *Profile) Watch(symbols ...string) error {
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if err := market.ValidateSymbol(s); err != nil {
			return err
		}
		if !slices.Contains(p.Watchlist, s) {
			p.Watchlist = append(p.Watchlist, s)
		}
	}
	slices.Sort(p.Watchlist)
	return nil
}

func (p *Profile) Unwatch(symbols ...string) {
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		p.Watchlist = slices.DeleteFunc(p.Watchlist, func(w string) bool { return w == s })
	}
}

// Watching reports whether quotes for symbol should be shown. An empty
// watchlist shows everything.
func (p Profile) Watching(symbol string) bool {
	return len(p.Watchlist) == 0 || slices.Contains(p.Watchlist, symbol)
}
