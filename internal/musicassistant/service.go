package musicassistant

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/msaudio/audioserver-go/internal/backend"
	"github.com/msaudio/audioserver-go/internal/config"
	"github.com/msaudio/audioserver-go/internal/content"
	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/netutil"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// playersFreshFor bounds how often concurrent zones hammer players/all.
const playersFreshFor = 2 * time.Second

// Service owns the shared server connection and hands out the three faces
// built on it: the per-zone backend driver, the media provider and the
// content adapter.
type Service struct {
	cfg    *config.Config
	client *Client
	m      mapper
	logger zerolog.Logger

	sf      singleflight.Group
	mu      sync.Mutex
	players []Player
	fetched time.Time
}

// NewService builds the shared client for the configured server. Nothing
// connects until a zone or a browse call needs it.
func NewService(cfg *config.Config) *Service {
	url := fmt.Sprintf("ws://%s:%s/ws", cfg.MAHost, cfg.MAPort)
	return &Service{
		cfg:    cfg,
		client: NewClient(url),
		m:      mapper{iconHost: cfg.MAIconHost, iconPort: cfg.MAIconPort},
		logger: log.WithComponent("musicassistant"),
	}
}

// Close tears down the shared connection and everything waiting on it.
func (s *Service) Close() error { return s.client.Close() }

// NewDriver is the backend factory face.
func (s *Service) NewDriver(opts backend.Options) (backend.Driver, error) {
	if opts.Config.PlayerID == "" {
		return nil, fmt.Errorf("zone %d: musicassistant backend needs a playerid", opts.ZoneID)
	}
	return newDriver(s, opts), nil
}

// NewProvider is the media provider face.
func (s *Service) NewProvider() provider.MediaProvider {
	return newProvider(s)
}

// NewContentAdapter is the content adapter face.
func (s *Service) NewContentAdapter(cfg config.ZoneConfig) (content.Adapter, error) {
	return newContentAdapter(s, cfg), nil
}

// Players returns the server's player list. Concurrent callers share one
// RPC and a snapshot is reused for a couple of seconds, so a config reload
// spawning many drivers costs one round trip.
func (s *Service) Players(ctx context.Context) ([]Player, error) {
	s.mu.Lock()
	if s.players != nil && time.Since(s.fetched) < playersFreshFor {
		players := s.players
		s.mu.Unlock()
		return players, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do("players", func() (any, error) {
		var players []Player
		if err := s.client.CallInto(ctx, "players/all", nil, &players); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.players = players
		s.fetched = time.Now()
		s.mu.Unlock()
		return players, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Player), nil
}

// PlayerByID resolves one player from the server's list.
func (s *Service) PlayerByID(ctx context.Context, playerID string) (*Player, error) {
	players, err := s.Players(ctx)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if players[i].PlayerID == playerID {
			p := players[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("player %q not known to the server", playerID)
}

// PlayerSuggestion is one selectable player shown on the admin surface.
type PlayerSuggestion struct {
	PlayerID  string `json:"playerid"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
}

// Suggestions lists the server's players for the admin surface. When the
// server is unreachable the last snapshot is returned so the page still
// renders.
func (s *Service) Suggestions(ctx context.Context) []PlayerSuggestion {
	players, err := s.Players(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("player suggestions fall back to last snapshot")
		s.mu.Lock()
		players = s.players
		s.mu.Unlock()
	}

	out := make([]PlayerSuggestion, 0, len(players))
	for _, p := range players {
		name := p.DisplayName
		if name == "" {
			name = p.Name
		}
		out = append(out, PlayerSuggestion{
			PlayerID:  p.PlayerID,
			Name:      name,
			Provider:  p.Provider,
			Available: p.Available,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Probe checks the server answers on its REST info endpoint and that the
// zone names a player. It stays off the WebSocket so a failed probe never
// interferes with the live connection.
func (s *Service) Probe(ctx context.Context, cfg config.ZoneConfig) error {
	if cfg.PlayerID == "" {
		return fmt.Errorf("zone %d: musicassistant backend needs a playerid", cfg.ID)
	}
	if s.cfg.MAHost == "" {
		return fmt.Errorf("no Music Assistant host configured")
	}

	url := fmt.Sprintf("http://%s:%s/info", s.cfg.MAHost, s.cfg.MAPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := netutil.ProbeClient.Do(req)
	if err != nil {
		return fmt.Errorf("music assistant unreachable at %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("music assistant at %s answered %d", url, resp.StatusCode)
	}

	var info struct {
		ServerVersion string `json:"server_version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("music assistant at %s: unexpected info payload: %w", url, err)
	}
	s.logger.Debug().Str("server_version", info.ServerVersion).Msg("probe ok")
	return nil
}
