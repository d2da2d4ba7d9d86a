package recents

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/msaudio/audioserver-go/internal/log"
	"github.com/msaudio/audioserver-go/internal/provider"
)

// defaultLimit mirrors the provider-side default for getrecent.
const defaultLimit = 20

// SourceFunc resolves the active media provider at call time, so the
// service follows provider reconfiguration without rewiring.
type SourceFunc func() (provider.MediaProvider, error)

// Service answers getrecent and clearrecent. Providers with their own
// history answer first; the local store covers the rest.
type Service struct {
	repo   *Repository
	source SourceFunc
	logger zerolog.Logger
}

func NewService(repo *Repository, source SourceFunc) *Service {
	return &Service{repo: repo, source: source, logger: log.WithComponent("recents")}
}

// Recent returns the zone's recently played list, newest first.
func (s *Service) Recent(ctx context.Context, zoneID, limit int) (*provider.RecentResponse, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	if rs := s.recentSource(); rs != nil {
		resp, err := rs.GetRecentlyPlayed(ctx, zoneID, limit)
		if err == nil && resp != nil {
			return resp, nil
		}
		s.logger.Warn().Err(err).Int("zone", zoneID).Msg("provider recents unavailable, using local history")
	}

	items, err := s.repo.List(zoneID, limit)
	if err != nil {
		return nil, err
	}
	return &provider.RecentResponse{TotalItems: len(items), Items: items}, nil
}

// Clear wipes the zone's history, upstream first when the provider supports
// it. A provider that cannot clear does not block the local wipe.
func (s *Service) Clear(ctx context.Context, zoneID int) error {
	if rs := s.recentSource(); rs != nil {
		if err := rs.ClearRecentlyPlayed(ctx, zoneID); err != nil {
			s.logger.Debug().Err(err).Int("zone", zoneID).Msg("provider does not clear recents")
		}
	}
	return s.repo.Clear(zoneID)
}

func (s *Service) recentSource() provider.RecentSource {
	if s.source == nil {
		return nil
	}
	p, err := s.source()
	if err != nil {
		s.logger.Debug().Err(err).Msg("no media provider for recents")
		return nil
	}
	rs, ok := p.(provider.RecentSource)
	if !ok {
		return nil
	}
	return rs
}
