package core

import (
	"context"

	"github.com/roniherschmann/linkpulse/internal/geo"
	"github.com/roniherschmann/linkpulse/internal/stats"
	"github.com/roniherschmann/linkpulse/internal/store"
)

type LinkStats struct {
	store.Link
	ClickDetails []store.ClickEvent `json:"clickDetails"`
}

// LinkStats returns the link record with a page of its newest clicks.
func (s *Service) LinkStats(ctx context.Context, slug string, limit, offset int) (LinkStats, error) {
	link, err := s.store.FindLink(ctx, slug)
	if err != nil {
		return LinkStats{}, storeErr(err)
	}
	details, err := s.clickPage(ctx, slug, limit, offset)
	if err != nil {
		return LinkStats{}, err
	}
	return LinkStats{Link: link, ClickDetails: details}, nil
}

func (s *Service) ClickDetails(ctx context.Context, slug string, limit, offset int) ([]store.ClickEvent, error) {
	if _, err := s.store.FindLink(ctx, slug); err != nil {
		return nil, storeErr(err)
	}
	return s.clickPage(ctx, slug, limit, offset)
}

// clickPage backfills locations for clicks stored before a geo database was
// configured.
func (s *Service) clickPage(ctx context.Context, slug string, limit, offset int) ([]store.ClickEvent, error) {
	clicks, err := s.store.ClicksBySlug(ctx, slug, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]store.ClickEvent, 0, len(clicks))
	for _, c := range clicks {
		if (c.Location == "" || c.Location == geo.Unknown) && c.IP != "" {
			if loc, ok := s.resolver.Lookup(c.IP); ok {
				c.Location = geo.FormatLocation(loc, ok)
			}
		}
		if c.Location == "" {
			c.Location = geo.Unknown
		}
		out = append(out, c)
	}
	return out, nil
}

// history loads every click for an existing slug.
func (s *Service) history(ctx context.Context, slug string) ([]store.ClickEvent, error) {
	if _, err := s.store.FindLink(ctx, slug); err != nil {
		return nil, storeErr(err)
	}
	clicks, err := s.store.ClicksBySlug(ctx, slug, 0, 0)
	return clicks, storeErr(err)
}

func (s *Service) seriesFor(ctx context.Context, slug string, fn func([]store.ClickEvent) stats.Series) (stats.Series, error) {
	clicks, err := s.history(ctx, slug)
	if err != nil {
		return stats.Series{}, err
	}
	return fn(clicks), nil
}

func (s *Service) OSStats(ctx context.Context, slug string) (stats.Series, error) {
	return s.seriesFor(ctx, slug, stats.OS)
}

func (s *Service) DeviceStats(ctx context.Context, slug string) (stats.Series, error) {
	return s.seriesFor(ctx, slug, stats.Devices)
}

func (s *Service) ReferrerStats(ctx context.Context, slug string) (stats.Series, error) {
	return s.seriesFor(ctx, slug, stats.Referrers)
}

func (s *Service) CountryStats(ctx context.Context, slug string) (stats.Series, error) {
	return s.seriesFor(ctx, slug, func(c []store.ClickEvent) stats.Series {
		return stats.Countries(c, s.opts.CountryTopN)
	})
}

func (s *Service) BotStats(ctx context.Context, slug string) (stats.BotReport, error) {
	clicks, err := s.history(ctx, slug)
	if err != nil {
		return stats.BotReport{}, err
	}
	return stats.Bots(clicks), nil
}

func (s *Service) TrafficStats(ctx context.Context, slug, period string) (stats.Traffic, error) {
	p, err := stats.ParsePeriod(period)
	if err != nil {
		return stats.Traffic{}, err
	}
	clicks, err := s.history(ctx, slug)
	if err != nil {
		return stats.Traffic{}, err
	}
	return stats.TrafficSeries(clicks, p, s.now(), s.opts.Location), nil
}

func (s *Service) UserStats(ctx context.Context, slug string) (stats.UserReport, error) {
	clicks, err := s.history(ctx, slug)
	if err != nil {
		return stats.UserReport{}, err
	}
	return stats.Users(clicks), nil
}

// LinkUserTraffic is one user's traffic on one link.
func (s *Service) LinkUserTraffic(ctx context.Context, slug, userID, period string) (stats.Traffic, error) {
	p, err := stats.ParsePeriod(period)
	if err != nil {
		return stats.Traffic{}, err
	}
	clicks, err := s.history(ctx, slug)
	if err != nil {
		return stats.Traffic{}, err
	}
	return stats.TrafficSeries(stats.UserClicks(clicks, userID), p, s.now(), s.opts.Location), nil
}

// Users rolls up every attributed click across all links.
func (s *Service) Users(ctx context.Context) ([]stats.UserSummary, error) {
	clicks, err := s.store.UserClicks(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return stats.UserSummaries(clicks), nil
}

// UserTraffic is one user's traffic across all links.
func (s *Service) UserTraffic(ctx context.Context, userID, period string) (stats.Traffic, error) {
	p, err := stats.ParsePeriod(period)
	if err != nil {
		return stats.Traffic{}, err
	}
	clicks, err := s.store.ClicksByUser(ctx, userID)
	if err != nil {
		return stats.Traffic{}, storeErr(err)
	}
	return stats.TrafficSeries(clicks, p, s.now(), s.opts.Location), nil
}

// UserLinks pages through the links a user clicked, busiest first.
func (s *Service) UserLinks(ctx context.Context, userID string, limit, offset int) ([]stats.UserLink, error) {
	clicks, err := s.store.ClicksByUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	links := stats.UserLinks(clicks)
	if offset >= len(links) {
		return []stats.UserLink{}, nil
	}
	end := len(links)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return links[offset:end], nil
}
