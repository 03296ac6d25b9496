package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/roniherschmann/linkpulse/internal/events"
	"github.com/roniherschmann/linkpulse/internal/geo"
	"github.com/roniherschmann/linkpulse/internal/metrics"
	"github.com/roniherschmann/linkpulse/internal/store"
	"github.com/roniherschmann/linkpulse/internal/uaclass"
)

// analyticsTimeout bounds the click writes a redirect waits on.
const analyticsTimeout = 5 * time.Second

type Visit struct {
	Slug      string
	UserID    string
	IP        string
	UserAgent string
	Referer   string
}

// Redirect resolves the slug and records the click. Analytics failures are
// logged and counted; only an unknown slug or an unusable store fails it.
func (s *Service) Redirect(ctx context.Context, v Visit) (string, error) {
	target, err := s.Resolve(ctx, v.Slug)
	if err != nil {
		metrics.Redirects.WithLabelValues("not_found").Inc()
		return "", err
	}
	metrics.Redirects.WithLabelValues("found").Inc()

	ev := s.newClick(v)
	s.track(ctx, ev)
	return target, nil
}

func (s *Service) newClick(v Visit) store.ClickEvent {
	ip := geo.NormalizeIP(v.IP)
	device := uaclass.ClassifyDevice(v.UserAgent)
	bot := uaclass.ClassifyBot(v.UserAgent)
	loc, ok := s.resolver.Lookup(ip)

	ev := store.ClickEvent{
		ID:        s.newID(),
		Slug:      v.Slug,
		Timestamp: s.now().UTC(),
		IP:        ip,
		UserAgent: v.UserAgent,
		Referer:   v.Referer,
		Location:  geo.FormatLocation(loc, ok),
		IsBot:     bot.IsBot,
		Device: store.DeviceInfo{
			DeviceType: device.Type,
			OS:         device.OS,
			Browser:    device.Browser,
		},
		UserID: v.UserID,
	}
	if ok {
		ev.Country = loc.CountryCode
	}
	if bot.IsBot {
		ev.BotCategory = bot.Category
		ev.BotName = bot.Name
	}
	return ev
}

// track runs the counter increment and the click insert side by side and
// waits for both. Neither failure reaches the caller.
func (s *Service) track(ctx context.Context, ev store.ClickEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyticsTimeout)
	defer cancel()
	lg := log.Ctx(ctx).With().Str("slug", ev.Slug).Str("click_id", ev.ID).Logger()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.store.IncrementClicks(ctx, ev.Slug, ev.Timestamp); err != nil {
			metrics.ClickWriteFailures.WithLabelValues("increment").Inc()
			lg.Error().Err(err).Msg("increment clicks")
		}
		return nil
	})
	g.Go(func() error {
		if err := s.store.InsertClick(ctx, ev); err != nil {
			metrics.ClickWriteFailures.WithLabelValues("insert").Inc()
			lg.Error().Err(err).Msg("insert click")
			return nil
		}
		category := "Human"
		if ev.IsBot {
			category = ev.BotCategory
		}
		metrics.Clicks.WithLabelValues(category).Inc()

		pctx, cancel := context.WithTimeout(ctx, events.PublishTimeout)
		defer cancel()
		if err := s.publisher.PublishClick(pctx, ev); err != nil {
			metrics.ClickWriteFailures.WithLabelValues("publish").Inc()
			lg.Warn().Err(err).Msg("publish click")
		}
		return nil
	})
	_ = g.Wait()
}
