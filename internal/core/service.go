package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/linkpulse/internal/cache"
	"github.com/roniherschmann/linkpulse/internal/events"
	"github.com/roniherschmann/linkpulse/internal/geo"
	"github.com/roniherschmann/linkpulse/internal/metrics"
	"github.com/roniherschmann/linkpulse/internal/shortid"
	"github.com/roniherschmann/linkpulse/internal/store"
)

var (
	ErrMissingURL    = errors.New("long URL required")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrInvalidSlug   = errors.New("invalid custom slug")
	ErrSlugConflict  = errors.New("custom slug already exists")
	ErrSlugExhausted = errors.New("failed to generate unique slug")
	ErrNotFound      = errors.New("URL not found")
	ErrUnavailable   = errors.New("database tables not initialized")
)

// Paths the router owns; they can never be used as slugs.
var reserved = map[string]struct{}{
	"api": {}, "dashboard": {}, "stats": {}, "login": {}, "settings": {}, "users": {},
	"assets": {}, "static": {}, "healthz": {}, "readyz": {}, "metrics": {},
	"favicon.ico": {}, "robots.txt": {}, "index.html": {},
}

func IsReserved(segment string) bool {
	_, ok := reserved[strings.ToLower(segment)]
	return ok
}

type Store interface {
	store.LinkStore
	store.ClickStore
	Ping(ctx context.Context) error
}

type Options struct {
	SlugLength   int
	SlugAttempts int
	CountryTopN  int
	Location     *time.Location // calendar used for traffic buckets
}

type Service struct {
	store     Store
	resolver  geo.Resolver
	recent    cache.Recent
	publisher events.Publisher
	opts      Options
	resolved  sync.Map // slug -> long URL; slugs are immutable
	now       func() time.Time
	newID     func() string
}

func NewService(st Store, resolver geo.Resolver, recent cache.Recent, pub events.Publisher, opts Options) *Service {
	if resolver == nil {
		resolver = geo.Nop{}
	}
	if recent == nil {
		recent = cache.NewMemory(0)
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if opts.SlugLength <= 0 {
		opts.SlugLength = shortid.DefaultLength
	}
	if opts.SlugAttempts <= 0 {
		opts.SlugAttempts = 10
	}
	if opts.CountryTopN <= 0 {
		opts.CountryTopN = 7
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		store:     st,
		resolver:  resolver,
		recent:    recent,
		publisher: pub,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// storeErr lifts store sentinels into service errors.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrNotProvisioned):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

func normalizeURL(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if parsed.Host == "" {
		return "", ErrInvalidURL
	}
	return parsed.String(), nil
}

type ShortenRequest struct {
	LongURL    string
	CustomSlug string
	UserID     string
	BaseURL    string // absolute origin the short link is served from
}

type ShortenResult struct {
	Slug        string `json:"slug"`
	LongURL     string `json:"longUrl"`
	ShortURL    string `json:"shortUrl"`
	TrackingURL string `json:"trackingUrl,omitempty"`
}

func (s *Service) Shorten(ctx context.Context, req ShortenRequest) (ShortenResult, error) {
	raw := strings.TrimSpace(req.LongURL)
	if raw == "" {
		return ShortenResult{}, ErrMissingURL
	}
	target, err := normalizeURL(raw)
	if err != nil {
		return ShortenResult{}, err
	}

	var link store.Link
	if custom := strings.TrimSpace(req.CustomSlug); custom != "" {
		link, err = s.createCustom(ctx, custom, target)
	} else {
		link, err = s.createRandom(ctx, target)
	}
	if err != nil {
		return ShortenResult{}, err
	}

	s.resolved.Store(link.Slug, link.LongURL)
	s.recent.Invalidate(ctx)

	base := strings.TrimRight(req.BaseURL, "/")
	res := ShortenResult{Slug: link.Slug, LongURL: link.LongURL, ShortURL: base + "/" + link.Slug}
	if uid := strings.TrimSpace(req.UserID); uid != "" {
		res.TrackingURL = res.ShortURL + "/" + url.PathEscape(uid)
	}
	return res, nil
}

// createCustom trusts the store's uniqueness constraint over the pre-check,
// so two racing requests for one alias resolve to one winner and one conflict.
func (s *Service) createCustom(ctx context.Context, slug, target string) (store.Link, error) {
	if !shortid.ValidCustom(slug) || IsReserved(slug) {
		return store.Link{}, ErrInvalidSlug
	}
	exists, err := s.store.LinkExists(ctx, slug)
	if err != nil {
		return store.Link{}, storeErr(err)
	}
	if exists {
		return store.Link{}, ErrSlugConflict
	}
	link, err := s.store.CreateLink(ctx, slug, target, s.now())
	if errors.Is(err, store.ErrDuplicateSlug) {
		return store.Link{}, ErrSlugConflict
	}
	if err != nil {
		return store.Link{}, storeErr(err)
	}
	metrics.Shortens.WithLabelValues("custom").Inc()
	return link, nil
}

func (s *Service) createRandom(ctx context.Context, target string) (store.Link, error) {
	for i := 0; i < s.opts.SlugAttempts; i++ {
		slug := shortid.Generate(s.opts.SlugLength)
		if IsReserved(slug) {
			continue
		}
		exists, err := s.store.LinkExists(ctx, slug)
		if err != nil {
			return store.Link{}, storeErr(err)
		}
		if exists {
			metrics.SlugCollisions.Inc()
			continue
		}
		link, err := s.store.CreateLink(ctx, slug, target, s.now())
		if errors.Is(err, store.ErrDuplicateSlug) {
			metrics.SlugCollisions.Inc()
			continue
		}
		if err != nil {
			return store.Link{}, storeErr(err)
		}
		metrics.Shortens.WithLabelValues("random").Inc()
		return link, nil
	}
	return store.Link{}, ErrSlugExhausted
}

// Resolve maps a slug to its long URL, consulting the in-process cache first.
func (s *Service) Resolve(ctx context.Context, slug string) (string, error) {
	if v, ok := s.resolved.Load(slug); ok {
		metrics.CacheHit.WithLabelValues("url").Inc()
		return v.(string), nil
	}
	metrics.CacheMiss.WithLabelValues("url").Inc()
	link, err := s.store.FindLink(ctx, slug)
	if err != nil {
		return "", storeErr(err)
	}
	s.resolved.Store(slug, link.LongURL)
	return link.LongURL, nil
}

// PrewarmCache loads the n most recent links into the resolve cache.
func (s *Service) PrewarmCache(ctx context.Context, n int) error {
	links, err := s.store.ListRecent(ctx, n, 0)
	if err != nil {
		return storeErr(err)
	}
	for _, l := range links {
		s.resolved.Store(l.Slug, l.LongURL)
	}
	log.Debug().Int("links", len(links)).Msg("resolve cache prewarmed")
	return nil
}

// Recent lists links newest first. Before the schema exists it returns an
// empty page rather than an error.
func (s *Service) Recent(ctx context.Context, limit, offset int) ([]store.Link, error) {
	if links, ok := s.recent.Get(ctx, limit, offset); ok {
		metrics.CacheHit.WithLabelValues("recent").Inc()
		return links, nil
	}
	metrics.CacheMiss.WithLabelValues("recent").Inc()
	links, err := s.store.ListRecent(ctx, limit, offset)
	if errors.Is(err, store.ErrNotProvisioned) {
		log.Warn().Err(err).Msg("recent links before migration")
		return []store.Link{}, nil
	}
	if err != nil {
		return nil, err
	}
	s.recent.Set(ctx, limit, offset, links)
	return links, nil
}

// Ready pings the store and reports how many links it holds.
func (s *Service) Ready(ctx context.Context) (int64, error) {
	if err := s.store.Ping(ctx); err != nil {
		return 0, err
	}
	n, err := s.store.CountLinks(ctx)
	return n, storeErr(err)
}
