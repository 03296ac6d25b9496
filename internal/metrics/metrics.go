package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Redirects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redirect_requests_total",
		Help: "Redirect requests by outcome.",
	}, []string{"outcome"})
	Shortens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shorten_requests_total",
		Help: "Links created, by slug kind.",
	}, []string{"kind"})
	SlugCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slug_collisions_total",
		Help: "Random slug candidates rejected because they were taken.",
	})
	CacheHit = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hit_total",
		Help: "Cache hits.",
	}, []string{"kind"})
	CacheMiss = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_miss_total",
		Help: "Cache misses.",
	}, []string{"kind"})
	ClickWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "click_write_failures_total",
		Help: "Analytics writes that failed and were dropped.",
	}, []string{"op"})
	Clicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clicks_recorded_total",
		Help: "Clicks recorded, by traffic category.",
	}, []string{"category"})
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(Redirects, Shortens, SlugCollisions, CacheHit, CacheMiss, ClickWriteFailures, Clicks, Logins)
}

func Handler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
