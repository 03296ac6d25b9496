package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	defaultClickPage     = 25
	defaultUserLinksPage = 15
)

// respond writes v, or maps err when the call failed.
func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, v, http.StatusOK)
}

func periodOr(r *http.Request, def string) string {
	if p := r.URL.Query().Get("period"); p != "" {
		return p
	}
	return def
}

func (rt *Router) handleLinkStats(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, defaultClickPage, maxPageLimit)
	st, err := rt.svc.LinkStats(r.Context(), chi.URLParam(r, "slug"), limit, offset)
	respond(w, r, st, err)
}

func (rt *Router) handleClicks(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, defaultClickPage, maxPageLimit)
	clicks, err := rt.svc.ClickDetails(r.Context(), chi.URLParam(r, "slug"), limit, offset)
	respond(w, r, clicks, err)
}

func (rt *Router) handleOS(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.OSStats(r.Context(), chi.URLParam(r, "slug"))
	respond(w, r, s, err)
}

func (rt *Router) handleDevice(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.DeviceStats(r.Context(), chi.URLParam(r, "slug"))
	respond(w, r, s, err)
}

func (rt *Router) handleReferrer(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.ReferrerStats(r.Context(), chi.URLParam(r, "slug"))
	respond(w, r, s, err)
}

func (rt *Router) handleCountry(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.CountryStats(r.Context(), chi.URLParam(r, "slug"))
	respond(w, r, s, err)
}

func (rt *Router) handleBots(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.BotStats(r.Context(), chi.URLParam(r, "slug"))
	respond(w, r, s, err)
}

func (rt *Router) handleTraffic(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.TrafficStats(r.Context(), chi.URLParam(r, "slug"), periodOr(r, "7d"))
	respond(w, r, s, err)
}

func (rt *Router) handleLinkUsers(w http.ResponseWriter, r *http.Request) {
	s, err := rt.svc.UserStats(r.Context(), chi.URLParam(r, "slug"))
	respond(w, r, s, err)
}

func (rt *Router) handleLinkUserTraffic(w http.ResponseWriter, r *http.Request) {
	uid, ok := userParam(w, r)
	if !ok {
		return
	}
	s, err := rt.svc.LinkUserTraffic(r.Context(), chi.URLParam(r, "slug"), uid, periodOr(r, "30d"))
	respond(w, r, s, err)
}

func (rt *Router) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := rt.svc.Users(r.Context())
	respond(w, r, users, err)
}

func (rt *Router) handleUserTraffic(w http.ResponseWriter, r *http.Request) {
	uid, ok := userParam(w, r)
	if !ok {
		return
	}
	s, err := rt.svc.UserTraffic(r.Context(), uid, periodOr(r, "7d"))
	respond(w, r, s, err)
}

func (rt *Router) handleUserLinks(w http.ResponseWriter, r *http.Request) {
	uid, ok := userParam(w, r)
	if !ok {
		return
	}
	limit, offset := page(r, defaultUserLinksPage, maxPageLimit)
	links, err := rt.svc.UserLinks(r.Context(), uid, limit, offset)
	respond(w, r, links, err)
}
