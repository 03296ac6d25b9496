package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/roniherschmann/linkpulse/internal/core"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
	maxPageLimit       = 1000
)

// page reads limit and offset query parameters. Missing or malformed values
// fall back to the defaults; limit is capped at maxLimit.
func page(r *http.Request, defLimit, maxLimit int) (limit, offset int) {
	limit, offset = defLimit, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxLimit)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// userParam returns the decoded {userId} segment. chi matches on RawPath
// when the request carried an escaped "/", leaving the segment escaped.
func userParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := chi.URLParam(r, "userId")
	if r.URL.RawPath == "" {
		return uid, true
	}
	dec, err := url.PathUnescape(uid)
	if err != nil {
		writeJSON(w, errorResp{Error: "Invalid user id"}, http.StatusBadRequest)
		return "", false
	}
	return dec, true
}

type shortenReq struct {
	LongURL    string `json:"longUrl"`
	CustomSlug string `json:"customSlug,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

func (rt *Router) handleShorten(w http.ResponseWriter, r *http.Request) {
	var req shortenReq
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := rt.svc.Shorten(r.Context(), core.ShortenRequest{
		LongURL:    req.LongURL,
		CustomSlug: req.CustomSlug,
		UserID:     req.UserID,
		BaseURL:    rt.baseURL(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().Str("slug", res.Slug).Msg("link created")
	writeJSON(w, res, http.StatusCreated)
}

type recentItem struct {
	Slug      string    `json:"slug"`
	LongURL   string    `json:"longUrl"`
	Clicks    int64     `json:"clicks"`
	ShortURL  string    `json:"shortUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

func (rt *Router) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r, defaultRecentLimit, maxRecentLimit)
	links, err := rt.svc.Recent(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	base := rt.baseURL(r)
	out := make([]recentItem, 0, len(links))
	for _, l := range links {
		out = append(out, recentItem{
			Slug:      l.Slug,
			LongURL:   l.LongURL,
			Clicks:    l.Clicks,
			ShortURL:  base + "/" + l.Slug,
			CreatedAt: l.CreatedAt,
		})
	}
	writeJSON(w, out, http.StatusOK)
}

func (rt *Router) handleRedirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if core.IsReserved(slug) {
		rt.handleSPA(w, r)
		return
	}
	uid, ok := userParam(w, r)
	if !ok {
		return
	}
	if uid == "" {
		uid = r.URL.Query().Get("uid")
	}

	target, err := rt.svc.Redirect(r.Context(), core.Visit{
		Slug:      slug,
		UserID:    uid,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	})
	switch {
	case errors.Is(err, core.ErrNotFound):
		notFoundPage(w)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("slug", slug).Msg("redirect")
		errorPage(w)
		return
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// handleSPA serves the prebuilt dashboard. Unknown paths get index.html so
// client-side routes survive a reload.
func (rt *Router) handleSPA(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.StaticDir == "" {
		notFoundPage(w)
		return
	}
	name := filepath.Join(rt.cfg.StaticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	index := filepath.Join(rt.cfg.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		notFoundPage(w)
		return
	}
	http.ServeFile(w, r, index)
}

const notFoundHTML = `<!doctype html>
<html>
  <head><title>URL Not Found</title></head>
  <body>
    <h1>Short URL Not Found</h1>
    <p>The requested short URL does not exist.</p>
    <a href="/">Go Home</a>
  </body>
</html>
`

const errorHTML = `<!doctype html>
<html>
  <head><title>Error</title></head>
  <body>
    <h1>Server Error</h1>
    <p>An error occurred while processing your request.</p>
    <a href="/">Go Home</a>
  </body>
</html>
`

func notFoundPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(notFoundHTML))
}

func errorPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(errorHTML))
}
