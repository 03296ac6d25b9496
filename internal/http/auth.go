package httpapi

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/roniherschmann/linkpulse/internal/metrics"
)

// requireAuth admits requests carrying a valid "Authorization: Bearer" token.
func (rt *Router) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := rt.auth.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, err)
			return
		}
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("sub", claims.Subject)
		})
		next.ServeHTTP(w, r)
	})
}

type codeReq struct {
	Token  string `json:"token"`
	Secret string `json:"secret,omitempty"`
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req codeReq
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := rt.auth.Login(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		hlog.FromRequest(r).Warn().Err(err).Str("ip", clientIP(r)).Msg("login rejected")
		writeError(w, r, err)
		return
	}
	metrics.Logins.WithLabelValues("success").Inc()
	writeJSON(w, tok, http.StatusOK)
}

func (rt *Router) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	st, err := rt.auth.Status(r.Context())
	respond(w, r, st, err)
}

func (rt *Router) handleSetup(w http.ResponseWriter, r *http.Request) {
	enr, err := rt.auth.Setup(r.Context())
	respond(w, r, enr, err)
}

type messageResp struct {
	Message string `json:"message"`
}

func (rt *Router) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req codeReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.auth.Verify(r.Context(), strings.TrimSpace(req.Secret), strings.TrimSpace(req.Token)); err != nil {
		writeError(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().Msg("2FA device enrolled")
	writeJSON(w, messageResp{Message: "2FA device verified"}, http.StatusOK)
}

type toggleReq struct {
	Enabled bool `json:"enabled"`
}

type toggleResp struct {
	SetupAllowed bool   `json:"setupAllowed"`
	Message      string `json:"message"`
}

func (rt *Router) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.auth.Toggle(r.Context(), req.Enabled); err != nil {
		writeError(w, r, err)
		return
	}
	msg := "2FA setup disabled"
	if req.Enabled {
		msg = "2FA setup enabled"
	}
	writeJSON(w, toggleResp{SetupAllowed: req.Enabled, Message: msg}, http.StatusOK)
}
