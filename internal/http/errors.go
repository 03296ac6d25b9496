package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/roniherschmann/linkpulse/internal/auth"
	"github.com/roniherschmann/linkpulse/internal/core"
	"github.com/roniherschmann/linkpulse/internal/stats"
)

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errorTable = []struct {
	err    error
	status int
	body   errorResp
}{
	{core.ErrMissingURL, http.StatusBadRequest, errorResp{Error: "Long URL required"}},
	{core.ErrInvalidURL, http.StatusBadRequest, errorResp{Error: "Invalid URL"}},
	{core.ErrInvalidSlug, http.StatusBadRequest, errorResp{Error: "Invalid custom slug"}},
	{core.ErrSlugConflict, http.StatusConflict, errorResp{Error: "Custom slug already exists"}},
	{core.ErrSlugExhausted, http.StatusInternalServerError, errorResp{Error: "Failed to generate unique slug"}},
	{core.ErrNotFound, http.StatusNotFound, errorResp{Error: "URL not found"}},
	{core.ErrUnavailable, http.StatusServiceUnavailable, errorResp{
		Error:   "Database tables not initialized",
		Message: "Start the server with AUTO_MIGRATE=true or apply the schema before use",
	}},
	{stats.ErrInvalidPeriod, http.StatusBadRequest, errorResp{Error: "Invalid period", Message: "Use one of 24h, 3d, 7d, 30d, 45d"}},
	{auth.ErrInvalidCodeFormat, http.StatusBadRequest, errorResp{Error: "Code must be 6 digits"}},
	{auth.ErrInvalidCode, http.StatusUnauthorized, errorResp{Error: "Invalid 2FA code"}},
	{auth.ErrUnknownSecret, http.StatusBadRequest, errorResp{Error: "Unknown or already verified secret"}},
	{auth.ErrSetupDisabled, http.StatusForbidden, errorResp{Error: "2FA setup is disabled"}},
	{auth.ErrMissingToken, http.StatusUnauthorized, errorResp{Error: "Access denied. No token provided."}},
	{auth.ErrInvalidToken, http.StatusBadRequest, errorResp{Error: "Invalid token."}},
}

// writeError maps domain errors to status codes. Anything unrecognized is
// logged with full detail and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				hlog.FromRequest(r).Error().Err(err).Msg("request failed")
			}
			writeJSON(w, e.body, e.status)
			return
		}
	}
	hlog.FromRequest(r).Error().Err(err).Msg("unhandled error")
	writeJSON(w, errorResp{Error: "Server error"}, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

const maxBody = 1 << 20

// decodeJSON reads a bounded JSON body and answers 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, errorResp{Error: "Invalid JSON body"}, http.StatusBadRequest)
		return false
	}
	return true
}
