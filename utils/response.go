package utils

import (
	"net/http"

	json "github.com/goccy/go-json"

	"tourdoc/apperr"
	"tourdoc/logging"
)

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, map[string]string{"error": msg})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// RespondWithAppError maps err to its status code. Errors outside the apperr
// taxonomy are logged and reported as a plain 500.
func RespondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", apperr.KindOf(err).String()).Msg("request failed")
	}
	RespondWithError(w, code, apperr.Message(err))
}

type M map[string]any
