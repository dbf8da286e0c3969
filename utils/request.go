package utils

import (
	"net/http"

	json "github.com/goccy/go-json"

	"tourdoc/apperr"
	"tourdoc/globals"
)

const maxBodyBytes = 1 << 20

func GetUserIDFromRequest(r *http.Request) string {
	requestingUserID, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

func GetUsernameFromRequest(r *http.Request) string {
	name, _ := r.Context().Value(globals.UsernameKey).(string)
	return name
}

// DecodeJSON reads a JSON body of at most 1 MiB into v and validates it.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("utils.DecodeJSON", "invalid JSON body")
	}
	return Validate(v)
}
