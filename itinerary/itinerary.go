// Package itinerary serves the itinerary API: saving trips, listing them and
// turning them into documents.
package itinerary

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"tourdoc/jobs"
	"tourdoc/logging"
	"tourdoc/models"
	"tourdoc/store"
	"tourdoc/utils"
)

// JobQueue is the slice of *jobs.Runner the handlers use.
type JobQueue interface {
	Submit(ctx context.Context, itineraryID, userID string) (*jobs.Handle, error)
	Status(ctx context.Context, jobID string) (jobs.Status, error)
	Subscribe(jobID string) (<-chan jobs.Status, func())
}

type Handlers struct {
	Store        store.Store
	Jobs         JobQueue
	OutputDir    string
	DownloadWait time.Duration
	// StatusPoll is how often a job socket re-reads the shared status store.
	// Zero means defaultStatusPoll.
	StatusPoll   time.Duration
}

// callerID returns the authenticated user. A userId query parameter, when
// given, must name that same user.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "missing token")
		return "", false
	}
	if q := r.URL.Query().Get("userId"); q != "" && q != userID {
		utils.RespondWithError(w, http.StatusForbidden, "userId does not match the signed-in user")
		return "", false
	}
	return userID, true
}

// POST /api/generate
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var payload models.Payload
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}
	if payload.CoverImage == "" {
		payload.CoverImage = models.CoverDefault
	}

	now := time.Now().UTC()
	it := &models.Itinerary{
		ID:           uuid.NewString(),
		UserID:       userID,
		CreatedAt:    now,
		LastModified: now,
		Status:       models.StatusGenerated,
		Data:         payload,
	}
	if err := h.Store.PutItinerary(r.Context(), it); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	h.countItinerary(r, userID)
	logging.Ctx(r.Context()).Info().Str("itinerary_id", it.ID).Str("user_id", userID).Msg("itinerary saved")
	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"itineraryId": it.ID})
}

// countItinerary bumps the user's itinerary count. Failures are only logged.
func (h *Handlers) countItinerary(r *http.Request, userID string) {
	u, err := h.Store.GetUser(r.Context(), userID)
	if err == nil {
		u.ItineraryCount++
		err = h.Store.PutUser(r.Context(), u)
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("user_id", userID).Msg("could not update itinerary count")
	}
}

// GET /api/itineraries
func (h *Handlers) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	list, err := h.Store.ListItineraries(r.Context(), userID)
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if list == nil {
		list = []models.Itinerary{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// GET /api/itineraries/:id
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	it, err := h.Store.GetItinerary(r.Context(), store.Key{UserID: userID, ItineraryID: ps.ByName("id")})
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, it)
}
