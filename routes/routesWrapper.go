package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"tourdoc/ratelim"
	"tourdoc/utils"
)

func RoutesWrapper(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	AddHealthRoutes(router)
	AddAuthRoutes(router, d, rateLimiter)
	AddItineraryRoutes(router, d, rateLimiter)
	AddJobRoutes(router, d)
	AddDocumentRoutes(router, d)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}
