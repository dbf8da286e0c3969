package routes

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tourdoc/auth"
	"tourdoc/itinerary"
	"tourdoc/middleware"
	"tourdoc/ratelim"
	"tourdoc/store"
	"tourdoc/utils"
)

// Deps are the services the routes hand to their handlers.
type Deps struct {
	Store       store.Store
	Auth        *middleware.Authenticator
	Itineraries *itinerary.Handlers
}

func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "ok"})
}

func AddHealthRoutes(router *httprouter.Router) {
	router.GET("/health", Index)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
}

func AddAuthRoutes(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	router.POST("/api/auth/register", rateLimiter.Limit(auth.Register(d.Store)))
	router.POST("/api/auth/login", rateLimiter.Limit(auth.Login(d.Store, d.Auth)))
}

func AddItineraryRoutes(router *httprouter.Router, d Deps, rateLimiter *ratelim.RateLimiter) {
	h := d.Itineraries
	router.POST("/api/generate", d.Auth.Authenticate(h.Generate))
	router.GET("/api/itineraries", d.Auth.Authenticate(h.List))
	router.GET("/api/itineraries/:id", d.Auth.Authenticate(h.Get))
	router.POST("/api/download", rateLimiter.Limit(d.Auth.Authenticate(h.Download)))
}

func AddJobRoutes(router *httprouter.Router, d Deps) {
	h := d.Itineraries
	router.GET("/api/jobs/:id", d.Auth.Authenticate(h.Job))
	router.GET("/ws/jobs/:id", d.Auth.Authenticate(h.JobSocket))
}

// AddDocumentRoutes serves finished documents. File names are itinerary IDs,
// so the links work without a token.
func AddDocumentRoutes(router *httprouter.Router, d Deps) {
	router.GET("/document/:filename", d.Itineraries.Document)
}
