package auth

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"tourdoc/middleware"
	"tourdoc/store"
)

func Register(s store.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		registerHandler(w, r, s)
	}
}

func Login(s store.Store, authn *middleware.Authenticator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		loginHandler(w, r, s, authn)
	}
}
