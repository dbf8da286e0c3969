package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"tourdoc/globals"
	"tourdoc/models"
)

// JWT claims
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for u.
func (a *Authenticator) Issue(u *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: u.Username,
		UserID:   u.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a raw token (without the Bearer prefix).
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Authenticate rejects requests without a valid bearer token. Browsers cannot
// set headers on a websocket handshake, so upgrades may pass the token as
// ?token= instead.
func (a *Authenticator) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" && websocket.IsWebSocketUpgrade(r) {
			if q := r.URL.Query().Get("token"); q != "" {
				tokenString = "Bearer " + q
			}
		}
		if tokenString == "" {
			unauthorized(w, "missing token")
			return
		}
		if len(tokenString) < 8 || !strings.EqualFold(tokenString[:7], "Bearer ") {
			unauthorized(w, "invalid token format")
			return
		}

		claims, err := a.Parse(tokenString[7:])
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		// Store UserID in context
		ctx := context.WithValue(r.Context(), globals.UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, globals.UsernameKey, claims.Username)
		next(w, r.WithContext(ctx), ps)
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
