package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tourdoc/apperr"
	"tourdoc/logging"
	"tourdoc/middleware"
	"tourdoc/models"
	"tourdoc/store"
	"tourdoc/utils"
)

type registrationInput struct {
	Username    string              `json:"username" validate:"required,min=3,max=64"`
	Password    string              `json:"password" validate:"required,min=6,max=72"`
	Name        string              `json:"name" validate:"max=128"`
	CompanyInfo *models.CompanyInfo `json:"companyInfo" validate:"omitempty"`
}

type loginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func registerHandler(w http.ResponseWriter, r *http.Request, s store.Store) {
	var input registrationInput
	if err := utils.DecodeJSON(w, r, &input); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}
	input.Username = strings.TrimSpace(input.Username)

	// Checked before hashing; CreateUser rejects duplicates too.
	if _, err := store.FindUserByUsername(r.Context(), s, input.Username); err == nil {
		utils.RespondWithError(w, http.StatusConflict, "username already taken")
		return
	} else if !apperr.Is(err, apperr.KindNotFound) {
		utils.RespondWithAppError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	user := &models.User{
		UserID:       uuid.NewString(),
		Username:     input.Username,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(input.Name),
		Plan:         models.DefaultPlan,
		CreatedAt:    time.Now().UTC(),
	}
	if input.CompanyInfo != nil {
		user.CompanyInfo = *input.CompanyInfo
	}

	if err := s.CreateUser(r.Context(), user); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("user_id", user.UserID).Msg("user registered")
	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"userId": user.UserID})
}

func loginHandler(w http.ResponseWriter, r *http.Request, s store.Store, authn *middleware.Authenticator) {
	var input loginInput
	if err := utils.DecodeJSON(w, r, &input); err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	user, err := store.FindUserByUsername(r.Context(), s, input.Username)
	if apperr.Is(err, apperr.KindNotFound) {
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		utils.RespondWithAppError(w, r, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := authn.Issue(user)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.PutUser(r.Context(), user); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("user_id", user.UserID).Msg("could not record last login")
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"token":  token,
		"userId": user.UserID,
		"user":   user.Public(),
	})
}
