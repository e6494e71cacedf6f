package api

import (
	"net/http"

	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/internal"
	"go.vocdoni.io/dvote/log"
)

// refreshTokenHandler godoc
//
//	@Summary		Refresh JWT token
//	@Description	Refresh the JWT token for an authenticated admin
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.LoginResponse
//	@Failure		401	{object}	errors.Error
//	@Router			/auth/refresh [post]
func (a *API) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.AdminFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	res, err := a.buildLoginResponse(user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// authLoginHandler godoc
//
//	@Summary		Login to get a JWT token
//	@Description	Authenticate an admin and get a JWT token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.LoginRequest	true	"Login credentials"
//	@Success		200		{object}	apicommon.LoginResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error
//	@Router			/auth/login [post]
func (a *API) authLoginHandler(w http.ResponseWriter, r *http.Request) {
	loginInfo, ok := decodeModel[apicommon.LoginRequest](a.validator, w, r)
	if !ok {
		return
	}
	user, err := a.db.UserByEmail(loginInfo.Email)
	if err != nil {
		if err == db.ErrNotFound {
			errors.ErrInvalidCredentials.Write(w)
			return
		}
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if !internal.CheckPassword(user.Password, loginInfo.Password) {
		log.Infow("failed admin login", "email", loginInfo.Email)
		errors.ErrInvalidCredentials.Write(w)
		return
	}
	res, err := a.buildLoginResponse(user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// adminInfoHandler returns the authenticated admin.
func (a *API) adminInfoHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.AdminFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.AdminInfo{
		ID:    user.ID.Hex(),
		Email: user.Email,
		Name:  user.Name,
	})
}
