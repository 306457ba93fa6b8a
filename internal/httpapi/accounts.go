package httpapi

import (
	"net/http"
	"time"

	"github.com/Mouaddiguoug/feetflight/internal/httputil"
	"github.com/Mouaddiguoug/feetflight/internal/middleware"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	authsvc "github.com/Mouaddiguoug/feetflight/internal/services/auth"
)

type planRequest struct {
	Name   string `json:"name" validate:"required,max=60"`
	Price  int64  `json:"price" validate:"gt=0"`
	Period string `json:"period" validate:"required,oneof=month year"`
}

type signupRequest struct {
	Name     string        `json:"name" validate:"required,max=100"`
	UserName string        `json:"userName" validate:"required,min=3,max=40,alphanum"`
	Email    string        `json:"email" validate:"required,email,max=254"`
	Password string        `json:"password" validate:"required,min=8,max=72"`
	Role     string        `json:"role" validate:"required,oneof=buyer seller"`
	Plans    []planRequest `json:"plans" validate:"required_if=Role seller,max=5,dive"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	in := authsvc.SignupInput{
		Name:     req.Name,
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}
	for _, p := range req.Plans {
		in.Plans = append(in.Plans, models.Plan{Name: p.Name, Price: p.Price, Period: p.Period})
	}

	session, err := a.svc.Auth.Signup(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := bind(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	session, err := a.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.setSessionCookie(w, session.Token, a.svc.Auth.TokenTTL())
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, c)
}

func (a *API) confirm(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Auth.Confirm(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user, "confirmed": true})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Auth.Me(r.Context(), actor(r).UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
